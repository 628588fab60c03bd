// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wildcode/wit/remote"
)

// ErrNotFound mirrors remote.ErrNotFound at the object-store layer so
// callers that never touch package remote directly still have a sentinel to
// check against.
var ErrNotFound = remote.ErrNotFound

// CorruptObjectError is returned when a stored object's framing byte,
// compression, or canonical parse fails, or its bytes don't re-hash to their
// own address.
type CorruptObjectError struct {
	Hash Hash
	Kind Kind
	Err  error
}

func (e *CorruptObjectError) Error() string {
	return fmt.Sprintf("object: corrupt %s %s: %v", e.Kind, e.Hash, e.Err)
}

func (e *CorruptObjectError) Unwrap() error { return e.Err }

// KindMismatchError is returned when a retrieved object's kind doesn't
// match what the caller asked for.
type KindMismatchError struct {
	Hash Hash
	Want Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("object: kind mismatch for %s: want %s", e.Hash, e.Want)
}

// PathTraversalError is returned when a hash-derived path would escape the
// objects/ base prefix. This should only ever happen for a malformed hash.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("object: path traversal rejected: %s", e.Path)
}

// CompressionThreshold and CompressionRatio control when the storage framer
// applies zlib compression: only when the uncompressed size exceeds
// CompressionThreshold AND the compressed size is under CompressionRatio of
// the uncompressed size.
const (
	CompressionThreshold = 1024
	CompressionRatio     = 0.90
)

const (
	frameUncompressed byte = 0x00
	frameCompressed   byte = 0x01
)

// Store is a typed, deduplicating, optionally compressed persistence layer
// for Blob/Tree/Commit over a remote.Remote, plus file hashing and
// reachability traversal.
type Store struct {
	Remote remote.Remote
	Signer remote.Signer
}

// NewStore wraps r as an object Store. signer may be nil if the backend
// doesn't require signed writes.
func NewStore(r remote.Remote, signer remote.Signer) *Store {
	return &Store{Remote: r, Signer: signer}
}

// path computes the sharded objects/<kind>/<hh>/<rest> path for hash,
// rejecting anything that would not stay under the kind's own directory.
func path(kind Kind, hash Hash) (string, error) {
	h := string(hash)
	if len(h) != 64 {
		return "", &PathTraversalError{Path: h}
	}
	for _, c := range h {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", &PathTraversalError{Path: h}
		}
	}
	p := fmt.Sprintf("objects/%s/%s/%s", kind.storeSegment(), h[:2], h[2:])
	if strings.Contains(p, "..") {
		return "", &PathTraversalError{Path: p}
	}
	return p, nil
}

// frame applies the storage framing byte + optional zlib compression.
func frame(canonical []byte) ([]byte, error) {
	if len(canonical) <= CompressionThreshold {
		return append([]byte{frameUncompressed}, canonical...), nil
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(canonical); err != nil {
		return nil, fmt.Errorf("object: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("object: compress: %w", err)
	}

	if float64(buf.Len()) < float64(len(canonical))*CompressionRatio {
		return append([]byte{frameCompressed}, buf.Bytes()...), nil
	}
	return append([]byte{frameUncompressed}, canonical...), nil
}

// unframe reverses frame, returning the canonical bytes.
func unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("object: empty framed object")
	}
	flag, body := framed[0], framed[1:]
	switch flag {
	case frameUncompressed:
		return body, nil
	case frameCompressed:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("object: decompress: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("object: decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("object: invalid framing byte 0x%02x", flag)
	}
}

// canonicalOf returns the kind and canonical bytes for any of Blob/Tree/Commit.
func canonicalOf(obj any) (Kind, []byte, error) {
	switch v := obj.(type) {
	case Blob:
		return KindBlob, EncodeBlob(v), nil
	case Tree:
		b, err := EncodeTree(v)
		return KindTree, b, err
	case Commit:
		return KindCommit, EncodeCommit(v), nil
	default:
		return "", nil, fmt.Errorf("object: store: unsupported type %T", obj)
	}
}

// Store computes h = H(C(obj)); if an object already exists at h's path it
// is left untouched (deduplication); otherwise obj is framed and written.
// Idempotent.
func (s *Store) Store(ctx context.Context, obj any) (Hash, error) {
	kind, canonical, err := canonicalOf(obj)
	if err != nil {
		return "", err
	}
	h := HashCanonical(canonical)

	p, err := path(kind, h)
	if err != nil {
		return "", err
	}

	exists, err := s.Remote.Exists(ctx, p)
	if err != nil {
		return "", fmt.Errorf("object: store %s %s: %w", kind, h, err)
	}
	if exists {
		return h, nil
	}

	framed, err := frame(canonical)
	if err != nil {
		return "", err
	}
	if err := s.Remote.Put(ctx, p, framed, false, s.Signer); err != nil {
		return "", fmt.Errorf("object: store %s %s: %w", kind, h, err)
	}
	return h, nil
}

// Retrieve fetches and decodes the object of the given kind at hash.
func (s *Store) Retrieve(ctx context.Context, kind Kind, hash Hash) (any, error) {
	p, err := path(kind, hash)
	if err != nil {
		return nil, err
	}
	framed, err := s.Remote.Get(ctx, p)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("object: retrieve %s %s: %w", kind, hash, err)
	}

	canonical, err := unframe(framed)
	if err != nil {
		return nil, &CorruptObjectError{Hash: hash, Kind: kind, Err: err}
	}

	if got := HashCanonical(canonical); got != hash {
		return nil, &CorruptObjectError{Hash: hash, Kind: kind, Err: fmt.Errorf("re-hash mismatch: got %s", got)}
	}

	switch kind {
	case KindBlob:
		return Blob{Content: canonical}, nil
	case KindTree:
		t, err := DecodeTree(canonical)
		if err != nil {
			return nil, &CorruptObjectError{Hash: hash, Kind: kind, Err: err}
		}
		return t, nil
	case KindCommit:
		c, err := DecodeCommit(canonical)
		if err != nil {
			return nil, &CorruptObjectError{Hash: hash, Kind: kind, Err: err}
		}
		return c, nil
	default:
		return nil, fmt.Errorf("object: retrieve: unknown kind %s", kind)
	}
}

// RetrieveBlob, RetrieveTree, RetrieveCommit are typed convenience wrappers
// around Retrieve that also enforce the expected kind.
func (s *Store) RetrieveBlob(ctx context.Context, hash Hash) (Blob, error) {
	v, err := s.Retrieve(ctx, KindBlob, hash)
	if err != nil {
		return Blob{}, err
	}
	b, ok := v.(Blob)
	if !ok {
		return Blob{}, &KindMismatchError{Hash: hash, Want: KindBlob}
	}
	return b, nil
}

func (s *Store) RetrieveTree(ctx context.Context, hash Hash) (Tree, error) {
	v, err := s.Retrieve(ctx, KindTree, hash)
	if err != nil {
		return Tree{}, err
	}
	t, ok := v.(Tree)
	if !ok {
		return Tree{}, &KindMismatchError{Hash: hash, Want: KindTree}
	}
	return t, nil
}

func (s *Store) RetrieveCommit(ctx context.Context, hash Hash) (Commit, error) {
	v, err := s.Retrieve(ctx, KindCommit, hash)
	if err != nil {
		return Commit{}, err
	}
	c, ok := v.(Commit)
	if !ok {
		return Commit{}, &KindMismatchError{Hash: hash, Want: KindCommit}
	}
	return c, nil
}

// Exists reports whether an object of the given kind is stored at hash.
func (s *Store) Exists(ctx context.Context, kind Kind, hash Hash) (bool, error) {
	p, err := path(kind, hash)
	if err != nil {
		return false, err
	}
	return s.Remote.Exists(ctx, p)
}

// Delete removes the object of the given kind at hash, if present.
func (s *Store) Delete(ctx context.Context, kind Kind, hash Hash) error {
	p, err := path(kind, hash)
	if err != nil {
		return err
	}
	return s.Remote.Delete(ctx, p, s.Signer)
}

// HashFile computes the streaming SHA-256 hash of a file's contents,
// producing the same hash as Store(Blob{Content: <file bytes>}) without
// loading the whole file into memory.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("object: hash file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("object: hash file %s: %w", path, err)
	}
	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}

// ObjectRef identifies one object by kind and hash, as produced by Reachable.
type ObjectRef struct {
	Kind Kind
	Hash Hash
}

// Reachable performs a depth-first walk from a commit hash, visiting its
// tree and parent chain, every subtree, and every blob. Duplicates are
// suppressed via a visited set; unknown kinds are tolerated as terminal, for
// forward compatibility with future kinds.
func (s *Store) Reachable(ctx context.Context, from Hash) (map[ObjectRef]struct{}, error) {
	visited := make(map[ObjectRef]struct{})
	var walkCommit func(Hash) error
	var walkTree func(Hash) error

	walkTree = func(h Hash) error {
		ref := ObjectRef{Kind: KindTree, Hash: h}
		if _, ok := visited[ref]; ok {
			return nil
		}
		visited[ref] = struct{}{}

		t, err := s.RetrieveTree(ctx, h)
		if err != nil {
			return fmt.Errorf("object: reachable: tree %s: %w", h, err)
		}
		for _, e := range t.Entries {
			if e.Mode == ModeDirectory {
				if err := walkTree(e.Hash); err != nil {
					return err
				}
				continue
			}
			blobRef := ObjectRef{Kind: KindBlob, Hash: e.Hash}
			visited[blobRef] = struct{}{}
		}
		return nil
	}

	walkCommit = func(h Hash) error {
		ref := ObjectRef{Kind: KindCommit, Hash: h}
		if _, ok := visited[ref]; ok {
			return nil
		}
		visited[ref] = struct{}{}

		c, err := s.RetrieveCommit(ctx, h)
		if err != nil {
			return fmt.Errorf("object: reachable: commit %s: %w", h, err)
		}
		if err := walkTree(c.Tree); err != nil {
			return err
		}
		if c.HasParent() {
			return walkCommit(c.Parent)
		}
		return nil
	}

	if err := walkCommit(from); err != nil {
		return nil, err
	}
	return visited, nil
}
