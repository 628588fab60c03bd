// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wildcode/wit/remote"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	d, err := remote.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return NewStore(d, nil)
}

func TestStore_RoundTripBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	h, err := s.Store(ctx, Blob{Content: []byte("hello")})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	b, err := s.RetrieveBlob(ctx, h)
	if err != nil {
		t.Fatalf("RetrieveBlob: %v", err)
	}
	if string(b.Content) != "hello" {
		t.Fatalf("content = %q, want %q", b.Content, "hello")
	}
}

func TestStore_IdempotentStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	h1, err := s.Store(ctx, Blob{Content: []byte("hello")})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	h2, err := s.Store(ctx, Blob{Content: []byte("hello")})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}

	paths, err := s.Remote.List(ctx, "objects/blobs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected exactly one stored path, got %v", paths)
	}
}

func TestStore_HashFileMatchesInMemory(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fileHash, err := HashFile(p)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	memHash := HashCanonical(EncodeBlob(Blob{Content: []byte("hello")}))
	if fileHash != memHash {
		t.Fatalf("HashFile = %s, want %s", fileHash, memHash)
	}
}

func TestTree_CanonicalSortIsStable(t *testing.T) {
	a := Tree{Entries: []Entry{
		{Name: "b.txt", Mode: ModeNormal, Hash: "11"},
		{Name: "a.txt", Mode: ModeNormal, Hash: "22"},
	}}
	b := Tree{Entries: []Entry{
		{Name: "a.txt", Mode: ModeNormal, Hash: "22"},
		{Name: "b.txt", Mode: ModeNormal, Hash: "11"},
	}}

	encA, err := EncodeTree(a)
	if err != nil {
		t.Fatalf("EncodeTree: %v", err)
	}
	encB, err := EncodeTree(b)
	if err != nil {
		t.Fatalf("EncodeTree: %v", err)
	}
	if string(encA) != string(encB) {
		t.Fatalf("encodings differ despite same entries in different input order")
	}
}

func TestStore_CompressionNeverChangesHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	small := make([]byte, 10)
	large := make([]byte, 10000)
	for i := range large {
		large[i] = byte(i % 7) // compressible but not fully degenerate
	}

	hSmall, err := s.Store(ctx, Blob{Content: small})
	if err != nil {
		t.Fatalf("Store small: %v", err)
	}
	hLarge, err := s.Store(ctx, Blob{Content: large})
	if err != nil {
		t.Fatalf("Store large: %v", err)
	}

	if hSmall != HashCanonical(small) {
		t.Fatalf("small hash changed under framing")
	}
	if hLarge != HashCanonical(large) {
		t.Fatalf("large hash changed under framing")
	}

	gotSmall, err := s.RetrieveBlob(ctx, hSmall)
	if err != nil || string(gotSmall.Content) != string(small) {
		t.Fatalf("round-trip small failed: %v", err)
	}
	gotLarge, err := s.RetrieveBlob(ctx, hLarge)
	if err != nil || string(gotLarge.Content) != string(large) {
		t.Fatalf("round-trip large failed: %v", err)
	}
}

func TestCommit_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := Commit{
		Tree:      Hash("1111111111111111111111111111111111111111111111111111111111111111"[:64]),
		Parent:    "",
		Message:   "msg with\nnewline",
		Timestamp: ts,
	}
	h, err := s.Store(ctx, c)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.RetrieveCommit(ctx, h)
	if err != nil {
		t.Fatalf("RetrieveCommit: %v", err)
	}
	if got.Message != c.Message || got.Tree != c.Tree || got.HasParent() {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: got %v want %v", got.Timestamp, ts)
	}
}

func TestStore_CorruptObjectDetected(t *testing.T) {
	ctx := context.Background()
	d, err := remote.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	s := NewStore(d, nil)

	tr := Tree{Entries: []Entry{{Name: "f", Mode: ModeNormal, Hash: "22"}}}
	h, err := s.Store(ctx, tr)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	p, err := path(KindTree, h)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	raw, err := d.Get(ctx, p)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := d.Put(ctx, p, raw, false, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, err = s.RetrieveTree(ctx, h)
	var corrupt *CorruptObjectError
	if err == nil {
		t.Fatal("expected corruption to be detected")
	}
	if ce, ok := err.(*CorruptObjectError); !ok {
		t.Fatalf("err = %T(%v), want *CorruptObjectError", err, err)
	} else {
		corrupt = ce
		_ = corrupt
	}
}

func TestPath_RejectsMalformedHash(t *testing.T) {
	if _, err := path(KindBlob, "not-a-hash"); err == nil {
		t.Fatal("expected malformed hash to be rejected")
	}
}
