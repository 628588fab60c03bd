// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/scanner"
)

// Checkout materializes commitHash's tree into the working directory,
// removing every scanned (non-ignored) file that the target tree does not
// contain and writing every file the tree does contain, pulling any tree or
// blob missing locally from the configured remote, then advances local HEAD. A
// file whose current scanned hash and mode already match the target entry
// is left untouched, so its mtime survives and a subsequent scan can still
// use the cache.
func (r *Repository) Checkout(ctx context.Context, commitHash object.Hash) error {
	op := newOperation("checkout", r.Observer)

	commit, err := r.Objects.RetrieveCommit(ctx, commitHash)
	if err != nil {
		return fmt.Errorf("wit: checkout %s: read commit: %w", commitHash, err)
	}

	wanted := map[string]object.Entry{}
	if err := r.collectTreeFiles(ctx, commit.Tree, "", wanted); err != nil {
		return fmt.Errorf("wit: checkout %s: walk tree: %w", commitHash, err)
	}

	currentRefs, err := r.scan()
	if err != nil {
		return fmt.Errorf("wit: checkout %s: scan: %w", commitHash, err)
	}
	current := make(map[string]scanner.FileRef, len(currentRefs))
	for _, ref := range currentRefs {
		current[ref.Path] = ref
		if _, ok := wanted[ref.Path]; ok {
			continue
		}
		full := filepath.Join(r.Base, filepath.FromSlash(ref.Path))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wit: checkout %s: remove stale %s: %w", commitHash, ref.Path, err)
		}
	}

	for relPath, entry := range wanted {
		if ref, ok := current[relPath]; ok && ref.Hash == entry.Hash && ref.Mode == entry.Mode {
			op.emit(ctx, EventObjectSkipped, relPath, string(entry.Hash))
			continue
		}
		full := filepath.Join(r.Base, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("wit: checkout %s: mkdir for %s: %w", commitHash, relPath, err)
		}
		if err := r.ensureObjectLocal(ctx, object.KindBlob, entry.Hash); err != nil {
			return fmt.Errorf("wit: checkout %s: fetch blob for %s: %w", commitHash, relPath, err)
		}
		blob, err := r.Objects.RetrieveBlob(ctx, entry.Hash)
		if err != nil {
			return fmt.Errorf("wit: checkout %s: fetch blob for %s: %w", commitHash, relPath, err)
		}
		if err := writeWorkingFile(full, entry.Mode, blob.Content); err != nil {
			return fmt.Errorf("wit: checkout %s: write %s: %w", commitHash, relPath, err)
		}
		op.emit(ctx, EventCheckoutWritten, relPath, string(entry.Hash))
	}

	if err := writeHead(ctx, r.local, "HEAD", commitHash, nil); err != nil {
		return fmt.Errorf("wit: checkout %s: advance HEAD: %w", commitHash, err)
	}
	op.emit(ctx, EventHeadUpdated, "", string(commitHash))
	return nil
}

// collectTreeFiles recursively expands a tree into relPath -> Entry for
// every non-directory entry it reaches, pulling any subtree not already
// present locally from the configured remote first.
func (r *Repository) collectTreeFiles(ctx context.Context, treeHash object.Hash, dir string, out map[string]object.Entry) error {
	if err := r.ensureObjectLocal(ctx, object.KindTree, treeHash); err != nil {
		return err
	}
	t, err := r.Objects.RetrieveTree(ctx, treeHash)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		p := joinRelPath(dir, e.Name)
		if _, err := normalizeRelPath(p); err != nil {
			return err
		}
		if e.Mode == object.ModeDirectory {
			if err := r.collectTreeFiles(ctx, e.Hash, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = object.Entry{Name: e.Name, Mode: e.Mode, Hash: e.Hash}
	}
	return nil
}

// ensureObjectLocal pulls obj from the repository's configured remote into
// the local store if it isn't already present, so checkout works against a
// commit fetched but not yet fully hydrated locally.
func (r *Repository) ensureObjectLocal(ctx context.Context, kind object.Kind, hash object.Hash) error {
	exists, err := r.Objects.Exists(ctx, kind, hash)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if r.remoteObjects == nil {
		return fmt.Errorf("wit: object %s %s missing locally and no remote configured", kind, hash)
	}
	obj, err := r.remoteObjects.Retrieve(ctx, kind, hash)
	if err != nil {
		return fmt.Errorf("wit: fetch %s %s: %w", kind, hash, err)
	}
	if _, err := r.Objects.Store(ctx, obj); err != nil {
		return fmt.Errorf("wit: cache %s %s: %w", kind, hash, err)
	}
	return nil
}

func writeWorkingFile(full string, mode object.Mode, content []byte) error {
	if mode == object.ModeSymlink {
		target := string(content)
		_ = os.Remove(full)
		return os.Symlink(target, full)
	}
	perm := os.FileMode(0o644)
	if mode == object.ModeExecutable {
		perm = 0o755
	}
	return os.WriteFile(full, content, perm)
}

// normalizeRelPath guards against a malformed tree entry name trying to
// escape the working directory via "..".
func normalizeRelPath(p string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("wit: rejected path escaping working directory: %s", p)
	}
	return clean, nil
}
