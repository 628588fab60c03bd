// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/scanner"
)

// Commit scans the working directory, stores every changed blob, rebuilds
// the tree incrementally, and atomically advances local HEAD. Returns the
// new commit hash. If nothing changed since the parent commit, Commit still
// produces a new commit object (an empty commit is valid — callers that want
// to suppress empty commits should compare the returned hash's tree against
// the parent's).
func (r *Repository) Commit(ctx context.Context, message string) (object.Hash, error) {
	op := newOperation("commit", r.Observer)
	op.emit(ctx, EventScanStarted, r.Base, "")

	parentHash, hasParent, err := r.HEAD(ctx)
	if err != nil {
		return "", err
	}

	currentRefs, err := r.scan()
	if err != nil {
		return "", fmt.Errorf("wit: commit: scan: %w", err)
	}
	if err := r.cache.Save(); err != nil {
		r.Logger.Warn("scan cache save failed", "error", err)
	}

	var previousTree object.Hash
	var previousRefs []scanner.FileRef
	if hasParent {
		parentCommit, err := r.Objects.RetrieveCommit(ctx, parentHash)
		if err != nil {
			return "", fmt.Errorf("wit: commit: read parent %s: %w", parentHash, err)
		}
		previousTree = parentCommit.Tree
		previousRefs, err = refsFromTree(ctx, r.Objects, previousTree)
		if err != nil {
			return "", err
		}
	}

	changes := scanner.Diff(currentRefs, previousRefs)
	op.emit(ctx, EventScanCompleted, r.Base, fmt.Sprintf("%d changes", len(changes)))

	for _, c := range changes {
		if c.State == scanner.StateDeleted {
			continue
		}
		content, err := r.readBlobContent(c)
		if err != nil {
			return "", fmt.Errorf("wit: commit: read %s: %w", c.Path, err)
		}
		blobHash, err := r.Objects.Store(ctx, object.Blob{Content: content})
		if err != nil {
			return "", fmt.Errorf("wit: commit: store blob %s: %w", c.Path, err)
		}
		if blobHash != c.Hash {
			return "", fmt.Errorf("wit: commit: %s: stored hash %s does not match scanned hash %s", c.Path, blobHash, c.Hash)
		}
		op.emit(ctx, EventBlobStored, c.Path, string(blobHash))
	}

	rootHash, err := rebuildTree(ctx, r.Objects, currentRefs, changes, previousTree)
	if err != nil {
		return "", fmt.Errorf("wit: commit: rebuild tree: %w", err)
	}
	if rootHash == previousTree {
		op.emit(ctx, EventTreeReused, "", string(rootHash))
	} else {
		op.emit(ctx, EventTreeStored, "", string(rootHash))
	}

	commit := object.Commit{
		Tree:      rootHash,
		Parent:    parentHash,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	commitHash, err := r.Objects.Store(ctx, commit)
	if err != nil {
		return "", fmt.Errorf("wit: commit: store commit: %w", err)
	}
	op.emit(ctx, EventCommitStored, "", string(commitHash))

	if err := writeHead(ctx, r.local, "HEAD", commitHash, nil); err != nil {
		return "", fmt.Errorf("wit: commit: advance HEAD: %w", err)
	}
	op.emit(ctx, EventHeadUpdated, "", string(commitHash))

	if err := appendLog(ctx, r.local, "logs", commit.Timestamp, commitHash, parentHash, message); err != nil {
		r.Logger.Warn("append log failed", "error", err)
	}

	return commitHash, nil
}

// readBlobContent reads the bytes that must hash to ref.Hash: file content
// for regular/executable files, the link target string for symlinks (mirrors
// scanner.Scan's choice of what a symlink "is" for hashing purposes).
func (r *Repository) readBlobContent(ref scanner.FileRef) ([]byte, error) {
	full := filepath.Join(r.Base, filepath.FromSlash(ref.Path))
	if ref.Mode == object.ModeSymlink {
		target, err := os.Readlink(full)
		if err != nil {
			return nil, err
		}
		return []byte(target), nil
	}
	return os.ReadFile(full)
}
