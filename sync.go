// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"fmt"
	"sort"

	"github.com/wildcode/wit/object"
)

// Fetch copies the configured remote's HEAD into the local tracking slot
// (.wild/remotes/<name>/HEAD) and downloads every object reachable from it
// that isn't already present locally, then copies the remote's log. Never
// touches local HEAD.
func (r *Repository) Fetch(ctx context.Context) error {
	if r.remoteObjects == nil {
		return ErrMissingRemote
	}
	op := newOperation("fetch", r.Observer)

	remoteHead, ok, err := readHead(ctx, r.remoteRaw, "HEAD")
	if err != nil {
		return fmt.Errorf("wit: fetch: read remote HEAD: %w", err)
	}
	if !ok {
		if err := writeHead(ctx, r.local, r.remoteHeadPath(), "", nil); err != nil {
			return fmt.Errorf("wit: fetch: clear tracking HEAD: %w", err)
		}
		return nil
	}

	remoteReach, err := r.remoteObjects.Reachable(ctx, remoteHead)
	if err != nil {
		return fmt.Errorf("wit: fetch: enumerate remote objects: %w", err)
	}
	for ref := range remoteReach {
		exists, err := r.Objects.Exists(ctx, ref.Kind, ref.Hash)
		if err != nil {
			return fmt.Errorf("wit: fetch: check %s %s: %w", ref.Kind, ref.Hash, err)
		}
		if exists {
			op.emit(ctx, EventObjectSkipped, string(ref.Hash), string(ref.Kind))
			continue
		}
		obj, err := r.remoteObjects.Retrieve(ctx, ref.Kind, ref.Hash)
		if err != nil {
			return fmt.Errorf("wit: fetch: download %s %s: %w", ref.Kind, ref.Hash, err)
		}
		if _, err := r.Objects.Store(ctx, obj); err != nil {
			return fmt.Errorf("wit: fetch: store %s %s: %w", ref.Kind, ref.Hash, err)
		}
		op.emit(ctx, EventObjectFetched, string(ref.Hash), string(ref.Kind))
	}

	if err := writeHead(ctx, r.local, r.remoteHeadPath(), remoteHead, nil); err != nil {
		return fmt.Errorf("wit: fetch: update tracking HEAD: %w", err)
	}

	records, err := readLog(ctx, r.remoteRaw, "logs")
	if err != nil {
		return fmt.Errorf("wit: fetch: read remote log: %w", err)
	}
	for _, rec := range records {
		if err := appendLog(ctx, r.local, r.remoteLogPath(), rec.Timestamp, rec.Hash, rec.Parent, rec.Message); err != nil {
			r.Logger.Warn("fetch: mirror remote log line failed", "error", err)
			break
		}
	}
	return nil
}

// Push requires a local HEAD, uploads every object reachable from it that
// the remote doesn't already have, then advances the remote's HEAD and
// copies logs/config. Objects are always fully uploaded before the remote
// HEAD moves, so a concurrent reader never observes a dangling HEAD.
func (r *Repository) Push(ctx context.Context) error {
	if r.remoteObjects == nil {
		return ErrMissingRemote
	}
	op := newOperation("push", r.Observer)

	localHead, err := requireHead(ctx, r.local, "HEAD")
	if err != nil {
		return err
	}

	localReach, err := r.Objects.Reachable(ctx, localHead)
	if err != nil {
		return fmt.Errorf("wit: push: enumerate local objects: %w", err)
	}

	remoteHead, hasRemoteHead, err := readHead(ctx, r.remoteRaw, "HEAD")
	if err != nil {
		return fmt.Errorf("wit: push: read remote HEAD: %w", err)
	}
	remoteReach := map[object.ObjectRef]struct{}{}
	if hasRemoteHead {
		remoteReach, err = r.remoteObjects.Reachable(ctx, remoteHead)
		if err != nil {
			return fmt.Errorf("wit: push: enumerate remote objects: %w", err)
		}
	}

	for ref := range localReach {
		if _, already := remoteReach[ref]; already {
			op.emit(ctx, EventObjectSkipped, string(ref.Hash), string(ref.Kind))
			continue
		}
		obj, err := r.Objects.Retrieve(ctx, ref.Kind, ref.Hash)
		if err != nil {
			return fmt.Errorf("wit: push: read local %s %s: %w", ref.Kind, ref.Hash, err)
		}
		if _, err := r.remoteObjects.Store(ctx, obj); err != nil {
			return fmt.Errorf("wit: push: upload %s %s: %w", ref.Kind, ref.Hash, err)
		}
		op.emit(ctx, EventObjectUploaded, string(ref.Hash), string(ref.Kind))
	}

	if err := writeHead(ctx, r.remoteRaw, "HEAD", localHead, r.remoteSigner); err != nil {
		return fmt.Errorf("wit: push: advance remote HEAD: %w", err)
	}
	op.emit(ctx, EventHeadUpdated, "", string(localHead))

	localRecords, err := readLog(ctx, r.local, "logs")
	if err != nil {
		return fmt.Errorf("wit: push: read local log: %w", err)
	}
	for _, rec := range localRecords {
		if err := appendLog(ctx, r.remoteRaw, "logs", rec.Timestamp, rec.Hash, rec.Parent, rec.Message); err != nil {
			r.Logger.Warn("push: mirror log line failed", "error", err)
			break
		}
	}

	if cfgData, err := r.local.Get(ctx, "config"); err == nil {
		if err := r.remoteRaw.Put(ctx, "config", cfgData, false, r.remoteSigner); err != nil {
			r.Logger.Warn("push: copy config failed", "error", err)
		}
	}
	return nil
}

// Rebase fetches, then replays every local-only commit onto the remote's
// HEAD via a per-commit file-level change set, producing new commit objects
// (new hashes, same messages) rather than rewriting parent pointers in
// place. Finishes by checking out the rebased HEAD.
func (r *Repository) Rebase(ctx context.Context) error {
	if err := r.Fetch(ctx); err != nil {
		return err
	}
	op := newOperation("rebase", r.Observer)

	localHead, hasLocal, err := r.HEAD(ctx)
	if err != nil {
		return err
	}
	remoteHead, hasRemote, err := readHead(ctx, r.local, r.remoteHeadPath())
	if err != nil {
		return fmt.Errorf("wit: rebase: read tracking HEAD: %w", err)
	}
	if !hasRemote {
		return ErrMissingRemote
	}
	if !hasLocal || localHead == remoteHead {
		return nil
	}

	ancestors, err := ancestorSet(ctx, r.Objects, remoteHead)
	if err != nil {
		return fmt.Errorf("wit: rebase: collect remote ancestors: %w", err)
	}

	var localOnly []object.Commit
	cur := localHead
	for {
		if _, ok := ancestors[cur]; ok {
			break
		}
		if cur == "" {
			return ErrMissingCommonAncestor
		}
		c, err := r.Objects.RetrieveCommit(ctx, cur)
		if err != nil {
			return fmt.Errorf("wit: rebase: read local commit %s: %w", cur, err)
		}
		localOnly = append(localOnly, c)
		cur = c.Parent
	}
	// localOnly is newest-first; reverse to oldest-first for replay.
	for i, j := 0, len(localOnly)-1; i < j; i, j = i+1, j-1 {
		localOnly[i], localOnly[j] = localOnly[j], localOnly[i]
	}

	var remoteTree object.Hash
	if remoteHead != "" {
		remoteCommit, err := r.Objects.RetrieveCommit(ctx, remoteHead)
		if err != nil {
			return fmt.Errorf("wit: rebase: read remote HEAD commit: %w", err)
		}
		remoteTree = remoteCommit.Tree
	}
	fileMap, err := treeFileMap(ctx, r.Objects, remoteTree)
	if err != nil {
		return fmt.Errorf("wit: rebase: materialize base tree: %w", err)
	}

	current := remoteHead
	for _, c := range localOnly {
		commitFileMap, err := treeFileMap(ctx, r.Objects, c.Tree)
		if err != nil {
			return fmt.Errorf("wit: rebase: read commit tree: %w", err)
		}
		var commitParentFileMap map[string]object.Entry
		if c.HasParent() {
			parentCommit, err := r.Objects.RetrieveCommit(ctx, c.Parent)
			if err != nil {
				return fmt.Errorf("wit: rebase: read commit parent %s: %w", c.Parent, err)
			}
			commitParentFileMap, err = treeFileMap(ctx, r.Objects, parentCommit.Tree)
			if err != nil {
				return err
			}
		}
		applyFileMapChange(fileMap, commitParentFileMap, commitFileMap)

		newTree, err := buildTreeFromFileMap(ctx, r.Objects, fileMap)
		if err != nil {
			return fmt.Errorf("wit: rebase: rebuild tree: %w", err)
		}
		newCommit := object.Commit{Tree: newTree, Parent: current, Message: c.Message, Timestamp: c.Timestamp}
		newHash, err := r.Objects.Store(ctx, newCommit)
		if err != nil {
			return fmt.Errorf("wit: rebase: store replayed commit: %w", err)
		}
		op.emit(ctx, EventCommitReplayed, "", string(newHash))

		if err := appendLog(ctx, r.local, "logs", newCommit.Timestamp, newHash, current, newCommit.Message); err != nil {
			r.Logger.Warn("rebase: append log failed", "error", err)
		}
		current = newHash
	}

	if err := writeHead(ctx, r.local, "HEAD", current, nil); err != nil {
		return fmt.Errorf("wit: rebase: advance HEAD: %w", err)
	}
	return r.Checkout(ctx, current)
}

// ancestorSet returns the set of commit hashes reachable by following
// parent pointers from head, inclusive.
func ancestorSet(ctx context.Context, store *object.Store, head object.Hash) (map[object.Hash]struct{}, error) {
	set := map[object.Hash]struct{}{"": {}}
	cur := head
	for cur != "" {
		if _, ok := set[cur]; ok {
			break
		}
		set[cur] = struct{}{}
		c, err := store.RetrieveCommit(ctx, cur)
		if err != nil {
			return nil, err
		}
		cur = c.Parent
	}
	return set, nil
}

// treeFileMap flattens a tree into relPath -> Entry, mirroring
// collectTreeFiles but without pulling missing subtrees from a remote (the
// objects rebase touches are always already local, by construction).
func treeFileMap(ctx context.Context, store *object.Store, treeHash object.Hash) (map[string]object.Entry, error) {
	out := map[string]object.Entry{}
	if treeHash == "" {
		return out, nil
	}
	var walk func(hash object.Hash, dir string) error
	walk = func(hash object.Hash, dir string) error {
		t, err := store.RetrieveTree(ctx, hash)
		if err != nil {
			return err
		}
		for _, e := range t.Entries {
			p := joinRelPath(dir, e.Name)
			if e.Mode == object.ModeDirectory {
				if err := walk(e.Hash, p); err != nil {
					return err
				}
				continue
			}
			out[p] = e
		}
		return nil
	}
	if err := walk(treeHash, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// applyFileMapChange mutates base in place to reflect the file-level change
// introduced by commitFiles relative to its parent's parentFiles: additions
// and modifications upsert, deletions remove.
func applyFileMapChange(base, parentFiles, commitFiles map[string]object.Entry) {
	for path, entry := range commitFiles {
		if prev, existed := parentFiles[path]; !existed || prev.Hash != entry.Hash || prev.Mode != entry.Mode {
			base[path] = entry
		}
	}
	for path := range parentFiles {
		if _, stillPresent := commitFiles[path]; !stillPresent {
			delete(base, path)
		}
	}
}

// fileMapDirNode accumulates the immediate children of one directory over
// the course of grouping a flat relPath -> Entry map by directory.
type fileMapDirNode struct {
	files map[string]object.Entry
	dirs  map[string]bool
}

// buildTreeFromFileMap groups a flat relPath -> Entry map by directory and
// recursively stores Tree objects bottom-up, returning the root hash.
func buildTreeFromFileMap(ctx context.Context, store *object.Store, files map[string]object.Entry) (object.Hash, error) {
	idx := map[string]*fileMapDirNode{}
	ensure := func(d string) *fileMapDirNode {
		if idx[d] == nil {
			idx[d] = &fileMapDirNode{files: map[string]object.Entry{}, dirs: map[string]bool{}}
		}
		return idx[d]
	}
	ensure("")

	for p, entry := range files {
		dir := ""
		name := p
		if i := lastSlash(p); i >= 0 {
			dir = p[:i]
			name = p[i+1:]
		}
		ensure(dir).files[name] = entry

		cur := ""
		if dir != "" {
			for _, seg := range splitSlash(dir) {
				parent := cur
				ensure(parent).dirs[seg] = true
				if cur == "" {
					cur = seg
				} else {
					cur = cur + "/" + seg
				}
				ensure(cur)
			}
		}
	}

	memo := map[string]object.Hash{}
	var build func(d string) (object.Hash, error)
	build = func(d string) (object.Hash, error) {
		if h, ok := memo[d]; ok {
			return h, nil
		}
		node := idx[d]
		var entries []object.Entry
		if node != nil {
			dirNames := make([]string, 0, len(node.dirs))
			for name := range node.dirs {
				dirNames = append(dirNames, name)
			}
			sort.Strings(dirNames)
			for _, name := range dirNames {
				h, err := build(joinRelPath(d, name))
				if err != nil {
					return "", err
				}
				entries = append(entries, object.Entry{Name: name, Mode: object.ModeDirectory, Hash: h})
			}
			fileNames := make([]string, 0, len(node.files))
			for name := range node.files {
				fileNames = append(fileNames, name)
			}
			sort.Strings(fileNames)
			for _, name := range fileNames {
				entry := node.files[name]
				entries = append(entries, object.Entry{Name: name, Mode: entry.Mode, Hash: entry.Hash})
			}
		}
		h, err := store.Store(ctx, object.Tree{Entries: entries})
		if err != nil {
			return "", err
		}
		memo[d] = h
		return h, nil
	}
	return build("")
}

func lastSlash(p string) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return i
		}
	}
	return -1
}
