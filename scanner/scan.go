// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/wildcode/wit/object"
)

// Scan walks the working directory rooted at base, skipping ignored paths,
// and returns one FileRef per regular file (and, when not following
// symlinks, one per symlink), sorted by path.
func Scan(base string, opts ...Option) ([]FileRef, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var refs []FileRef
	err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == base {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if o.shouldIgnore(rel, entry.IsDir()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("scanner: stat %s: %w", rel, err)
		}

		if info.Mode()&fs.ModeSymlink != 0 && !o.followSymlinks {
			target, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("scanner: readlink %s: %w", rel, err)
			}
			h := object.HashCanonical([]byte(target))
			refs = append(refs, FileRef{Path: rel, Hash: h, Mode: object.ModeSymlink})
			return nil
		}

		h, err := object.HashFile(p)
		if err != nil {
			return fmt.Errorf("scanner: hash %s: %w", rel, err)
		}

		mode := object.ModeNormal
		if info.Mode()&0o111 != 0 {
			mode = object.ModeExecutable
		}
		refs = append(refs, FileRef{Path: rel, Hash: h, Mode: mode})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: scan %s: %w", base, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// Diff compares current refs against previous refs (typically derived from
// a parent commit's tree) and returns the FileRefs that changed, each
// tagged with its State. Unchanged files are omitted.
func Diff(current, previous []FileRef) []FileRef {
	currentByPath := make(map[string]FileRef, len(current))
	for _, r := range current {
		currentByPath[r.Path] = r
	}
	previousByPath := make(map[string]FileRef, len(previous))
	for _, r := range previous {
		previousByPath[r.Path] = r
	}

	var changes []FileRef
	for path, cur := range currentByPath {
		if prev, ok := previousByPath[path]; ok {
			if prev.Hash != cur.Hash {
				cur.State = StateModified
				cur.PreviousHash = prev.Hash
				changes = append(changes, cur)
			}
			continue
		}
		cur.State = StateAdded
		changes = append(changes, cur)
	}
	for path, prev := range previousByPath {
		if _, ok := currentByPath[path]; !ok {
			prev.State = StateDeleted
			prev.PreviousHash = prev.Hash
			prev.Hash = ""
			changes = append(changes, prev)
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
