// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wildcode/wit/object"
)

// cacheEntry is one remembered (mtime, size) -> hash mapping. Never
// authoritative: ScanCached always re-hashes on any mismatch, so a stale or
// corrupted cache can only cost a slower scan, never a wrong answer.
type cacheEntry struct {
	ModTime int64       `msgpack:"1"`
	Size    int64       `msgpack:"2"`
	Hash    object.Hash `msgpack:"3"`
	Mode    object.Mode `msgpack:"4"`
}

// Cache is an mtime-keyed scan accelerator persisted as msgpack so it
// survives across process restarts, not just one process's lifetime.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// OpenCache loads (or initializes) a scan cache persisted at path.
// A missing or corrupt file yields an empty cache rather than an error,
// since the cache is purely advisory.
func OpenCache(path string) *Cache {
	c := &Cache{path: path, entries: make(map[string]cacheEntry)}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var entries map[string]cacheEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return c
	}
	c.entries = entries
	return c
}

// Save persists the cache to disk via write-then-rename.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msgpack.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("scanner: marshal cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".wit-scancache-*")
	if err != nil {
		return fmt.Errorf("scanner: create cache temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("scanner: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("scanner: close cache: %w", err)
	}
	return os.Rename(tmpName, c.path)
}

// Lookup returns the cached hash for path if its mtime/size still match,
// reporting ok=false on any miss.
func (c *Cache) Lookup(path string, modTime time.Time, size int64) (object.Hash, object.Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || e.ModTime != modTime.UnixNano() || e.Size != size {
		return "", "", false
	}
	return e.Hash, e.Mode, true
}

// Remember records a freshly computed hash for path at the given mtime/size.
func (c *Cache) Remember(path string, modTime time.Time, size int64, hash object.Hash, mode object.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = cacheEntry{ModTime: modTime.UnixNano(), Size: size, Hash: hash, Mode: mode}
}

// ScanCached behaves like Scan but consults cache for each regular file
// before hashing it, skipping the read+hash entirely on a cache hit (mtime
// and size unchanged since the last scan) and populating the cache on a
// miss. Symlinks recorded as links (the default, without
// WithFollowSymlinks) are never cached (cheap to hash; target changes are
// rare but semantically significant).
func ScanCached(base string, cache *Cache, opts ...Option) ([]FileRef, error) {
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
			refs = append(refs, FileRef{Path: rel, Hash: object.HashCanonical([]byte(target)), Mode: object.ModeSymlink})
			return nil
		}

		if hash, mode, ok := cache.Lookup(rel, info.ModTime(), info.Size()); ok {
			refs = append(refs, FileRef{Path: rel, Hash: hash, Mode: mode})
			return nil
		}

		hash, err := object.HashFile(p)
		if err != nil {
			return fmt.Errorf("scanner: hash %s: %w", rel, err)
		}
		mode := object.ModeNormal
		if info.Mode()&0o111 != 0 {
			mode = object.ModeExecutable
		}
		cache.Remember(rel, info.ModTime(), info.Size(), hash, mode)
		refs = append(refs, FileRef{Path: rel, Hash: hash, Mode: mode})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: scan %s: %w", base, err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}
