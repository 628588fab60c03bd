// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultDiskCacheEntries bounds the in-memory read cache a Disk remote
// keeps in front of the filesystem. Sized for hot-path object reads during a
// push/fetch, not as a general-purpose cache.
const DefaultDiskCacheEntries = 4096

// Disk is a Remote backed by the local filesystem, rooted at Base. It keeps
// a bounded in-memory LRU of recently read object bytes so repeated reads of
// the same object (common during reachability walks) don't re-open the file.
type Disk struct {
	Base string

	mu    sync.Mutex
	cache *lru.Cache
}

// NewDisk creates a disk-backed Remote rooted at base. base is created if
// missing.
func NewDisk(base string) (*Disk, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("remote: disk: create base %s: %w", base, err)
	}
	return &Disk{
		Base:  base,
		cache: lru.New(DefaultDiskCacheEntries),
	}, nil
}

func (d *Disk) resolve(relPath string) (string, error) {
	clean := filepath.Clean("/" + relPath)
	full := filepath.Join(d.Base, clean)
	baseAbs, err := filepath.Abs(d.Base)
	if err != nil {
		return "", err
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if fullAbs != baseAbs && !strings.HasPrefix(fullAbs, baseAbs+string(filepath.Separator)) {
		return "", &Error{Kind: KindBadResponse, Op: "resolve", Path: relPath, Err: fmt.Errorf("path escapes base")}
	}
	return fullAbs, nil
}

func (d *Disk) Exists(_ context.Context, path string) (bool, error) {
	full, err := d.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &Error{Kind: KindUnavailable, Op: "exists", Path: path, Err: err}
}

func (d *Disk) Get(_ context.Context, path string) ([]byte, error) {
	d.mu.Lock()
	if v, ok := d.cache.Get(path); ok {
		d.mu.Unlock()
		return v.([]byte), nil
	}
	d.mu.Unlock()

	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, Op: "get", Path: path, Err: ErrNotFound}
		}
		return nil, &Error{Kind: KindUnavailable, Op: "get", Path: path, Err: err}
	}

	d.mu.Lock()
	d.cache.Add(path, data)
	d.mu.Unlock()
	return data, nil
}

func (d *Disk) Put(_ context.Context, path string, data []byte, _ bool, signer Signer) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &Error{Kind: KindUnavailable, Op: "put", Path: path, Err: err}
	}

	// Write-then-rename for atomicity, as required of HEAD updates and
	// recommended for object writes in general.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".wit-tmp-*")
	if err != nil {
		return &Error{Kind: KindUnavailable, Op: "put", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Kind: KindUnavailable, Op: "put", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Kind: KindUnavailable, Op: "put", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return &Error{Kind: KindUnavailable, Op: "put", Path: path, Err: err}
	}

	d.mu.Lock()
	d.cache.Remove(path)
	d.mu.Unlock()
	return nil
}

func (d *Disk) Delete(_ context.Context, path string, _ Signer) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return &Error{Kind: KindUnavailable, Op: "delete", Path: path, Err: err}
	}
	d.mu.Lock()
	d.cache.Remove(path)
	d.mu.Unlock()
	return nil
}

func (d *Disk) List(_ context.Context, prefix string) ([]string, error) {
	full, err := d.resolve(prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(full, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Base, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: "list", Path: prefix, Err: err}
	}
	sort.Strings(out)
	return out, nil
}
