// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package wit implements the repository engine: working-directory scanning,
// incremental tree rebuild, the commit/checkout pipeline, and the
// fetch/push/rebase/clone synchronization protocol, all built on package
// object's content-addressed store and package remote's transport
// abstraction.
package wit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/remote"
	"github.com/wildcode/wit/scanner"
)

const metaDirName = ".wild"

// Repository is one logical working-directory-plus-metadata repository, the
// high-level entry point tying together scanning, object storage, and
// remote synchronization. Every mutating method serializes behind r's
// single-writer discipline: callers MUST NOT invoke two mutating methods on
// the same Repository concurrently.
type Repository struct {
	Base string // working directory root

	Objects *object.Store // local object store, rooted at .wild/objects
	local   remote.Remote // local .wild/ backing store (HEAD, logs, config)

	Observer Observer
	Logger   *slog.Logger
	cache    *scanner.Cache

	scanOpts []scanner.Option

	remoteName    string
	remoteConfig  RemoteConfig
	remoteObjects *object.Store // set by UseRemote or Clone; nil until then
	remoteRaw     remote.Remote
	remoteSigner  remote.Signer
}

// Option configures a Repository at Open/Init time.
type Option func(*Repository)

// WithObserver sets the progress observer for mutating operations.
func WithObserver(o Observer) Option {
	return func(r *Repository) { r.Observer = o }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.Logger = l }
}

// WithScanOptions forwards extra scanner.Options (ignore patterns, symlink
// handling) to every working-directory scan this Repository performs.
func WithScanOptions(opts ...scanner.Option) Option {
	return func(r *Repository) { r.scanOpts = append(r.scanOpts, opts...) }
}

func newRepository(base string, opts ...Option) (*Repository, error) {
	meta := filepath.Join(base, metaDirName)
	local, err := remote.NewDisk(meta)
	if err != nil {
		return nil, fmt.Errorf("wit: open metadata store: %w", err)
	}

	r := &Repository{
		Base:    base,
		Objects: object.NewStore(local, nil),
		local:   local,
		Logger:  slog.Default(),
		cache:   scanner.OpenCache(filepath.Join(meta, "scancache")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Observer == nil {
		r.Observer = NoopObserver{}
	}
	return r, nil
}

// Init creates a new, empty repository rooted at base.
func Init(base string, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("wit: init %s: %w", base, err)
	}
	return newRepository(base, opts...)
}

// Open opens an existing repository rooted at base. Does not require any
// commits to exist yet — an initialized-but-empty repository opens fine.
func Open(base string, opts ...Option) (*Repository, error) {
	meta := filepath.Join(base, metaDirName)
	if _, err := os.Stat(meta); err != nil {
		return nil, fmt.Errorf("wit: open %s: not a wit repository: %w", base, err)
	}
	return newRepository(base, opts...)
}

// HEAD returns the current local HEAD commit hash, and false if no commits
// exist yet.
func (r *Repository) HEAD(ctx context.Context) (object.Hash, bool, error) {
	return readHead(ctx, r.local, "HEAD")
}

// Config loads .wild/config, if present.
func (r *Repository) Config() (*Config, error) {
	return LoadConfig(filepath.Join(r.Base, metaDirName, "config"))
}

func (r *Repository) scan() ([]scanner.FileRef, error) {
	return scanner.ScanCached(r.Base, r.cache, r.scanOpts...)
}

// UseRemote loads .wild/config and wires the named remote (or the
// core.remote default, if name is "") as the repository's sync target for
// Fetch/Push/Rebase/Checkout's on-demand object hydration.
func (r *Repository) UseRemote(name string) error {
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	var rc RemoteConfig
	if name == "" {
		rc, err = cfg.DefaultRemote()
	} else {
		var ok bool
		rc, ok = cfg.Remotes[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingRemote, name)
		}
	}
	if err != nil {
		return err
	}

	rem, signer, err := rc.Build()
	if err != nil {
		return err
	}
	r.remoteName = rc.Name
	r.remoteConfig = rc
	r.remoteRaw = rem
	r.remoteSigner = signer
	r.remoteObjects = object.NewStore(rem, signer)
	return nil
}

// remoteHeadPath and remoteLogPath are where this repository's local mirror
// of the remote's HEAD/log live, separate from the remote's own copies.
func (r *Repository) remoteHeadPath() string {
	return "remotes/" + r.remoteName + "/HEAD"
}

func (r *Repository) remoteLogPath() string {
	return "remotes/" + r.remoteName + "/logs"
}

// refsFromTree recursively expands a tree into the flat set of FileRefs it
// would produce if scanned directly, so change detection can compare a live
// scan against "the files a parent commit describes" without ever touching
// the filesystem for the parent side.
func refsFromTree(ctx context.Context, store *object.Store, rootHash object.Hash) ([]scanner.FileRef, error) {
	var refs []scanner.FileRef
	var walk func(dir string, hash object.Hash) error
	walk = func(dir string, hash object.Hash) error {
		t, err := store.RetrieveTree(ctx, hash)
		if err != nil {
			return fmt.Errorf("wit: expand tree %s: %w", hash, err)
		}
		for _, e := range t.Entries {
			p := joinRelPath(dir, e.Name)
			if e.Mode == object.ModeDirectory {
				if err := walk(p, e.Hash); err != nil {
					return err
				}
				continue
			}
			refs = append(refs, scanner.FileRef{Path: p, Hash: e.Hash, Mode: e.Mode})
		}
		return nil
	}
	if rootHash != "" {
		if err := walk("", rootHash); err != nil {
			return nil, err
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

func joinRelPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// dirNode accumulates the immediate children (files and subdirectories) of
// one directory as observed in a live scan, used by rebuildTree.
type dirNode struct {
	files map[string]scanner.FileRef
	dirs  map[string]bool
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]scanner.FileRef{}, dirs: map[string]bool{}}
}

// buildDirIndex groups a flat, current FileRef list by containing directory,
// registering every intermediate directory along the way — this is the
// "current directory entries" input the incremental rebuild algorithm reads
// per directory, derived from the scan that already ran rather than a second
// live filesystem listing.
func buildDirIndex(refs []scanner.FileRef) map[string]*dirNode {
	idx := map[string]*dirNode{"": newDirNode()}
	ensure := func(d string) *dirNode {
		if idx[d] == nil {
			idx[d] = newDirNode()
		}
		return idx[d]
	}

	for _, ref := range refs {
		dir := path.Dir(ref.Path)
		if dir == "." {
			dir = ""
		}
		name := path.Base(ref.Path)
		ensure(dir).files[name] = ref

		// Register every ancestor directory as a subdirectory entry of its
		// own parent.
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
	return idx
}

func splitSlash(p string) []string {
	if p == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			parts = append(parts, p[start:i])
			start = i + 1
		}
	}
	parts = append(parts, p[start:])
	return parts
}

// loadPreviousTreeHashes recursively loads every subtree hash reachable
// from rootHash, keyed by its directory path, so rebuildTree can answer "did
// this directory's hash change" without re-deriving the whole tree.
func loadPreviousTreeHashes(ctx context.Context, store *object.Store, rootHash object.Hash) (map[string]object.Hash, error) {
	hashes := map[string]object.Hash{}
	if rootHash == "" {
		return hashes, nil
	}
	hashes[""] = rootHash

	var walk func(dir string, hash object.Hash) error
	walk = func(dir string, hash object.Hash) error {
		t, err := store.RetrieveTree(ctx, hash)
		if err != nil {
			return fmt.Errorf("wit: load previous tree %s: %w", hash, err)
		}
		for _, e := range t.Entries {
			if e.Mode != object.ModeDirectory {
				continue
			}
			p := joinRelPath(dir, e.Name)
			hashes[p] = e.Hash
			if err := walk(p, e.Hash); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", rootHash); err != nil {
		return nil, err
	}
	return hashes, nil
}

// changedDirsFrom marks every ancestor directory (including root) of every
// changed file's path as changed.
func changedDirsFrom(changes []scanner.FileRef) map[string]bool {
	dirs := map[string]bool{"": true}
	for _, c := range changes {
		dir := path.Dir(c.Path)
		if dir == "." {
			dir = ""
		}
		cur := ""
		dirs[""] = true
		if dir != "" {
			for _, seg := range splitSlash(dir) {
				if cur == "" {
					cur = seg
				} else {
					cur = cur + "/" + seg
				}
				dirs[cur] = true
			}
		}
	}
	return dirs
}

// rebuildTree performs the incremental tree rebuild: directories with
// nothing changed beneath them reuse their previous subtree hash verbatim
// (no new object written); directories that changed are rebuilt bottom-up
// from the current, live directory index.
func rebuildTree(ctx context.Context, store *object.Store, currentRefs, changes []scanner.FileRef, previousRoot object.Hash) (object.Hash, error) {
	idx := buildDirIndex(currentRefs)
	prevHashes, err := loadPreviousTreeHashes(ctx, store, previousRoot)
	if err != nil {
		return "", err
	}
	changedDirs := changedDirsFrom(changes)
	memo := map[string]object.Hash{}

	var rebuildDir func(d string) (object.Hash, error)
	rebuildDir = func(d string) (object.Hash, error) {
		if h, ok := memo[d]; ok {
			return h, nil
		}
		if !changedDirs[d] {
			if prevHash, ok := prevHashes[d]; ok {
				memo[d] = prevHash
				return prevHash, nil
			}
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
				childHash, err := rebuildDir(joinRelPath(d, name))
				if err != nil {
					return "", err
				}
				entries = append(entries, object.Entry{Name: name, Mode: object.ModeDirectory, Hash: childHash})
			}

			fileNames := make([]string, 0, len(node.files))
			for name := range node.files {
				fileNames = append(fileNames, name)
			}
			sort.Strings(fileNames)
			for _, name := range fileNames {
				ref := node.files[name]
				entries = append(entries, object.Entry{Name: name, Mode: ref.Mode, Hash: ref.Hash})
			}
		}

		h, err := store.Store(ctx, object.Tree{Entries: entries})
		if err != nil {
			return "", err
		}
		memo[d] = h
		return h, nil
	}

	return rebuildDir("")
}
