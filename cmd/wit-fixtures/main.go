// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Command wit-fixtures generates interop fixtures: canonical object bytes
// and hashes that other-language implementations of the encoding can
// replay and compare against, without needing a running repository.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/remote"
)

// Fixture is one interop test case: a synthetic commit graph plus the exact
// canonical bytes and hashes other-language implementations must reproduce.
type Fixture struct {
	Name        string            `json:"name"`
	RootTreeHex string            `json:"root_tree_hash"`
	CommitHex   string            `json:"commit_hash"`
	Objects     map[string]string `json:"objects"` // hash hex -> canonical bytes, hex-encoded
	Notes       string            `json:"notes,omitempty"`
}

func main() {
	outDir := flag.String("out", "testdata/fixtures", "output directory for fixtures")
	flag.Parse()

	tmp, err := os.MkdirTemp("", "wit-fixtures-store-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdtemp: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmp)

	backend, err := remote.NewDisk(tmp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open backing store: %v\n", err)
		os.Exit(1)
	}
	store := object.NewStore(backend, nil)

	fixture, err := buildBasicFixture(context.Background(), store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build fixture: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(*outDir, fixture.Name+".json")
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal %s: %v\n", fixture.Name, err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
		os.Exit(1)
	}
}

// buildBasicFixture stores a small, deterministic two-file tree plus a
// commit pointing at it, and captures every canonical encoding along the
// way so other implementations can byte-for-byte verify their own encoders.
func buildBasicFixture(ctx context.Context, store *object.Store) (Fixture, error) {
	readme := object.Blob{Content: []byte("# Test\n")}
	mainGo := object.Blob{Content: []byte("package main\n")}

	readmeHash, err := store.Store(ctx, readme)
	if err != nil {
		return Fixture{}, err
	}
	mainHash, err := store.Store(ctx, mainGo)
	if err != nil {
		return Fixture{}, err
	}

	srcTree := object.Tree{Entries: []object.Entry{
		{Name: "main.go", Mode: object.ModeNormal, Hash: mainHash},
	}}
	srcTreeHash, err := store.Store(ctx, srcTree)
	if err != nil {
		return Fixture{}, err
	}

	rootTree := object.Tree{Entries: []object.Entry{
		{Name: "README.md", Mode: object.ModeNormal, Hash: readmeHash},
		{Name: "src", Mode: object.ModeDirectory, Hash: srcTreeHash},
	}}
	rootTreeHash, err := store.Store(ctx, rootTree)
	if err != nil {
		return Fixture{}, err
	}

	commit := object.Commit{
		Tree:      rootTreeHash,
		Message:   "initial commit",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	commitHash, err := store.Store(ctx, commit)
	if err != nil {
		return Fixture{}, err
	}

	srcTreeBytes, err := object.EncodeTree(srcTree)
	if err != nil {
		return Fixture{}, err
	}
	rootTreeBytes, err := object.EncodeTree(rootTree)
	if err != nil {
		return Fixture{}, err
	}

	objects := map[string]string{
		string(readmeHash):   hex.EncodeToString(object.EncodeBlob(readme)),
		string(mainHash):     hex.EncodeToString(object.EncodeBlob(mainGo)),
		string(srcTreeHash):  hex.EncodeToString(srcTreeBytes),
		string(rootTreeHash): hex.EncodeToString(rootTreeBytes),
		string(commitHash):   hex.EncodeToString(object.EncodeCommit(commit)),
	}

	return Fixture{
		Name:        "commit_basic",
		RootTreeHex: string(rootTreeHash),
		CommitHex:   string(commitHash),
		Objects:     objects,
		Notes:       "Generated from a deterministic two-file, one-subdirectory workspace.",
	}, nil
}
