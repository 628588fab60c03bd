// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestCheckoutLeavesUnchangedFileMtimeAlone commits a file, checks the same
// commit out again without touching the working copy in between, and
// asserts the file's mtime wasn't disturbed — Checkout should recognize it
// already matches the target tree and skip rewriting it.
func TestCheckoutLeavesUnchangedFileMtimeAlone(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	r, err := Init(base)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	writeFile(t, base, "README.md", "hello\n")
	head, err := r.Commit(ctx, "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	full := filepath.Join(base, "README.md")
	// Back-date the file so a rewrite would be detectable: a fresh write
	// always lands at "now", which could coincidentally equal the original
	// mtime on a low-resolution filesystem clock, but never an earlier time.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(full, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := r.Checkout(ctx, head); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	info, err := os.Stat(full)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.ModTime().Equal(past) {
		t.Fatalf("mtime after no-op checkout = %v, want untouched %v", info.ModTime(), past)
	}
}

// TestCheckoutRewritesModifiedFile is the converse: a file whose on-disk
// content diverges from the target tree must still be rewritten.
func TestCheckoutRewritesModifiedFile(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	r, err := Init(base)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	writeFile(t, base, "README.md", "hello\n")
	head, err := r.Commit(ctx, "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	writeFile(t, base, "README.md", "tampered\n")

	if err := r.Checkout(ctx, head); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(base, "README.md"))
	if err != nil || string(got) != "hello\n" {
		t.Fatalf("README.md after checkout = %q, %v, want %q", got, err, "hello\n")
	}
}
