// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wildcode/wit/wiretext"
)

// ContentTypeTree and ContentTypeCommit are the canonical MIME-ish content
// types for the two structured object kinds: a tree is CSV rows framed in a
// header block, reusing the same CSV helper the commit log uses.
const (
	ContentTypeTree   = "text/csv; profile=tree"
	ContentTypeCommit = "text/x-wild-commit"
)

var treeCSVHeader = []string{"hash", "mode", "name"}

// HashCanonical returns the canonical SHA-256 hash of canonical bytes,
// rendered as 64 lowercase hex characters.
func HashCanonical(canonical []byte) Hash {
	sum := sha256.Sum256(canonical)
	return Hash(hex.EncodeToString(sum[:]))
}

// EncodeBlob returns a blob's canonical bytes: simply its raw content.
func EncodeBlob(b Blob) []byte {
	return b.Content
}

// EncodeTree returns a tree's canonical bytes: entries sorted by name,
// framed as CSV (hash,mode,name) inside a MIME-ish header block.
func EncodeTree(t Tree) ([]byte, error) {
	sorted := make([]Entry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	rows := make([][]string, len(sorted))
	for i, e := range sorted {
		rows[i] = []string{string(e.Hash), string(e.Mode), e.Name}
	}

	body, err := wiretext.WriteCSVRecords(treeCSVHeader, rows)
	if err != nil {
		return nil, fmt.Errorf("object: encode tree: %w", err)
	}
	return wiretext.WriteHeaderBlock(ContentTypeTree, nil, body), nil
}

// DecodeTree parses canonical tree bytes produced by EncodeTree.
func DecodeTree(data []byte) (Tree, error) {
	block, err := wiretext.ParseHeaderBlock(data)
	if err != nil {
		return Tree{}, fmt.Errorf("object: decode tree: %w", err)
	}
	if ct := block.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/csv") {
		return Tree{}, fmt.Errorf("object: decode tree: unexpected content-type %q", ct)
	}

	header, rows, err := wiretext.ReadCSVRecords(block.Body, true)
	if err != nil {
		return Tree{}, fmt.Errorf("object: decode tree: %w", err)
	}
	if len(header) != 3 || header[0] != "hash" || header[1] != "mode" || header[2] != "name" {
		return Tree{}, fmt.Errorf("object: decode tree: unexpected csv header %v", header)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		if len(row) != 3 {
			return Tree{}, fmt.Errorf("object: decode tree: malformed row %v", row)
		}
		entries = append(entries, Entry{Hash: Hash(row[0]), Mode: Mode(row[1]), Name: row[2]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Tree{Entries: entries}, nil
}

// timeLayout is RFC 1123 rendered in UTC, the canonical form for every
// Date/timestamp field this package writes.
const timeLayout = time.RFC1123

// EncodeCommit returns a commit's canonical bytes: a MIME-ish header block
// with Date, Content-Type, Wild-Tree, optional Wild-Parent, then the
// message as the body.
func EncodeCommit(c Commit) []byte {
	fields := []wiretext.Field{
		{Key: "Date", Value: c.Timestamp.UTC().Format(timeLayout)},
		{Key: "Content-Type", Value: ContentTypeCommit},
		{Key: "Wild-Tree", Value: string(c.Tree)},
	}
	if c.HasParent() {
		fields = append(fields, wiretext.Field{Key: "Wild-Parent", Value: string(c.Parent)})
	}
	return wiretext.WriteHeaderBlock("", fields, []byte(c.Message))
}

// DecodeCommit parses canonical commit bytes produced by EncodeCommit.
// Tolerates absence of Wild-Parent as "no parent".
func DecodeCommit(data []byte) (Commit, error) {
	block, err := wiretext.ParseHeaderBlock(data)
	if err != nil {
		return Commit{}, fmt.Errorf("object: decode commit: %w", err)
	}

	dateStr := block.Get("Date")
	ts, err := time.Parse(timeLayout, dateStr)
	if err != nil {
		return Commit{}, fmt.Errorf("object: decode commit: parse date %q: %w", dateStr, err)
	}

	tree := block.Get("Wild-Tree")
	if tree == "" {
		return Commit{}, fmt.Errorf("object: decode commit: missing Wild-Tree")
	}

	return Commit{
		Tree:      Hash(tree),
		Parent:    Hash(block.Get("Wild-Parent")),
		Message:   string(block.Body),
		Timestamp: ts,
	}, nil
}
