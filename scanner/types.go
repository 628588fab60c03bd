// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package scanner walks a working directory into a set of hashed FileRefs
// and computes the add/modify/delete change set against a previous state,
// feeding the repository engine's commit pipeline.
package scanner

import "github.com/wildcode/wit/object"

// State classifies a FileRef produced by Diff.
type State string

const (
	StateAdded    State = "added"
	StateModified State = "modified"
	StateDeleted  State = "deleted"
)

// FileRef is a transient, never-persisted record of one file observed during
// a scan or diff.
type FileRef struct {
	Path         string // relative to the scan root, slash-separated
	Hash         object.Hash
	PreviousHash object.Hash
	State        State
	Mode         object.Mode
}
