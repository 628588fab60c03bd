// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"

	"github.com/google/uuid"
)

// EventKind classifies a single progress notification delivered to an
// Observer during a mutating Repository operation.
type EventKind string

const (
	EventScanStarted     EventKind = "scan_started"
	EventScanCompleted   EventKind = "scan_completed"
	EventBlobStored      EventKind = "blob_stored"
	EventTreeStored      EventKind = "tree_stored"
	EventTreeReused      EventKind = "tree_reused"
	EventCommitStored    EventKind = "commit_stored"
	EventHeadUpdated     EventKind = "head_updated"
	EventObjectUploaded  EventKind = "object_uploaded"
	EventObjectSkipped   EventKind = "object_skipped"
	EventObjectFetched   EventKind = "object_fetched"
	EventCommitReplayed  EventKind = "commit_replayed"
	EventCheckoutWritten EventKind = "checkout_written"
)

// Event is one progress notification. OperationID correlates every event
// belonging to the same top-level call (Commit, Push, Fetch, Rebase,
// Checkout, Clone).
type Event struct {
	OperationID string
	Op          string
	Kind        EventKind
	Path        string
	Detail      string
}

// Observer receives progress notifications from a running operation.
// Delivered synchronously and in order; implementations that need async
// delivery should buffer internally.
type Observer interface {
	Progress(ctx context.Context, ev Event)
}

// NoopObserver discards every event. Used as the default when no Observer
// is configured via WithObserver.
type NoopObserver struct{}

func (NoopObserver) Progress(context.Context, Event) {}

// newOperationID mints a per-call correlation id.
func newOperationID() string {
	return uuid.New().String()
}

// operation bundles an operation id + observer + op name so call sites can
// emit events tersely.
type operation struct {
	id       string
	name     string
	observer Observer
}

func newOperation(name string, observer Observer) *operation {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &operation{id: newOperationID(), name: name, observer: observer}
}

func (o *operation) emit(ctx context.Context, kind EventKind, path, detail string) {
	o.observer.Progress(ctx, Event{OperationID: o.id, Op: o.name, Kind: kind, Path: path, Detail: detail})
}
