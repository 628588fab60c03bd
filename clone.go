// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"fmt"

	"github.com/wildcode/wit/object"
)

// CloneOptions configures Clone.
type CloneOptions struct {
	// Bare skips materializing a working directory after cloning.
	Bare bool
	// Optimistic skips downloading blobs up front; they are fetched lazily
	// on read/checkout instead, leaving the local store consistent (every
	// tree/commit object present) but partial.
	Optimistic bool
}

// Clone initializes a new repository at base from a remote configuration,
// copying local HEAD, config, logs, and the reachable object set (minus
// blobs, when opts.Optimistic), then checking out the working directory
// unless opts.Bare.
func Clone(ctx context.Context, base string, rc RemoteConfig, opts CloneOptions, ropts ...Option) (*Repository, error) {
	r, err := Init(base, ropts...)
	if err != nil {
		return nil, fmt.Errorf("wit: clone: init %s: %w", base, err)
	}

	rem, signer, err := rc.Build()
	if err != nil {
		return nil, fmt.Errorf("wit: clone: build remote: %w", err)
	}
	r.remoteName = rc.Name
	if r.remoteName == "" {
		r.remoteName = "origin"
	}
	r.remoteConfig = rc
	r.remoteRaw = rem
	r.remoteSigner = signer
	r.remoteObjects = object.NewStore(rem, signer)

	op := newOperation("clone", r.Observer)

	remoteHead, ok, err := readHead(ctx, rem, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("wit: clone: read remote HEAD: %w", err)
	}
	if !ok {
		return nil, ErrMissingHEAD
	}

	if cfgData, err := rem.Get(ctx, "config"); err == nil {
		if err := r.local.Put(ctx, "config", cfgData, false, nil); err != nil {
			return nil, fmt.Errorf("wit: clone: copy config: %w", err)
		}
	}
	if secretsData, err := rem.Get(ctx, "secrets"); err == nil {
		if err := r.local.Put(ctx, "secrets", secretsData, false, nil); err != nil {
			return nil, fmt.Errorf("wit: clone: copy secrets: %w", err)
		}
	}
	records, err := readLog(ctx, rem, "logs")
	if err != nil {
		return nil, fmt.Errorf("wit: clone: read remote log: %w", err)
	}
	for _, rec := range records {
		if err := appendLog(ctx, r.local, "logs", rec.Timestamp, rec.Hash, rec.Parent, rec.Message); err != nil {
			r.Logger.Warn("clone: copy log line failed", "error", err)
			break
		}
	}

	reach, err := r.remoteObjects.Reachable(ctx, remoteHead)
	if err != nil {
		return nil, fmt.Errorf("wit: clone: enumerate remote objects: %w", err)
	}
	for ref := range reach {
		if opts.Optimistic && ref.Kind == object.KindBlob {
			op.emit(ctx, EventObjectSkipped, string(ref.Hash), string(ref.Kind))
			continue
		}
		obj, err := r.remoteObjects.Retrieve(ctx, ref.Kind, ref.Hash)
		if err != nil {
			return nil, fmt.Errorf("wit: clone: download %s %s: %w", ref.Kind, ref.Hash, err)
		}
		if _, err := r.Objects.Store(ctx, obj); err != nil {
			return nil, fmt.Errorf("wit: clone: store %s %s: %w", ref.Kind, ref.Hash, err)
		}
		op.emit(ctx, EventObjectFetched, string(ref.Hash), string(ref.Kind))
	}

	if err := writeHead(ctx, r.local, "HEAD", remoteHead, nil); err != nil {
		return nil, fmt.Errorf("wit: clone: write local HEAD: %w", err)
	}
	if err := writeHead(ctx, r.local, r.remoteHeadPath(), remoteHead, nil); err != nil {
		return nil, fmt.Errorf("wit: clone: write tracking HEAD: %w", err)
	}
	op.emit(ctx, EventHeadUpdated, "", string(remoteHead))

	if !opts.Bare {
		if err := r.Checkout(ctx, remoteHead); err != nil {
			return nil, fmt.Errorf("wit: clone: checkout: %w", err)
		}
	}

	return r, nil
}
