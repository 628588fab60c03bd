// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/remote"
	"github.com/wildcode/wit/wiretext"
)

const (
	contentTypeHeadPlain = "text/plain"
	contentTypeLogCSV    = "text/csv; profile=logs"
)

var logCSVHeader = []string{"timestamp", "hash", "parent", "message"}

// readHead reads the HEAD record at path (".wild/HEAD" or
// ".wild/remotes/origin/HEAD"). A missing file or an empty body both mean
// "no commits yet" and are reported as ("", false, nil), not an error: an
// absent HEAD is a normal, representable state.
func readHead(ctx context.Context, r remote.Remote, path string) (object.Hash, bool, error) {
	data, err := r.Get(ctx, path)
	if err != nil {
		if remote.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("wit: read HEAD %s: %w", path, err)
	}

	block, err := wiretext.ParseHeaderBlock(data)
	if err != nil {
		return "", false, fmt.Errorf("wit: parse HEAD %s: %w", path, err)
	}
	body := strings.TrimSpace(string(block.Body))
	if body == "" {
		return "", false, nil
	}
	return object.Hash(body), true, nil
}

// requireHead is readHead for callers to whom an absent HEAD is a
// precondition failure rather than a legitimate empty state.
func requireHead(ctx context.Context, r remote.Remote, path string) (object.Hash, error) {
	h, ok, err := readHead(ctx, r, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrMissingHEAD
	}
	return h, nil
}

// writeHead atomically replaces the HEAD record at path. Remote.Put is
// required to be write-then-rename (or backend-equivalent), which is how
// remote.Disk implements it.
func writeHead(ctx context.Context, r remote.Remote, path string, hash object.Hash, signer remote.Signer) error {
	body := wiretext.WriteHeaderBlock(contentTypeHeadPlain, []wiretext.Field{
		{Key: "Date", Value: time.Now().UTC().Format(time.RFC1123)},
	}, []byte(hash))
	if err := r.Put(ctx, path, body, false, signer); err != nil {
		return fmt.Errorf("wit: write HEAD %s: %w", path, err)
	}
	return nil
}

// appendLog appends one record to the CSV log at path. Best-effort: logs
// are advisory, not authoritative, so callers must tolerate this being
// re-run after a partial failure without treating a duplicate or missing
// line as corruption.
func appendLog(ctx context.Context, r remote.Remote, path string, timestamp time.Time, hash, parent object.Hash, message string) error {
	var rows [][]string

	existing, err := r.Get(ctx, path)
	if err == nil {
		block, perr := wiretext.ParseHeaderBlock(existing)
		if perr == nil {
			_, parsedRows, rerr := wiretext.ReadCSVRecords(block.Body, true)
			if rerr == nil {
				rows = parsedRows
			}
		}
	} else if !remote.IsNotFound(err) {
		return fmt.Errorf("wit: read log %s: %w", path, err)
	}

	rows = append(rows, []string{timestamp.UTC().Format(time.RFC1123), string(hash), string(parent), message})

	body, err := wiretext.WriteCSVRecords(logCSVHeader, rows)
	if err != nil {
		return fmt.Errorf("wit: encode log %s: %w", path, err)
	}
	framed := wiretext.WriteHeaderBlock(contentTypeLogCSV, nil, body)
	if err := r.Put(ctx, path, framed, false, nil); err != nil {
		return fmt.Errorf("wit: write log %s: %w", path, err)
	}
	return nil
}

// LogRecord is one parsed line of a commit log.
type LogRecord struct {
	Timestamp time.Time
	Hash      object.Hash
	Parent    object.Hash
	Message   string
}

// readLog parses the CSV log at path, returning its records in append order.
func readLog(ctx context.Context, r remote.Remote, path string) ([]LogRecord, error) {
	data, err := r.Get(ctx, path)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wit: read log %s: %w", path, err)
	}
	block, err := wiretext.ParseHeaderBlock(data)
	if err != nil {
		return nil, fmt.Errorf("wit: parse log %s: %w", path, err)
	}
	_, rows, err := wiretext.ReadCSVRecords(block.Body, true)
	if err != nil {
		return nil, fmt.Errorf("wit: parse log csv %s: %w", path, err)
	}

	records := make([]LogRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			continue
		}
		ts, err := time.Parse(time.RFC1123, row[0])
		if err != nil {
			continue
		}
		records = append(records, LogRecord{Timestamp: ts, Hash: object.Hash(row[1]), Parent: object.Hash(row[2]), Message: row[3]})
	}
	return records, nil
}
