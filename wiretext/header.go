// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package wiretext implements the small MIME-ish header block framing shared
// by HEAD, commit, tree, and log records. All of these records look like a
// handful of "Key: value" lines, a blank line, then a body — the same shape
// net/mail and net/textproto were built for, just without the rest of the
// email stack.
package wiretext

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"sort"
)

// Field is one header line. Order is preserved on encode because the
// canonical bytes that get hashed must be byte-for-byte stable.
type Field struct {
	Key   string
	Value string
}

// WriteHeaderBlock renders fields (in the order given) followed by a blank
// line and body. contentType, when non-empty, is written as the first field
// ("Content-Type: ..."); it exists as a parameter mainly so callers don't
// have to remember to put it first in fields themselves.
func WriteHeaderBlock(contentType string, fields []Field, body []byte) []byte {
	var buf bytes.Buffer
	if contentType != "" {
		fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	}
	for _, f := range fields {
		fmt.Fprintf(&buf, "%s: %s\r\n", f.Key, f.Value)
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

// HeaderBlock is a parsed header block: field order from the wire (for
// re-encoding), a case-insensitive lookup, and the raw body bytes.
type HeaderBlock struct {
	Fields []Field
	Header textproto.MIMEHeader
	Body   []byte
}

// Get returns the first value for key (case-insensitive), or "".
func (b *HeaderBlock) Get(key string) string {
	return b.Header.Get(key)
}

// ParseHeaderBlock splits raw into a header block and trailing body using
// textproto's MIME header reader, then recovers field order (textproto's
// MIMEHeader is a map and loses it) by re-scanning the raw header lines.
func ParseHeaderBlock(raw []byte) (*HeaderBlock, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	hdr, err := r.ReadMIMEHeader()
	if err != nil && len(hdr) == 0 {
		return nil, fmt.Errorf("wiretext: parse header block: %w", err)
	}

	fields, bodyOffset, ferr := scanFieldOrder(raw)
	if ferr != nil {
		return nil, ferr
	}

	return &HeaderBlock{
		Fields: fields,
		Header: hdr,
		Body:   raw[bodyOffset:],
	}, nil
}

// scanFieldOrder walks raw line by line to recover header field order and
// the byte offset where the body begins (just past the blank line).
func scanFieldOrder(raw []byte) ([]Field, int, error) {
	var fields []Field
	offset := 0
	for offset < len(raw) {
		nl := bytes.IndexByte(raw[offset:], '\n')
		if nl < 0 {
			return nil, 0, fmt.Errorf("wiretext: unterminated header block")
		}
		line := raw[offset : offset+nl]
		offset += nl + 1

		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			return fields, offset, nil
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return nil, 0, fmt.Errorf("wiretext: malformed header line %q", line)
		}
		key := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		fields = append(fields, Field{Key: key, Value: value})
	}
	return nil, 0, fmt.Errorf("wiretext: header block missing blank line")
}

// SortedFieldNames is a small helper for callers that want a deterministic
// field order when they didn't receive one from the wire (e.g. constructing
// a fresh record) but don't want to hand-maintain ordering logic themselves.
func SortedFieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Key
	}
	sort.Strings(names)
	return names
}
