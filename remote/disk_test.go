// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"testing"
)

func TestDisk_PutGetExists(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	ok, err := d.Exists(ctx, "objects/blobs/ab/cdef")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected absent object to not exist")
	}

	if err := d.Put(ctx, "objects/blobs/ab/cdef", []byte("hello"), false, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err = d.Exists(ctx, "objects/blobs/ab/cdef")
	if err != nil || !ok {
		t.Fatalf("Exists after put = %v, %v", ok, err)
	}

	data, err := d.Get(ctx, "objects/blobs/ab/cdef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Get = %q, want %q", data, "hello")
	}
}

func TestDisk_GetMissing(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	_, err = d.Get(context.Background(), "objects/blobs/ab/cdef")
	if !IsNotFound(err) {
		t.Fatalf("Get missing = %v, want NotFound", err)
	}
}

func TestDisk_PathTraversalRejected(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	_, err = d.Exists(context.Background(), "../../../etc/passwd")
	if err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}

func TestDisk_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	if err := d.Delete(ctx, "objects/blobs/ab/cdef", nil); err != nil {
		t.Fatalf("Delete on absent object: %v", err)
	}
	if err := d.Put(ctx, "objects/blobs/ab/cdef", []byte("x"), false, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.Delete(ctx, "objects/blobs/ab/cdef", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete(ctx, "objects/blobs/ab/cdef", nil); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestDisk_ListUnderPrefix(t *testing.T) {
	ctx := context.Background()
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	for _, p := range []string{"objects/blobs/ab/1", "objects/blobs/ab/2", "objects/trees/cd/3"} {
		if err := d.Put(ctx, p, []byte("x"), false, nil); err != nil {
			t.Fatalf("Put %s: %v", p, err)
		}
	}
	got, err := d.List(ctx, "objects/blobs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d entries, want 2: %v", len(got), got)
	}
}
