// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/remote"
)

// newWildTestServer exposes d over HTTP using the same exists/get/put/delete
// contract remote.HTTP speaks, so Clone can be exercised end-to-end through
// a real RemoteConfig rather than by reaching into unexported fields.
func newWildTestServer(t *testing.T, d *remote.Disk) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		p := strings.TrimPrefix(req.URL.Path, "/")
		switch req.Method {
		case http.MethodHead:
			ok, err := d.Exists(ctx, p)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodGet:
			if req.URL.Query().Get("list-type") == "2" {
				entries, err := d.List(ctx, req.URL.Query().Get("prefix"))
				if err != nil {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				io.WriteString(w, strings.Join(entries, "\n"))
				return
			}
			data, err := d.Get(ctx, p)
			if remote.IsNotFound(err) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write(data)

		case http.MethodPut:
			body, err := io.ReadAll(req.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if err := d.Put(ctx, p, body, req.Header.Get("X-Wild-Is-Directory") == "1", nil); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodDelete:
			if err := d.Delete(ctx, p, nil); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCloneReproducesWorkingTreeAndObjects(t *testing.T) {
	ctx := context.Background()

	remoteWorkBase := t.TempDir()
	remoteRepo, err := Init(remoteWorkBase)
	if err != nil {
		t.Fatalf("Init remote: %v", err)
	}
	writeFile(t, remoteWorkBase, "README.md", "hello\n")
	writeFile(t, remoteWorkBase, "src/main.go", "package main\n")
	remoteHead, err := remoteRepo.Commit(ctx, "first")
	if err != nil {
		t.Fatalf("remote Commit: %v", err)
	}

	diskBase := t.TempDir()
	disk, err := remote.NewDisk(diskBase)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	srv := newWildTestServer(t, disk)

	rc := RemoteConfig{Name: "origin", Kind: RemoteKindWild, URL: srv.URL}
	rawRemote, _, err := rc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Seed the served disk with exactly what the source repository produced,
	// standing in for "someone already pushed to this remote".
	for _, p := range []string{"HEAD", "logs"} {
		data, err := remoteRepo.local.Get(ctx, p)
		if err != nil {
			t.Fatalf("read local %s: %v", p, err)
		}
		if err := rawRemote.Put(ctx, p, data, false, nil); err != nil {
			t.Fatalf("seed remote %s: %v", p, err)
		}
	}
	reach, err := remoteRepo.Objects.Reachable(ctx, remoteHead)
	if err != nil {
		t.Fatalf("Reachable: %v", err)
	}
	remoteObjStore := remoteRepo.Objects
	servedObjStore := object.NewStore(rawRemote, nil)
	for ref := range reach {
		obj, err := remoteObjStore.Retrieve(ctx, ref.Kind, ref.Hash)
		if err != nil {
			t.Fatalf("retrieve %s %s: %v", ref.Kind, ref.Hash, err)
		}
		if _, err := servedObjStore.Store(ctx, obj); err != nil {
			t.Fatalf("seed object %s %s: %v", ref.Kind, ref.Hash, err)
		}
	}

	cloneBase := t.TempDir()
	cloned, err := Clone(ctx, cloneBase, rc, CloneOptions{})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	clonedHead, ok, err := cloned.HEAD(ctx)
	if err != nil || !ok || clonedHead != remoteHead {
		t.Fatalf("cloned HEAD = (%s, %v, %v), want (%s, true, nil)", clonedHead, ok, err, remoteHead)
	}

	clonedReach, err := cloned.Objects.Reachable(ctx, clonedHead)
	if err != nil {
		t.Fatalf("Reachable on clone: %v", err)
	}
	for ref := range clonedReach {
		if ok, err := cloned.Objects.Exists(ctx, ref.Kind, ref.Hash); err != nil || !ok {
			t.Fatalf("clone missing reachable object %s %s: %v", ref.Kind, ref.Hash, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(cloneBase, "README.md"))
	if err != nil || string(got) != "hello\n" {
		t.Fatalf("cloned README.md = %q, %v, want %q", got, err, "hello\n")
	}
	got, err = os.ReadFile(filepath.Join(cloneBase, "src/main.go"))
	if err != nil || string(got) != "package main\n" {
		t.Fatalf("cloned src/main.go = %q, %v, want %q", got, err, "package main\n")
	}
}

func TestCloneWithoutRemoteHEADFails(t *testing.T) {
	diskBase := t.TempDir()
	disk, err := remote.NewDisk(diskBase)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	srv := newWildTestServer(t, disk)
	rc := RemoteConfig{Name: "origin", Kind: RemoteKindWild, URL: srv.URL}

	_, err = Clone(context.Background(), t.TempDir(), rc, CloneOptions{})
	if err != ErrMissingHEAD {
		t.Fatalf("err = %v, want ErrMissingHEAD", err)
	}
}

func TestCloneBareSkipsCheckout(t *testing.T) {
	ctx := context.Background()

	remoteRepo, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init remote: %v", err)
	}
	writeFile(t, remoteRepo.Base, "a.txt", "a\n")
	remoteHead, err := remoteRepo.Commit(ctx, "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	diskBase := t.TempDir()
	disk, err := remote.NewDisk(diskBase)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	srv := newWildTestServer(t, disk)
	rc := RemoteConfig{Name: "origin", Kind: RemoteKindWild, URL: srv.URL}
	rawRemote, _, err := rc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	headData, err := remoteRepo.local.Get(ctx, "HEAD")
	if err != nil {
		t.Fatalf("read local HEAD: %v", err)
	}
	if err := rawRemote.Put(ctx, "HEAD", headData, false, nil); err != nil {
		t.Fatalf("seed HEAD: %v", err)
	}
	reach, err := remoteRepo.Objects.Reachable(ctx, remoteHead)
	if err != nil {
		t.Fatalf("Reachable: %v", err)
	}
	servedObjStore := object.NewStore(rawRemote, nil)
	for ref := range reach {
		obj, err := remoteRepo.Objects.Retrieve(ctx, ref.Kind, ref.Hash)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if _, err := servedObjStore.Store(ctx, obj); err != nil {
			t.Fatalf("seed object: %v", err)
		}
	}

	cloneBase := t.TempDir()
	cloned, err := Clone(ctx, cloneBase, rc, CloneOptions{Bare: true})
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cloneBase, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("bare clone should not materialize a working tree, stat err = %v", err)
	}
	if head, ok, err := cloned.HEAD(ctx); err != nil || !ok || head != remoteHead {
		t.Fatalf("bare clone HEAD = (%s, %v, %v), want (%s, true, nil)", head, ok, err, remoteHead)
	}
}
