// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wit

import (
	"context"
	"crypto/ed25519"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/wildcode/wit/object"
	"github.com/wildcode/wit/remote"
)

// newSignedWildTestServer is newWildTestServer with one addition: PUT and
// DELETE must carry a valid X-Wild-Signature/X-Wild-Timestamp pair for pub,
// checked with remote.VerifySignature, so the server actually authenticates
// writes instead of trusting every caller.
func newSignedWildTestServer(t *testing.T, d *remote.Disk, pub ed25519.PublicKey) *httptest.Server {
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
			if !validSignature(req, p, pub) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
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
			if !validSignature(req, p, pub) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
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

// validSignature checks the request against the same (method, path,
// timestamp) triple remote.HTTP.sign produces — path is the same bare,
// leading-slash-free string passed to Remote.Put/Delete, not req.URL.Path.
func validSignature(req *http.Request, path string, pub ed25519.PublicKey) bool {
	sig := req.Header.Get("X-Wild-Signature")
	ts := req.Header.Get("X-Wild-Timestamp")
	if sig == "" || ts == "" {
		return false
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		return false
	}
	return remote.VerifySignature(pub, req.Method, path, ts, sig)
}

func TestPushOverSignedRemoteSucceedsWithConfiguredSigner(t *testing.T) {
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	diskBase := t.TempDir()
	disk, err := remote.NewDisk(diskBase)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	srv := newSignedWildTestServer(t, disk, pub)

	localBase := t.TempDir()
	localRepo, err := Init(localBase)
	if err != nil {
		t.Fatalf("Init local: %v", err)
	}
	writeFile(t, localBase, "a.txt", "a\n")
	localHead, err := localRepo.Commit(ctx, "first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	signer, err := remote.NewEd25519Signer(priv)
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	httpRemote := remote.NewHTTP(srv.URL)
	localRepo.remoteName = "origin"
	localRepo.remoteRaw = httpRemote
	localRepo.remoteSigner = signer
	localRepo.remoteObjects = object.NewStore(httpRemote, signer)

	if err := localRepo.Push(ctx); err != nil {
		t.Fatalf("Push with configured signer: %v", err)
	}

	remoteHead, ok, err := readHead(ctx, disk, "HEAD")
	if err != nil || !ok || remoteHead != localHead {
		t.Fatalf("remote HEAD after signed push = (%s, %v, %v), want (%s, true, nil)", remoteHead, ok, err, localHead)
	}
}

func TestPushOverSignedRemoteFailsWithoutSigner(t *testing.T) {
	ctx := context.Background()

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	diskBase := t.TempDir()
	disk, err := remote.NewDisk(diskBase)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	srv := newSignedWildTestServer(t, disk, pub)

	localBase := t.TempDir()
	localRepo, err := Init(localBase)
	if err != nil {
		t.Fatalf("Init local: %v", err)
	}
	writeFile(t, localBase, "a.txt", "a\n")
	if _, err := localRepo.Commit(ctx, "first"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// No signer configured: the server rejects the unsigned write.
	httpRemote := remote.NewHTTP(srv.URL)
	localRepo.remoteName = "origin"
	localRepo.remoteRaw = httpRemote
	localRepo.remoteObjects = object.NewStore(httpRemote, nil)

	if err := localRepo.Push(ctx); err == nil {
		t.Fatal("expected Push without a signer to fail against a signature-checking remote")
	}
}
