// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default retry settings for the exponential backoff HTTP.do applies to
// transient network failures.
const (
	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 100 * time.Millisecond
	DefaultMaxRetryDelay = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Minute
)

// HTTP is a Remote backed by an HTTP-like service: HEAD maps to Exists, GET
// to Get (with "?list-type=2&prefix=" answering List), PUT to Put, DELETE to
// Delete.
type HTTP struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger

	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewHTTP creates an HTTP remote against baseURL.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Client:        &http.Client{Timeout: DefaultRequestTimeout},
		Logger:        slog.Default(),
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

func (h *HTTP) endpoint(path string) string {
	return h.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func (h *HTTP) sign(req *http.Request, path string, signer Signer) {
	if signer == nil {
		return
	}
	ts := time.Now().Unix()
	sig, tsHeader := signer.Sign(req.Method, path, ts)
	req.Header.Set("X-Wild-Signature", sig)
	req.Header.Set("X-Wild-Timestamp", tsHeader)
}

// do executes req, retrying on transport-level (connection) failures with
// exponential backoff.
func (h *HTTP) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	delay := h.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= h.MaxRetries; attempt++ {
		if attempt > 1 {
			h.Logger.Info("[wit] remote http retry", "attempt", attempt, "delay", delay, "url", req.URL.String())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = minDuration(delay*2, h.MaxRetryDelay)
		}

		resp, err := h.Client.Do(req.WithContext(ctx))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		h.Logger.Error("[wit] remote http error", "attempt", attempt, "error", err, "url", req.URL.String())
	}

	return nil, &Error{Kind: KindUnavailable, Op: req.Method, Path: req.URL.Path, Err: lastErr}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (h *HTTP) Exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequest(http.MethodHead, h.endpoint(path), nil)
	if err != nil {
		return false, &Error{Kind: KindBadResponse, Op: "exists", Path: path, Err: err}
	}
	resp, err := h.do(ctx, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (h *HTTP) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, h.endpoint(path), nil)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "get", Path: path, Err: err}
	}
	resp, err := h.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &Error{Kind: KindNotFound, Op: "get", Path: path, Err: ErrNotFound}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("get", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "get", Path: path, Err: err}
	}
	return data, nil
}

func (h *HTTP) Put(ctx context.Context, path string, data []byte, isDir bool, signer Signer) error {
	req, err := http.NewRequest(http.MethodPut, h.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return &Error{Kind: KindBadResponse, Op: "put", Path: path, Err: err}
	}
	if isDir {
		req.Header.Set("X-Wild-Is-Directory", "1")
	}
	h.sign(req, path, signer)

	resp, err := h.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return classifyStatus("put", path, resp.StatusCode)
}

func (h *HTTP) Delete(ctx context.Context, path string, signer Signer) error {
	req, err := http.NewRequest(http.MethodDelete, h.endpoint(path), nil)
	if err != nil {
		return &Error{Kind: KindBadResponse, Op: "delete", Path: path, Err: err}
	}
	h.sign(req, path, signer)

	resp, err := h.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return classifyStatus("delete", path, resp.StatusCode)
}

func (h *HTTP) List(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{}
	q.Set("list-type", "2")
	q.Set("prefix", prefix)
	req, err := http.NewRequest(http.MethodGet, h.endpoint("")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "list", Path: prefix, Err: err}
	}
	resp, err := h.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("list", prefix, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "list", Path: prefix, Err: err}
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}

func classifyStatus(op, path string, status int) error {
	switch {
	case status == http.StatusPreconditionFailed:
		return &Error{Kind: KindPreconditionFailed, Op: op, Path: path, Err: fmt.Errorf("status %d", status)}
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return &Error{Kind: KindForbidden, Op: op, Path: path, Err: fmt.Errorf("status %d", status)}
	case status >= 500:
		return &Error{Kind: KindUnavailable, Op: op, Path: path, Err: fmt.Errorf("status %d", status)}
	default:
		return &Error{Kind: KindBadResponse, Op: op, Path: path, Err: fmt.Errorf("status %d", status)}
	}
}
