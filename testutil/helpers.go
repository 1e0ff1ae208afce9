// Copyright 2026 b2go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/driftware/b2go/auth"
)

// TestContext returns a context that expires with a generous test timeout
// and is cancelled on cleanup.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout is TestContext with a caller-chosen timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// MustJSON marshals v or fails the test.
func MustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(MustJSON(t, v)); err != nil {
		t.Errorf("write response: %v", err)
	}
}

// APIErrorBody is the error payload shape the service returns.
type APIErrorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteAPIError writes a structured API error response.
func WriteAPIError(t *testing.T, w http.ResponseWriter, status int, code, message string) {
	t.Helper()
	WriteJSON(t, w, status, APIErrorBody{Status: status, Code: code, Message: message})
}

// FakeAPI is an in-process stand-in for the B2 service. It answers
// b2_authorize_account itself, pointing the client back at the same server
// for API and download traffic, and dispatches every other b2api operation
// to a registered handler.
type FakeAPI struct {
	t        *testing.T
	srv      *httptest.Server
	mux      *http.ServeMux
	handlers map[string]http.HandlerFunc

	authCalls atomic.Int64
	token     atomic.Pointer[string]

	recommendedPartSize atomic.Int64
	minimumPartSize     atomic.Int64
}

// NewFakeAPI starts the fake service and shuts it down on cleanup.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		t:        t,
		mux:      http.NewServeMux(),
		handlers: make(map[string]http.HandlerFunc),
	}
	tok := "fake-token-1"
	f.token.Store(&tok)
	f.recommendedPartSize.Store(100 * 1000 * 1000)
	f.minimumPartSize.Store(5 * 1000 * 1000)
	f.mux.HandleFunc("/b2api/v2/", f.dispatch)
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the base URL of the fake service; use it as the auth endpoint.
func (f *FakeAPI) URL() string { return f.srv.URL }

// Credentials returns a key pair the fake accepts.
func (f *FakeAPI) Credentials() auth.Credentials {
	return auth.Credentials{KeyID: "key-id", ApplicationKey: "app-key"}
}

// Token is the authorization token the fake currently hands out.
func (f *FakeAPI) Token() string { return *f.token.Load() }

// SetToken changes the token future authorizations hand out, for tests
// that exercise token expiry.
func (f *FakeAPI) SetToken(tok string) { f.token.Store(&tok) }

// AuthCalls reports how many authorization round trips the fake served.
func (f *FakeAPI) AuthCalls() int64 { return f.authCalls.Load() }

// SetPartSizes overrides the part sizes the fake advertises, so large-file
// tests can work with small payloads.
func (f *FakeAPI) SetPartSizes(recommended, minimum int64) {
	f.recommendedPartSize.Store(recommended)
	f.minimumPartSize.Store(minimum)
}

// Handle registers the handler for one operation, e.g. "b2_list_buckets".
func (f *FakeAPI) Handle(op string, h http.HandlerFunc) {
	f.handlers[op] = h
}

// HandleDownload registers a handler for download paths under /file/.
func (f *FakeAPI) HandleDownload(h http.HandlerFunc) {
	f.mux.HandleFunc("/file/", h)
}

func (f *FakeAPI) dispatch(w http.ResponseWriter, r *http.Request) {
	op := strings.TrimPrefix(r.URL.Path, "/b2api/v2/")
	if op == "b2_authorize_account" {
		f.authorize(w, r)
		return
	}
	if h, ok := f.handlers[op]; ok {
		h(w, r)
		return
	}
	WriteAPIError(f.t, w, http.StatusBadRequest, "bad_request", "unhandled operation "+op)
}

func (f *FakeAPI) authorize(w http.ResponseWriter, r *http.Request) {
	f.authCalls.Add(1)
	if r.Header.Get("Authorization") != f.Credentials().BasicAuth() {
		WriteAPIError(f.t, w, http.StatusUnauthorized, "bad_auth_token", "invalid credentials")
		return
	}
	WriteJSON(f.t, w, http.StatusOK, auth.Authorization{
		AccountID:               "acct-1",
		Token:                   f.Token(),
		APIURL:                  f.srv.URL,
		DownloadURL:             f.srv.URL,
		RecommendedPartSize:     f.recommendedPartSize.Load(),
		AbsoluteMinimumPartSize: f.minimumPartSize.Load(),
		Allowed: auth.Allowed{
			Capabilities: auth.Capabilities{auth.CapListBuckets, auth.CapListFiles,
				auth.CapReadFiles, auth.CapWriteFiles, auth.CapDeleteFiles},
		},
	})
}

// DecodeBody unmarshals a request body into dst or fails the test.
func DecodeBody(t *testing.T, r *http.Request, dst any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

// AssertEventuallyTrue polls condition until it holds or the timeout
// elapses.
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
