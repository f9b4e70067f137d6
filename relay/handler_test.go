// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prologin/prololo/lib/clock"
	"github.com/prologin/prololo/lib/config"
	"github.com/prologin/prololo/lib/ref"
)

var (
	githubSecret = []byte("gh-secret")
	siteSecret   = []byte("site-token")
)

// relayFixture wires a handler to a fake sender for end-to-end
// request tests.
type relayFixture struct {
	mux    *http.ServeMux
	sender *fakeSender
	engine *Engine
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	cfg := &config.Config{
		Sources: []*config.SourceConfig{
			{
				ID:     "github",
				Kind:   config.KindGitHub,
				Secret: githubSecret,
				Rules: []*config.RoutingRule{
					rule(t, `^prologin/site:main$`, "!ci:prologin.org", false),
					rule(t, `^prologin/site$`, "!dev:prologin.org", false),
				},
			},
			{
				ID:          "prolosite",
				Kind:        config.KindSite,
				Secret:      siteSecret,
				DefaultRoom: mustTarget(t, "!site:prologin.org"),
				Rules: []*config.RoutingRule{
					rule(t, `^site:error$`, "!alerts:prologin.org", false),
				},
			},
		},
	}

	sender := &fakeSender{}
	clk := clock.Real()
	engine := NewEngine(EngineConfig{
		Sender:         sender,
		Log:            NewDeliveryLog(clk, 24*time.Hour),
		Clock:          clk,
		Logger:         discardLogger(),
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	handler := NewHandler(HandlerConfig{
		Config: cfg,
		Engine: engine,
		Rooms: func(target ref.RoomTarget) (ref.RoomID, bool) {
			if target.IsAlias() {
				return ref.RoomID{}, false
			}
			return target.ID(), true
		},
		Logger: discardLogger(),
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	return &relayFixture{mux: mux, sender: sender, engine: engine}
}

// post runs one webhook request through the handler.
func (f *relayFixture) post(path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)
	return recorder
}

func githubHeaders(body []byte, eventType, deliveryID string) map[string]string {
	return map[string]string{
		"X-Hub-Signature-256": signHMAC(githubSecret, body),
		"X-GitHub-Event":      eventType,
		"X-GitHub-Delivery":   deliveryID,
	}
}

func TestHandlerPushEndToEnd(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(pushBody)

	response := fixture.post("/api/webhooks/github", body, githubHeaders(body, "push", "delivery-1"))
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	closeEngine(t, fixture.engine)

	calls := fixture.sender.sent()
	if len(calls) != 1 {
		t.Fatalf("sends = %d, want exactly one", len(calls))
	}
	if calls[0].room.String() != "!ci:prologin.org" {
		t.Errorf("room = %q, want the main-branch rule's room", calls[0].room)
	}
	if !strings.Contains(calls[0].body, "alice") || !strings.Contains(calls[0].body, "2 commits") {
		t.Errorf("message %q should name the pusher and commit count", calls[0].body)
	}
}

func TestHandlerUnknownSource(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(pushBody)

	response := fixture.post("/api/webhooks/nope", body, githubHeaders(body, "push", "d1"))
	if response.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", response.Code)
	}
}

func TestHandlerBadSignature(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(pushBody)
	headers := githubHeaders(body, "push", "d1")
	headers["X-Hub-Signature-256"] = signHMAC([]byte("wrong-secret"), body)

	response := fixture.post("/api/webhooks/github", body, headers)
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", response.Code)
	}
	closeEngine(t, fixture.engine)
	if calls := fixture.sender.sent(); len(calls) != 0 {
		t.Errorf("sends = %d, want 0", len(calls))
	}
}

func TestHandlerMalformedBody(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{definitely not json`)

	response := fixture.post("/api/webhooks/github", body, githubHeaders(body, "push", "d1"))
	if response.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", response.Code)
	}
	closeEngine(t, fixture.engine)
	if calls := fixture.sender.sent(); len(calls) != 0 {
		t.Errorf("sends = %d, want 0", len(calls))
	}
}

func TestHandlerUnhandledEventKind(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{"zen": "Design for failure."}`)

	response := fixture.post("/api/webhooks/github", body, githubHeaders(body, "foo", "d1"))
	if response.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", response.Code)
	}
	closeEngine(t, fixture.engine)
	if calls := fixture.sender.sent(); len(calls) != 0 {
		t.Errorf("sends = %d, want 0", len(calls))
	}
}

func TestHandlerMissingEventTypeHeader(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(pushBody)
	headers := githubHeaders(body, "push", "d1")
	delete(headers, "X-GitHub-Event")

	response := fixture.post("/api/webhooks/github", body, headers)
	if response.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.Code)
	}
}

func TestHandlerRoutingMiss(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{
		"ref": "refs/heads/main",
		"commits": [{"id": "abc", "message": "m"}],
		"repository": {"full_name": "other/repo"},
		"sender": {"login": "alice"},
		"compare": "https://example.org"
	}`)

	response := fixture.post("/api/webhooks/github", body, githubHeaders(body, "push", "d1"))
	if response.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 for routing miss", response.Code)
	}
	closeEngine(t, fixture.engine)
	if calls := fixture.sender.sent(); len(calls) != 0 {
		t.Errorf("sends = %d, want 0", len(calls))
	}
}

func TestHandlerDuplicateDelivery(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(pushBody)
	headers := githubHeaders(body, "push", "delivery-dup")

	first := fixture.post("/api/webhooks/github", body, headers)
	second := fixture.post("/api/webhooks/github", body, headers)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d, want 200 for both", first.Code, second.Code)
	}
	closeEngine(t, fixture.engine)

	if calls := fixture.sender.sent(); len(calls) != 1 {
		t.Errorf("sends = %d, want exactly one despite the retry", len(calls))
	}
}

func TestHandlerSiteDeploy(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{"version": "2026.08.1", "url": "https://prologin.org"}`)

	response := fixture.post("/api/webhooks/prolosite", body, map[string]string{
		"Authorization":        "Bearer site-token",
		"X-Prolosite-Event":    "deploy",
		"X-Prolosite-Delivery": "site-d1",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	closeEngine(t, fixture.engine)

	calls := fixture.sender.sent()
	if len(calls) != 1 {
		t.Fatalf("sends = %d, want 1", len(calls))
	}
	// No rule matches site:deploy; the default room catches it.
	if calls[0].room.String() != "!site:prologin.org" {
		t.Errorf("room = %q, want the source's default room", calls[0].room)
	}
	if !strings.Contains(calls[0].body, "2026.08.1") {
		t.Errorf("message %q should carry the version", calls[0].body)
	}
}

func TestHandlerSiteErrorRouted(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{
		"request": {"user": "jmadrid", "method": "POST", "path": "/contest/register"},
		"exception": {"value": "IntegrityError: duplicate key"}
	}`)

	response := fixture.post("/api/webhooks/prolosite", body, map[string]string{
		"Authorization":        "Bearer site-token",
		"X-Prolosite-Event":    "error",
		"X-Prolosite-Delivery": "site-d2",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.Code)
	}
	closeEngine(t, fixture.engine)

	calls := fixture.sender.sent()
	if len(calls) != 1 {
		t.Fatalf("sends = %d, want 1", len(calls))
	}
	if calls[0].room.String() != "!alerts:prologin.org" {
		t.Errorf("room = %q, want the error rule's room", calls[0].room)
	}
}

func TestHandlerSiteBadToken(t *testing.T) {
	fixture := newRelayFixture(t)
	body := []byte(`{"version": "2026.08.1"}`)

	response := fixture.post("/api/webhooks/prolosite", body, map[string]string{
		"Authorization":     "Bearer wrong",
		"X-Prolosite-Event": "deploy",
	})
	if response.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", response.Code)
	}
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	fixture := newRelayFixture(t)

	request := httptest.NewRequest(http.MethodGet, "/api/webhooks/github", nil)
	recorder := httptest.NewRecorder()
	fixture.mux.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 from the method-scoped route", recorder.Code)
	}
}
