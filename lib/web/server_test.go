// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prologin/prololo/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerServesAndShutsDown(t *testing.T) {
	server := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "ok")
		}),
		Logger: testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	response, err := http.Get("http://" + server.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "server exit"); err != nil {
		t.Errorf("Serve returned error: %v", err)
	}
}

func TestServerListenFailure(t *testing.T) {
	first := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.NotFoundHandler(),
		Logger:  testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- first.Serve(ctx) }()
	testutil.RequireClosed(t, first.Ready(), 5*time.Second, "first server ready")

	// Second server on the same port must fail to bind.
	second := NewServer(ServerConfig{
		Address: first.Addr().String(),
		Handler: http.NotFoundHandler(),
		Logger:  testLogger(),
	})
	if err := second.Serve(ctx); err == nil {
		t.Error("expected bind error for occupied port")
	}
}
