// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prologin/prololo/lib/clock"
	"github.com/prologin/prololo/lib/ref"
	"github.com/prologin/prololo/messaging"
)

// fakeSender records send calls and replays scripted errors.
type fakeSender struct {
	mu sync.Mutex
	// errs is consumed one per call; calls beyond the script succeed.
	errs  []error
	calls []sentCall
}

type sentCall struct {
	room ref.RoomID
	body string
}

func (f *fakeSender) SendMessage(ctx context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err != nil {
		return ref.EventID{}, err
	}
	f.calls = append(f.calls, sentCall{room: room, body: content.Body})
	eventID, _ := ref.ParseEventID("$sent")
	return eventID, nil
}

func (f *fakeSender) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine with millisecond backoffs so retry
// paths run fast under the real clock.
func newTestEngine(t *testing.T, sender Sender, maxAttempts int) (*Engine, *DeliveryLog) {
	t.Helper()
	clk := clock.Real()
	log := NewDeliveryLog(clk, 24*time.Hour)
	engine := NewEngine(EngineConfig{
		Sender:         sender,
		Log:            log,
		Clock:          clk,
		Logger:         discardLogger(),
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Close(ctx)
	})
	return engine, log
}

func closeEngine(t *testing.T, engine *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func transientError() error {
	return &messaging.MatrixError{Code: messaging.ErrCodeUnknown, StatusCode: http.StatusBadGateway, Message: "upstream hiccup"}
}

func TestEngineDeliversInOrder(t *testing.T) {
	sender := &fakeSender{}
	engine, _ := newTestEngine(t, sender, 3)
	room := testRoom(t, "!ci:prologin.org")

	for _, body := range []string{"first", "second", "third"} {
		if !engine.Enqueue("", room, messaging.NewTextMessage(body)) {
			t.Fatalf("Enqueue(%q) refused", body)
		}
	}
	closeEngine(t, engine)

	calls := sender.sent()
	if len(calls) != 3 {
		t.Fatalf("sends = %d, want 3", len(calls))
	}
	for i, want := range []string{"first", "second", "third"} {
		if calls[i].body != want {
			t.Errorf("call %d body = %q, want %q", i, calls[i].body, want)
		}
	}
}

func TestEngineRetriesTransientThenSucceeds(t *testing.T) {
	sender := &fakeSender{errs: []error{transientError(), transientError()}}
	engine, log := newTestEngine(t, sender, 5)
	room := testRoom(t, "!ci:prologin.org")

	if !engine.Enqueue("d1", room, messaging.NewTextMessage("hello")) {
		t.Fatal("Enqueue refused")
	}
	closeEngine(t, engine)

	if calls := sender.sent(); len(calls) != 1 {
		t.Fatalf("sends = %d, want exactly one successful send", len(calls))
	}
	// Recorded as sent: a sender retry of d1 must not claim again.
	if log.Claim("d1", room) {
		t.Error("delivery should be recorded as sent")
	}
}

func TestEngineGivesUpAfterAttemptCeiling(t *testing.T) {
	sender := &fakeSender{errs: []error{
		transientError(), transientError(), transientError(), transientError(), transientError(),
	}}
	engine, log := newTestEngine(t, sender, 3)
	room := testRoom(t, "!ci:prologin.org")

	engine.Enqueue("d1", room, messaging.NewTextMessage("hello"))
	closeEngine(t, engine)

	if calls := sender.sent(); len(calls) != 0 {
		t.Fatalf("sends = %d, want 0 after exhausting 3 attempts", len(calls))
	}
	// Failed outcome: the sender's redelivery gets another chance.
	if !log.Claim("d1", room) {
		t.Error("failed delivery should be reclaimable")
	}
}

func TestEnginePermanentFailureDoesNotRetry(t *testing.T) {
	forbidden := &messaging.MatrixError{Code: messaging.ErrCodeForbidden, StatusCode: http.StatusForbidden, Message: "not in room"}
	// Only the first call is scripted to fail; a retry would succeed
	// and show up in calls.
	sender := &fakeSender{errs: []error{forbidden}}
	engine, _ := newTestEngine(t, sender, 5)
	room := testRoom(t, "!ci:prologin.org")

	engine.Enqueue("d1", room, messaging.NewTextMessage("hello"))
	closeEngine(t, engine)

	if calls := sender.sent(); len(calls) != 0 {
		t.Fatalf("sends = %d, want 0: permanent failures must not retry", len(calls))
	}
}

func TestEngineSuppressesDuplicateDelivery(t *testing.T) {
	sender := &fakeSender{}
	engine, _ := newTestEngine(t, sender, 3)
	room := testRoom(t, "!ci:prologin.org")

	if !engine.Enqueue("d1", room, messaging.NewTextMessage("hello")) {
		t.Fatal("first Enqueue refused")
	}
	if engine.Enqueue("d1", room, messaging.NewTextMessage("hello")) {
		t.Error("duplicate Enqueue should be suppressed")
	}
	closeEngine(t, engine)

	if calls := sender.sent(); len(calls) != 1 {
		t.Fatalf("sends = %d, want exactly 1", len(calls))
	}
}

func TestEngineParallelRoomsSingleDelivery(t *testing.T) {
	sender := &fakeSender{}
	engine, _ := newTestEngine(t, sender, 3)
	ci := testRoom(t, "!ci:prologin.org")
	dev := testRoom(t, "!dev:prologin.org")

	// One webhook fanned out to two rooms shares the delivery ID;
	// both rooms must receive it once.
	engine.Enqueue("d1", ci, messaging.NewTextMessage("hello"))
	engine.Enqueue("d1", dev, messaging.NewTextMessage("hello"))
	closeEngine(t, engine)

	calls := sender.sent()
	if len(calls) != 2 {
		t.Fatalf("sends = %d, want 2", len(calls))
	}
	rooms := map[string]int{}
	for _, call := range calls {
		rooms[call.room.String()]++
	}
	if rooms["!ci:prologin.org"] != 1 || rooms["!dev:prologin.org"] != 1 {
		t.Errorf("per-room sends = %v", rooms)
	}
}

func TestEngineEnqueueDuringClose(t *testing.T) {
	sender := &fakeSender{}
	engine, _ := newTestEngine(t, sender, 3)
	room := testRoom(t, "!ci:prologin.org")

	// Hammer Enqueue while Close runs. A panic here means Enqueue
	// reached a queue channel that Close had already closed.
	stop := make(chan struct{})
	enqueuerDone := make(chan struct{})
	go func() {
		defer close(enqueuerDone)
		for {
			select {
			case <-stop:
				return
			default:
				engine.Enqueue("", room, messaging.NewTextMessage("racing"))
			}
		}
	}()

	time.Sleep(time.Millisecond)
	closeEngine(t, engine)
	close(stop)
	<-enqueuerDone

	if engine.Enqueue("", room, messaging.NewTextMessage("late")) {
		t.Error("Enqueue after Close should be refused")
	}
}

func TestEngineRefusesAfterClose(t *testing.T) {
	sender := &fakeSender{}
	engine, _ := newTestEngine(t, sender, 3)
	closeEngine(t, engine)

	if engine.Enqueue("d1", testRoom(t, "!ci:prologin.org"), messaging.NewTextMessage("late")) {
		t.Error("Enqueue after Close should be refused")
	}
}
