// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"sync"
	"time"

	"github.com/prologin/prololo/lib/clock"
	"github.com/prologin/prololo/lib/ref"
)

// deliveryOutcome is the lifecycle state of one (delivery, room) pair.
type deliveryOutcome int

const (
	outcomePending deliveryOutcome = iota
	outcomeSent
	outcomeFailed
)

type deliveryKey struct {
	deliveryID string
	room       ref.RoomID
}

type deliveryRecord struct {
	attemptedAt time.Time
	outcome     deliveryOutcome
}

// DeliveryLog tracks recent webhook deliveries per destination room so
// sender-side retries of the same delivery do not double-send.
//
// The claim/complete protocol serializes ownership: Claim atomically
// records a pending entry, so of two concurrent duplicates exactly one
// proceeds to send. Entries expire after the retention window, which
// must exceed the sender's maximum retry interval. The log is
// in-memory; a restart forgets history, which is within the
// at-least-once contract.
type DeliveryLog struct {
	clock  clock.Clock
	window time.Duration

	mu      sync.Mutex
	records map[deliveryKey]*deliveryRecord
}

// NewDeliveryLog creates a log with the given retention window.
// Panics on a nil clock or non-positive window.
func NewDeliveryLog(clk clock.Clock, window time.Duration) *DeliveryLog {
	if clk == nil {
		panic("DeliveryLog: clock is required")
	}
	if window <= 0 {
		panic("DeliveryLog: window must be positive")
	}
	return &DeliveryLog{
		clock:   clk,
		window:  window,
		records: make(map[deliveryKey]*deliveryRecord),
	}
}

// Claim attempts to take ownership of sending deliveryID to room.
// Returns true when the caller should send: the pair is unseen, or its
// previous attempt failed (a sender retry is the second chance).
// Returns false when the pair is already sent or a send is in flight.
func (l *DeliveryLog) Claim(deliveryID string, room ref.RoomID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	key := deliveryKey{deliveryID: deliveryID, room: room}
	record, exists := l.records[key]
	if exists && record.outcome != outcomeFailed {
		return false
	}

	l.records[key] = &deliveryRecord{attemptedAt: now, outcome: outcomePending}
	return true
}

// Complete records the final outcome of a claimed send.
func (l *DeliveryLog) Complete(deliveryID string, room ref.RoomID, sent bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := deliveryKey{deliveryID: deliveryID, room: room}
	record, exists := l.records[key]
	if !exists {
		// Claimed entry was pruned during a very long send. Re-record
		// so a late sender retry still deduplicates.
		record = &deliveryRecord{attemptedAt: l.clock.Now()}
		l.records[key] = record
	}
	if sent {
		record.outcome = outcomeSent
	} else {
		record.outcome = outcomeFailed
	}
}

// prune drops expired records. Called with the lock held. The map
// holds one entry per (delivery, room) over the window, so a full
// sweep per access is cheap.
func (l *DeliveryLog) prune(now time.Time) {
	for key, record := range l.records {
		if now.Sub(record.attemptedAt) > l.window {
			delete(l.records, key)
		}
	}
}
