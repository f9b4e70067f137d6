// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"

	"github.com/prologin/prololo/lib/config"
)

// ErrUnhandledEvent marks an event type that is recognized as valid
// traffic but carries nothing worth announcing (ping, branch create,
// comment edits). The handler maps it to 202 so the sender does not
// retry.
var ErrUnhandledEvent = errors.New("unhandled event type")

// MalformedError marks a payload that claims a supported event type
// but does not deserialize into it. The handler maps it to 400: the
// sender's retry cannot fix a schema mismatch, an operator has to.
type MalformedError struct {
	EventType string
	Err       error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %q payload: %v", e.EventType, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(eventType string, err error) error {
	return &MalformedError{EventType: eventType, Err: err}
}

// Classify turns a verified webhook body into a typed Event. The
// source kind selects the dispatch table: GitHub sources understand
// GitHub event types, site sources understand prolosite event types.
//
// Returns ErrUnhandledEvent for valid-but-ignored types and a
// *MalformedError for bodies that fail to deserialize. Callers must
// verify the request before classifying; the payload is untrusted
// until then.
func Classify(sourceKind, eventType string, body []byte) (*Event, error) {
	switch sourceKind {
	case config.KindGitHub:
		return classifyGitHub(eventType, body)
	case config.KindSite:
		return classifySite(eventType, body)
	default:
		// Config validation rejects unknown kinds at startup.
		panic(fmt.Sprintf("relay: unknown source kind %q", sourceKind))
	}
}
