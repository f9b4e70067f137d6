// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides bounded HTTP body helpers.
//
// All reads are capped at MaxResponseSize so a misbehaving peer cannot
// exhaust memory. These helpers are for JSON API responses (the Matrix
// client-server API), not for streaming transfers.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 8 MB.
// Legitimate Matrix API responses are far smaller; the limit only
// guards against a pathological server.
const MaxResponseSize int64 = 8 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll for HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (bounded) and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}
