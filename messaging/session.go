// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/prologin/prololo/lib/ref"
)

// Session is an authenticated Matrix session. Sessions are lightweight
// and safe for concurrent use.
type Session struct {
	client      *Client
	accessToken string
	userID      ref.UserID
	deviceID    string

	// transactionCounter generates unique transaction IDs for
	// idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID.
func (s *Session) UserID() ref.UserID { return s.userID }

// WhoAmI validates the access token and returns the server-reported
// user ID. Used at startup to fail fast on a stale token.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	var response whoAmIResponse
	if err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	return response.UserID, nil
}

// ResolveAlias resolves a room alias (e.g., "#dev:prologin.org") to a
// room ID.
func (s *Session) ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	path := "/_matrix/client/v3/directory/room/" + url.PathEscape(alias.String())
	var response resolveAliasResponse
	if err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: resolve alias %q failed: %w", alias, err)
	}
	return response.RoomID, nil
}

// JoinRoom joins a room by ID. Joining an already-joined room is a
// no-op on the homeserver, so this is safe to call at every startup.
func (s *Session) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}
	return response.RoomID, nil
}

// SendMessage sends an m.room.message event to a room using Matrix's
// idempotent PUT with a transaction ID. Returns the event ID.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(s.nextTransactionID()),
	)

	var response sendEventResponse
	if err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send to %q failed: %w", roomID, err)
	}
	return response.EventID, nil
}

// nextTransactionID generates a unique transaction ID for idempotent
// event sending. Format: "prololo-<timestamp_ms>-<counter>" so IDs
// stay unique across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("prololo-%d-%d", time.Now().UnixMilli(), counter)
}
