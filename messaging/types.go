// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "github.com/prologin/prololo/lib/ref"

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// loginRequest is the request body for password login.
type loginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

type whoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

type resolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

type sendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// MessageContent is the content body of an m.room.message event.
// FormattedBody carries the HTML rendering when Format is set to
// "org.matrix.custom.html"; Body is always the plain-text fallback.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}
