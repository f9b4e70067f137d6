// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated Matrix identifier value types.
//
// Identifiers are parsed at the boundary (configuration load, API
// responses) and carried as typed values afterwards, so the rest of
// the code never handles raw identifier strings. The zero value of
// every type is invalid; use IsZero to check.
package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID (e.g., "!abc123:prologin.org").
//
// Room IDs are server-assigned opaque identifiers. prololo never
// constructs them from parts — they come from configuration, alias
// resolution, or send responses.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID string.
func ParseRoomID(raw string) (RoomID, error) {
	if err := checkSigil(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	if !strings.Contains(raw[1:], ":") {
		return RoomID{}, fmt.Errorf("room ID missing ':server' suffix: %q", raw)
	}
	return RoomID{id: raw}, nil
}

// String returns the full room ID string.
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is the zero value.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RoomID) UnmarshalText(data []byte) error {
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoomAlias is a validated Matrix room alias (e.g., "#ci:prologin.org").
// Aliases are human-chosen names resolved to a RoomID by the homeserver.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if err := checkSigil(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	if !strings.Contains(raw[1:], ":") {
		return RoomAlias{}, fmt.Errorf("room alias missing ':server' suffix: %q", raw)
	}
	return RoomAlias{alias: raw}, nil
}

// String returns the full alias string.
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// RoomTarget is a room reference as written in configuration: either a
// room ID or a room alias. Aliases are resolved to room IDs once at
// startup; the delivery path only ever sees room IDs.
type RoomTarget struct {
	id    RoomID
	alias RoomAlias
}

// ParseRoomTarget accepts either a "!room:server" ID or a
// "#alias:server" alias.
func ParseRoomTarget(raw string) (RoomTarget, error) {
	if raw == "" {
		return RoomTarget{}, fmt.Errorf("empty room target")
	}
	switch raw[0] {
	case '!':
		id, err := ParseRoomID(raw)
		if err != nil {
			return RoomTarget{}, err
		}
		return RoomTarget{id: id}, nil
	case '#':
		alias, err := ParseRoomAlias(raw)
		if err != nil {
			return RoomTarget{}, err
		}
		return RoomTarget{alias: alias}, nil
	default:
		return RoomTarget{}, fmt.Errorf("room target must start with '!' or '#': %q", raw)
	}
}

// IsAlias reports whether the target is an alias needing resolution.
func (t RoomTarget) IsAlias() bool { return !t.alias.IsZero() }

// ID returns the room ID. Only valid when IsAlias is false.
func (t RoomTarget) ID() RoomID { return t.id }

// Alias returns the room alias. Only valid when IsAlias is true.
func (t RoomTarget) Alias() RoomAlias { return t.alias }

// IsZero reports whether the RoomTarget is the zero value.
func (t RoomTarget) IsZero() bool { return t.id.IsZero() && t.alias.IsZero() }

// String returns the target as written in configuration.
func (t RoomTarget) String() string {
	if t.IsAlias() {
		return t.alias.String()
	}
	return t.id.String()
}

// MarshalText implements encoding.TextMarshaler.
func (t RoomTarget) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. This is what YAML
// decoding of configuration room fields goes through.
func (t *RoomTarget) UnmarshalText(data []byte) error {
	parsed, err := ParseRoomTarget(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UserID is a validated Matrix user ID (e.g., "@prololo:prologin.org").
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
func ParseUserID(raw string) (UserID, error) {
	if err := checkSigil(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	localpart, server, found := strings.Cut(raw[1:], ":")
	if !found || server == "" {
		return UserID{}, fmt.Errorf("user ID missing ':server' suffix: %q", raw)
	}
	if localpart == "" {
		return UserID{}, fmt.Errorf("user ID has empty localpart: %q", raw)
	}
	return UserID{id: raw}, nil
}

// String returns the full user ID string.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and ':'. Used as the login
// identifier for m.login.password.
func (u UserID) Localpart() string {
	localpart, _, _ := strings.Cut(u.id[1:], ":")
	return localpart
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UserID) UnmarshalText(data []byte) error {
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// EventID is a Matrix event ID (e.g., "$opaque"). Event IDs are opaque
// server-assigned strings; only the sigil is checked.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
func ParseEventID(raw string) (EventID, error) {
	if err := checkSigil(raw, '$', "event ID"); err != nil {
		return EventID{}, err
	}
	return EventID{id: raw}, nil
}

// String returns the full event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventID) UnmarshalText(data []byte) error {
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func checkSigil(raw string, sigil byte, what string) error {
	if raw == "" {
		return fmt.Errorf("empty %s", what)
	}
	if raw[0] != sigil {
		return fmt.Errorf("%s must start with %q: %q", what, string(sigil), raw)
	}
	if len(raw) == 1 {
		return fmt.Errorf("%s has no content after %q: %q", what, string(sigil), raw)
	}
	return nil
}
