// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestParseRoomID(t *testing.T) {
	valid := []string{"!abc:prologin.org", "!x:localhost:8448"}
	for _, raw := range valid {
		if _, err := ParseRoomID(raw); err != nil {
			t.Errorf("ParseRoomID(%q): unexpected error: %v", raw, err)
		}
	}

	invalid := []string{"", "!", "#alias:prologin.org", "!noserver", "abc:prologin.org"}
	for _, raw := range invalid {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q): expected error, got none", raw)
		}
	}
}

func TestParseRoomTarget(t *testing.T) {
	target, err := ParseRoomTarget("#ci:prologin.org")
	if err != nil {
		t.Fatalf("ParseRoomTarget: %v", err)
	}
	if !target.IsAlias() {
		t.Error("expected alias target")
	}
	if target.String() != "#ci:prologin.org" {
		t.Errorf("String() = %q", target.String())
	}

	target, err = ParseRoomTarget("!abc:prologin.org")
	if err != nil {
		t.Fatalf("ParseRoomTarget: %v", err)
	}
	if target.IsAlias() {
		t.Error("expected ID target")
	}
	if target.ID().String() != "!abc:prologin.org" {
		t.Errorf("ID() = %q", target.ID())
	}

	if _, err := ParseRoomTarget("ci-room"); err == nil {
		t.Error("expected error for bare room name")
	}
}

func TestParseUserID(t *testing.T) {
	user, err := ParseUserID("@prololo:prologin.org")
	if err != nil {
		t.Fatalf("ParseUserID: %v", err)
	}
	if user.Localpart() != "prololo" {
		t.Errorf("Localpart() = %q, want %q", user.Localpart(), "prololo")
	}

	invalid := []string{"", "@:prologin.org", "@prololo", "prololo:prologin.org"}
	for _, raw := range invalid {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q): expected error, got none", raw)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var room RoomID
	if err := room.UnmarshalText([]byte("!abc:prologin.org")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if room.IsZero() {
		t.Error("room should not be zero after unmarshal")
	}

	var target RoomTarget
	if err := target.UnmarshalText([]byte("not-a-room")); err == nil {
		t.Error("expected error for invalid room target")
	}
}
