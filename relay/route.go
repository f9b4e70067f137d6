// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"github.com/prologin/prololo/lib/config"
	"github.com/prologin/prololo/lib/ref"
)

// Resolve maps an event to its destination rooms using the source's
// ordered routing rules. Rules are matched against the event's routing
// key in declaration order; the first match wins unless the matching
// rule sets continue, in which case evaluation proceeds and matches
// accumulate.
//
// An event matching no rule falls back to the source's default room
// when one is configured; otherwise the result is empty and the event
// is dropped. Dropping is intentional filtering, not an error.
func Resolve(source *config.SourceConfig, event *Event) []ref.RoomTarget {
	key := event.RoutingKey()

	var rooms []ref.RoomTarget
	for _, rule := range source.Rules {
		if !rule.Regexp.MatchString(key) {
			continue
		}
		rooms = append(rooms, rule.Room)
		if !rule.Continue {
			return rooms
		}
	}

	if len(rooms) == 0 && !source.DefaultRoom.IsZero() {
		return []ref.RoomTarget{source.DefaultRoom}
	}
	return rooms
}
