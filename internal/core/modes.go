package core

import (
	"strconv"
	"strings"
)

// Channel mode characters.
const (
	ModeKey             byte = 'k'
	ModeLimit           byte = 'l'
	ModeInviteOnly      byte = 'i'
	ModeTopicRestricted byte = 't'
)

// Modes is the single source of truth for a channel's access-control
// configuration. The character flags are derived from it on demand.
type Modes struct {
	key             *string
	limit           *int
	inviteOnly      bool
	topicRestricted bool
}

// Has reports whether the flag c is active.
func (m Modes) Has(c byte) bool {
	switch c {
	case ModeKey:
		return m.key != nil
	case ModeLimit:
		return m.limit != nil
	case ModeInviteOnly:
		return m.inviteOnly
	case ModeTopicRestricted:
		return m.topicRestricted
	}
	return false
}

// Key returns the channel key, or "" when none is set.
func (m Modes) Key() string {
	if m.key == nil {
		return ""
	}
	return *m.key
}

// Limit returns the user limit, or 0 when none is set.
func (m Modes) Limit() int {
	if m.limit == nil {
		return 0
	}
	return *m.limit
}

// Flags lists the active flags in "iklt" order.
func (m Modes) Flags() string {
	var b strings.Builder
	for _, c := range []byte{ModeInviteOnly, ModeKey, ModeLimit, ModeTopicRestricted} {
		if m.Has(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Summary reports only the key and limit flags, "+" followed by k then l.
func (m Modes) Summary() string {
	s := "+"
	if m.Has(ModeKey) {
		s += "k"
	}
	if m.Has(ModeLimit) {
		s += "l"
	}
	return s
}

// FullSummary reports every active flag followed by the limit value.
// The key itself is never disclosed.
func (m Modes) FullSummary() string {
	s := "+" + m.Flags()
	if m.limit != nil {
		s += " " + strconv.Itoa(*m.limit)
	}
	return s
}
