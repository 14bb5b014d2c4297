package core

import (
	"reflect"

	"github.com/lrstanley/girc"
)

// Member is a connected participant as seen by a channel.
type Member interface {
	// ID is a stable opaque identity that survives nick changes.
	ID() string
	// Nick is the current display name.
	Nick() string
	// IsBot reports whether the member is a service bot.
	IsBot() bool
	// Send queues a raw protocol line. It must not block.
	Send(line string) bool
}

// isNil catches both a nil interface and a nil pointer wrapped in one,
// e.g. a (*Client)(nil) passed as Member.
func isNil(m Member) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// sameMember reports whether a and b refer to the same participant,
// either by identity or by display name under RFC1459 case mapping.
func sameMember(a, b Member) bool {
	if isNil(a) || isNil(b) {
		return false
	}
	if sameIdentity(a, b) {
		return true
	}
	return sameNick(a, b)
}

func sameNick(a, b Member) bool {
	if isNil(a) || isNil(b) {
		return false
	}
	an, bn := a.Nick(), b.Nick()
	if an == "" || bn == "" {
		return false
	}
	return girc.ToRFC1459(an) == girc.ToRFC1459(bn)
}

// sameIdentity compares IDs only; members with an empty ID never match by
// identity. Comparing the interface values themselves would panic on
// non-comparable implementations.
func sameIdentity(a, b Member) bool {
	if isNil(a) || isNil(b) {
		return false
	}
	id := a.ID()
	return id != "" && id == b.ID()
}
