// Package proto converts between raw IRC lines and girc events.
package proto

import (
	"errors"
	"strings"

	"github.com/lrstanley/girc"
)

// MaxLineBytes is the RFC1459 line limit including CRLF.
const MaxLineBytes = 512

var (
	ErrEmptyLine     = errors.New("empty line")
	ErrMalformedLine = errors.New("malformed line")
)

// Parse decodes a single line. Trailing CR/LF are ignored.
func Parse(line string) (*girc.Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyLine
	}
	ev := girc.ParseEvent(line)
	if ev == nil || ev.Command == "" {
		return nil, ErrMalformedLine
	}
	ev.Command = strings.ToUpper(ev.Command)
	return ev, nil
}

// Line encodes a message from source with a CRLF terminator. An empty
// source omits the prefix.
func Line(source, command string, params ...string) string {
	ev := &girc.Event{Command: command, Params: params}
	if source != "" {
		ev.Source = &girc.Source{Name: source}
	}
	return ev.String() + "\r\n"
}

// Reply encodes a numeric reply from the server to nick.
func Reply(server, nick, numeric string, params ...string) string {
	if nick == "" {
		nick = "*"
	}
	return Line(server, numeric, append([]string{nick}, params...)...)
}

// Param returns the i-th parameter or "".
func Param(ev *girc.Event, i int) string {
	if ev == nil || i < 0 || i >= len(ev.Params) {
		return ""
	}
	return ev.Params[i]
}

// SplitList splits a comma separated parameter, dropping empty items.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Fold maps a nick or channel name to its RFC1459 lower-case form.
func Fold(name string) string {
	return girc.ToRFC1459(name)
}

// IsChannel reports whether target names a channel.
func IsChannel(target string) bool {
	return girc.IsValidChannel(target)
}

// IsNick reports whether nick is acceptable as a display name.
func IsNick(nick string) bool {
	return girc.IsValidNick(nick)
}

// Replies girc does not name.
const (
	RplUModeIs           = "221"
	RplEndOfBanList      = "368"
	ErrAlreadyRegistered = "462"
	ErrUsersDontMatch    = "502"
	ErrInvalidModeParam  = "696"
)
