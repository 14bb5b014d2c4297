package core

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeMember records every line it is sent.
type fakeMember struct {
	id   string
	nick string
	bot  bool
	// reject makes Send fail, as a full queue would.
	reject bool

	mu    sync.Mutex
	lines []string
}

func newFake(id, nick string) *fakeMember {
	return &fakeMember{id: id, nick: nick}
}

func (f *fakeMember) ID() string   { return f.id }
func (f *fakeMember) Nick() string { return f.nick }
func (f *fakeMember) IsBot() bool  { return f.bot }

func (f *fakeMember) Send(line string) bool {
	if f.reject {
		return false
	}
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.mu.Unlock()
	return true
}

func (f *fakeMember) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// mustLine waits for a line on c's outbox containing every fragment.
func mustLine(t *testing.T, c *Client, fragments ...string) string {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-c.Outbox():
			if containsAll(line, fragments) {
				return line
			}
		case <-deadline:
			t.Fatalf("expected line containing %q not received", fragments)
			return ""
		}
	}
}

// drain empties c's outbox and returns what was queued.
func drain(c *Client) []string {
	var lines []string
	for {
		select {
		case line := <-c.Outbox():
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

func containsAll(line string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(line, f) {
			return false
		}
	}
	return true
}
