package core

import (
	"sync"
)

// Client is a connection-backed Member.
type Client struct {
	id   string
	host string

	mu       sync.RWMutex
	nick     string
	user     string
	realname string
	bot      bool
	welcomed bool

	outbox    chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with an outbox of the given size.
func NewClient(id, host string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		id:     id,
		host:   host,
		outbox: make(chan string, queueSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Host() string { return c.host }

func (c *Client) Nick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nick
}

// SetNick changes the display name. Identity is unaffected.
func (c *Client) SetNick(nick string) {
	c.mu.Lock()
	c.nick = nick
	c.mu.Unlock()
}

func (c *Client) User() (user, realname string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.realname
}

func (c *Client) SetUser(user, realname string) {
	c.mu.Lock()
	c.user = user
	c.realname = realname
	c.mu.Unlock()
}

func (c *Client) IsBot() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

func (c *Client) SetBot(bot bool) {
	c.mu.Lock()
	c.bot = bot
	c.mu.Unlock()
}

// Registered reports whether both NICK and USER have been received.
func (c *Client) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nick != "" && c.user != ""
}

// markWelcomed returns true only on the first call after registration completes.
func (c *Client) markWelcomed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.welcomed || c.nick == "" || c.user == "" {
		return false
	}
	c.welcomed = true
	return true
}

// Send queues a line without blocking. A full queue drops the line.
func (c *Client) Send(line string) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.outbox <- line:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}

// Outbox is drained by the transport writer.
func (c *Client) Outbox() <-chan string { return c.outbox }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close marks the client as gone. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
