package store

import (
	"context"
	"time"
)

// MessageKind distinguishes logged traffic.
type MessageKind string

const (
	MessageKindPrivmsg MessageKind = "PRIVMSG"
	MessageKindNotice  MessageKind = "NOTICE"
)

// Message is a logged chat line.
type Message struct {
	ID        int64
	Sender    string
	Target    string
	Kind      MessageKind
	Body      string
	CreatedAt time.Time
}

// ChannelRecord is the last known topic of a channel.
type ChannelRecord struct {
	Name      string
	Topic     string
	SetBy     string
	UpdatedAt time.Time
}

// Store is an append-only audit log of channel traffic. It is never used to
// rebuild channel state.
type Store interface {
	// LogMessage appends a message to the log.
	LogMessage(ctx context.Context, msg Message) error
	// RecentMessages returns up to limit messages for target, newest first.
	RecentMessages(ctx context.Context, target string, limit int) ([]Message, error)
	// UpdateChannel records a topic change.
	UpdateChannel(ctx context.Context, name, topic, setBy string) error
	// GetChannel returns the last recorded topic of a channel.
	GetChannel(ctx context.Context, name string) (*ChannelRecord, error)
	// Close closes the underlying database connection.
	Close() error
}
