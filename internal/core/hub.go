package core

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/store"
)

// HubOptions tune command handling.
type HubOptions struct {
	// ServerName is the source of numeric replies.
	ServerName string
	// DefaultTopicRestricted sets +t on newly created channels.
	DefaultTopicRestricted bool
	// SingleUseInvites revokes an invitation once it has been used to join.
	SingleUseInvites bool
	// FullModeSummary reports i and t (and the limit value) in RPL_CHANNELMODEIS
	// instead of the key/limit-only summary.
	FullModeSummary bool
	// ServiceBots lists nicks flagged as service bots on registration.
	ServiceBots []string
}

// Hub is the channel registry and command dispatcher. It owns the nick and
// channel namespaces and removes channels once they become empty.
type Hub struct {
	opts  HubOptions
	bots  map[string]struct{}
	store store.Store
	log   *zerolog.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	channels map[string]*Channel
}

// NewHub creates a hub. st may be nil to disable message logging.
func NewHub(opts HubOptions, st store.Store, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.ServerName == "" {
		opts.ServerName = "irc.local"
	}
	bots := make(map[string]struct{}, len(opts.ServiceBots))
	for _, nick := range opts.ServiceBots {
		bots[proto.Fold(nick)] = struct{}{}
	}
	return &Hub{
		opts:     opts,
		bots:     bots,
		store:    st,
		log:      logger,
		clients:  make(map[string]*Client),
		channels: make(map[string]*Channel),
	}
}

// ServerName returns the configured server name.
func (h *Hub) ServerName() string { return h.opts.ServerName }

// HandleLine parses and executes one line received from c.
func (h *Hub) HandleLine(ctx context.Context, c *Client, line string) {
	ev, err := proto.Parse(line)
	if err != nil {
		if !errors.Is(err, proto.ErrEmptyLine) {
			h.log.Debug().Err(err).Str("client_id", c.ID()).Msg("discarding line")
		}
		return
	}

	switch ev.Command {
	case girc.PING:
		c.Send(proto.Line(h.opts.ServerName, girc.PONG, h.opts.ServerName, proto.Param(ev, 0)))
		return
	case girc.PONG, girc.CAP:
		return
	case girc.NICK:
		h.handleNick(c, ev)
		return
	case girc.USER:
		h.handleUser(c, ev)
		return
	case girc.QUIT:
		reason := proto.Param(ev, 0)
		if reason == "" {
			reason = "Client Quit"
		}
		h.Disconnect(c, reason)
		return
	}

	if !c.Registered() {
		h.reply(c, girc.ERR_NOTREGISTERED, "You have not registered")
		return
	}

	switch ev.Command {
	case girc.JOIN:
		h.handleJoin(c, ev)
	case girc.PART:
		h.handlePart(c, ev)
	case girc.KICK:
		h.handleKick(c, ev)
	case girc.TOPIC:
		h.handleTopic(ctx, c, ev)
	case girc.INVITE:
		h.handleInvite(c, ev)
	case girc.NAMES:
		h.handleNames(c, ev)
	case girc.MODE:
		h.handleMode(c, ev)
	case girc.PRIVMSG, girc.NOTICE:
		h.handleMessage(ctx, c, ev)
	default:
		h.reply(c, girc.ERR_UNKNOWNCOMMAND, ev.Command, "Unknown command")
	}
}

// Disconnect removes c from every channel, invitation list and the nick
// registry, notifies co-members and closes the client.
func (h *Hub) Disconnect(c *Client, reason string) {
	nick := c.Nick()

	h.mu.Lock()
	if nick != "" && h.clients[proto.Fold(nick)] == c {
		delete(h.clients, proto.Fold(nick))
	}
	all := lo.Values(h.channels)
	h.mu.Unlock()

	joined := lo.Filter(all, func(ch *Channel, _ int) bool { return ch.IsMember(c) })
	if nick != "" {
		h.sendToPeers(c, joined, FormatLine(nick, "QUIT :"+reason), false)
	}
	for _, ch := range all {
		ch.RemoveMember(c)
		ch.RemoveOperator(c)
		ch.RevokeInvitation(c)
	}
	for _, ch := range joined {
		h.reapIfEmpty(ch)
	}

	c.Send("ERROR :Closing Link: " + reason + "\r\n")
	c.Close()
	h.log.Debug().Str("client_id", c.ID()).Str("nick", nick).Str("reason", reason).Msg("client disconnected")
}

// Lookup returns the channel registered under name.
func (h *Hub) Lookup(name string) (*Channel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.channels[proto.Fold(name)]
	return ch, ok
}

// ClientByNick returns the registered client using nick.
func (h *Hub) ClientByNick(nick string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[proto.Fold(nick)]
	return c, ok
}

// ClientCount returns the number of nicks in use.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Channels returns a snapshot of every channel ordered by name.
func (h *Hub) Channels() []Info {
	h.mu.RLock()
	all := lo.Values(h.channels)
	h.mu.RUnlock()

	infos := lo.Map(all, func(ch *Channel, _ int) Info { return ch.Info() })
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// channelsOf returns the channels c is a member of.
func (h *Hub) channelsOf(c *Client) []*Channel {
	h.mu.RLock()
	all := lo.Values(h.channels)
	h.mu.RUnlock()
	return lo.Filter(all, func(ch *Channel, _ int) bool { return ch.IsMember(c) })
}

// join creates the channel if needed and admits c. Registry lock is held so
// a concurrent reap cannot orphan the channel between lookup and admission.
func (h *Hub) join(c *Client, name, key string) (*Channel, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	folded := proto.Fold(name)
	ch, ok := h.channels[folded]
	created := false
	if !ok {
		ch = NewChannel(name, h.log)
		if h.opts.DefaultTopicRestricted {
			ch.SetTopicRestriction()
		}
		h.channels[folded] = ch
		created = true
	}

	if err := ch.Admit(c, key, h.opts.SingleUseInvites); err != nil {
		if created {
			delete(h.channels, folded)
		}
		return nil, false, err
	}
	if created {
		ch.AddOperator(c)
	} else if ch.Len() == 1 && ch.Name() != name {
		ch.SetName(name)
	}
	return ch, created, nil
}

func (h *Hub) reapIfEmpty(ch *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	folded := proto.Fold(ch.Name())
	if ch.Empty() && h.channels[folded] == ch {
		delete(h.channels, folded)
		h.log.Debug().Str("channel", ch.Name()).Msg("channel removed")
	}
}

func (h *Hub) reply(c *Client, numeric string, params ...string) {
	c.Send(proto.Reply(h.opts.ServerName, c.Nick(), numeric, params...))
}

// sendToPeers delivers line once to every member sharing one of the given
// channels with c, and to c itself when self is set.
func (h *Hub) sendToPeers(c *Client, chans []*Channel, line string, self bool) {
	seen := map[string]struct{}{c.ID(): {}}
	if self {
		c.Send(line)
	}
	for _, ch := range chans {
		for _, m := range ch.Members() {
			if _, ok := seen[m.ID()]; ok {
				continue
			}
			seen[m.ID()] = struct{}{}
			m.Send(line)
		}
	}
}

func (h *Hub) logMessage(ctx context.Context, msg store.Message) {
	if h.store == nil {
		return
	}
	if err := h.store.LogMessage(ctx, msg); err != nil {
		h.log.Warn().Err(err).Str("target", msg.Target).Msg("failed to log message")
	}
}
