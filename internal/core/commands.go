package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/lrstanley/girc"

	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/store"
)

func (h *Hub) handleNick(c *Client, ev *girc.Event) {
	nick := proto.Param(ev, 0)
	if nick == "" {
		h.reply(c, girc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}
	if !proto.IsNick(nick) {
		h.reply(c, girc.ERR_ERRONEUSNICKNAME, nick, "Erroneous nickname")
		return
	}

	old := c.Nick()
	if old == nick {
		return
	}

	h.mu.Lock()
	if other, ok := h.clients[proto.Fold(nick)]; ok && other != c {
		h.mu.Unlock()
		h.reply(c, girc.ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return
	}
	if old != "" && h.clients[proto.Fold(old)] == c {
		delete(h.clients, proto.Fold(old))
	}
	h.clients[proto.Fold(nick)] = c
	c.SetNick(nick)
	h.mu.Unlock()

	_, bot := h.bots[proto.Fold(nick)]
	c.SetBot(bot)

	if old != "" && c.Registered() {
		h.sendToPeers(c, h.channelsOf(c), FormatLine(old, "NICK "+nick), true)
	}
	h.welcome(c)
}

func (h *Hub) handleUser(c *Client, ev *girc.Event) {
	if len(ev.Params) < 4 {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.USER, "Not enough parameters")
		return
	}
	if user, _ := c.User(); user != "" {
		h.reply(c, proto.ErrAlreadyRegistered, "You may not reregister")
		return
	}
	c.SetUser(ev.Params[0], ev.Params[3])
	h.welcome(c)
}

func (h *Hub) welcome(c *Client) {
	if !c.markWelcomed() {
		return
	}
	h.reply(c, girc.RPL_WELCOME, "Welcome to the "+h.opts.ServerName+" IRC network, "+c.Nick())
	h.log.Info().Str("client_id", c.ID()).Str("nick", c.Nick()).Bool("bot", c.IsBot()).Msg("client registered")
}

func (h *Hub) handleJoin(c *Client, ev *girc.Event) {
	target := proto.Param(ev, 0)
	if target == "" {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.JOIN, "Not enough parameters")
		return
	}
	if target == "0" {
		for _, ch := range h.channelsOf(c) {
			h.part(c, ch, "Left all channels")
		}
		return
	}

	keys := strings.Split(proto.Param(ev, 1), ",")
	for i, name := range proto.SplitList(target) {
		if !proto.IsChannel(name) {
			h.reply(c, girc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		ch, created, err := h.join(c, name, key)
		if err != nil {
			switch ErrorCode(err) {
			case ErrCodeAlreadyJoined:
			case ErrCodeInviteOnly:
				h.reply(c, girc.ERR_INVITEONLYCHAN, name, "Cannot join channel (+i)")
			case ErrCodeBadKey:
				h.reply(c, girc.ERR_BADCHANNELKEY, name, "Cannot join channel (+k)")
			case ErrCodeChannelFull:
				h.reply(c, girc.ERR_CHANNELISFULL, name, "Cannot join channel (+l)")
			default:
				h.log.Warn().Err(err).Str("channel", name).Msg("join failed")
			}
			continue
		}

		chName := ch.Name()
		ch.SendAll(FormatLine(c.Nick(), "JOIN "+chName))
		if topic := ch.Topic(); topic != "" {
			h.reply(c, girc.RPL_TOPIC, chName, topic)
		}
		h.sendNames(c, ch)
		h.log.Debug().Str("channel", chName).Str("nick", c.Nick()).Bool("created", created).Msg("joined")
	}
}

func (h *Hub) handlePart(c *Client, ev *girc.Event) {
	target := proto.Param(ev, 0)
	if target == "" {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.PART, "Not enough parameters")
		return
	}
	reason := proto.Param(ev, 1)
	for _, name := range proto.SplitList(target) {
		ch, ok := h.Lookup(name)
		if !ok {
			h.reply(c, girc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		if !ch.IsMember(c) {
			h.reply(c, girc.ERR_NOTONCHANNEL, name, "You're not on that channel")
			continue
		}
		h.part(c, ch, reason)
	}
}

func (h *Hub) part(c *Client, ch *Channel, reason string) {
	body := "PART " + ch.Name()
	if reason != "" {
		body += " :" + reason
	}
	ch.SendAll(FormatLine(c.Nick(), body))
	ch.RemoveMember(c)
	h.reapIfEmpty(ch)
}

func (h *Hub) handleKick(c *Client, ev *girc.Event) {
	if len(ev.Params) < 2 {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.KICK, "Not enough parameters")
		return
	}
	name := ev.Params[0]
	ch, ok := h.Lookup(name)
	if !ok {
		h.reply(c, girc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}
	if !ch.IsMember(c) {
		h.reply(c, girc.ERR_NOTONCHANNEL, name, "You're not on that channel")
		return
	}
	if !ch.IsOperator(c) {
		h.reply(c, girc.ERR_CHANOPRIVSNEEDED, name, "You're not channel operator")
		return
	}

	reason := proto.Param(ev, 2)
	if reason == "" {
		reason = c.Nick()
	}
	for _, nick := range proto.SplitList(ev.Params[1]) {
		target, ok := h.ClientByNick(nick)
		if !ok || !ch.IsMember(target) {
			h.reply(c, girc.ERR_USERNOTINCHANNEL, nick, ch.Name(), "They aren't on that channel")
			continue
		}
		ch.SendAll(FormatLine(c.Nick(), "KICK "+ch.Name()+" "+target.Nick()+" :"+reason))
		ch.RemoveMember(target)
	}
	h.reapIfEmpty(ch)
}

func (h *Hub) handleTopic(ctx context.Context, c *Client, ev *girc.Event) {
	name := proto.Param(ev, 0)
	if name == "" {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.TOPIC, "Not enough parameters")
		return
	}
	ch, ok := h.Lookup(name)
	if !ok {
		h.reply(c, girc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}

	if len(ev.Params) < 2 {
		if topic := ch.Topic(); topic != "" {
			h.reply(c, girc.RPL_TOPIC, ch.Name(), topic)
		} else {
			h.reply(c, girc.RPL_NOTOPIC, ch.Name(), "No topic is set")
		}
		return
	}

	if !ch.IsMember(c) {
		h.reply(c, girc.ERR_NOTONCHANNEL, ch.Name(), "You're not on that channel")
		return
	}
	if !ch.CanSetTopic(c) {
		h.reply(c, girc.ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}

	topic := ev.Params[1]
	ch.SetTopic(topic, c.Nick())
	ch.SendAll(FormatLine(c.Nick(), "TOPIC "+ch.Name()+" :"+topic))

	if h.store != nil {
		if err := h.store.UpdateChannel(ctx, ch.Name(), topic, c.Nick()); err != nil {
			h.log.Warn().Err(err).Str("channel", ch.Name()).Msg("failed to record topic")
		}
	}
}

func (h *Hub) handleInvite(c *Client, ev *girc.Event) {
	if len(ev.Params) < 2 {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.INVITE, "Not enough parameters")
		return
	}
	nick, name := ev.Params[0], ev.Params[1]

	target, ok := h.ClientByNick(nick)
	if !ok {
		h.reply(c, girc.ERR_NOSUCHNICK, nick, "No such nick/channel")
		return
	}
	ch, ok := h.Lookup(name)
	if !ok {
		h.reply(c, girc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return
	}
	if !ch.IsMember(c) {
		h.reply(c, girc.ERR_NOTONCHANNEL, ch.Name(), "You're not on that channel")
		return
	}
	if ch.IsInviteOnly() && !ch.IsOperator(c) {
		h.reply(c, girc.ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}
	if ch.IsMember(target) {
		h.reply(c, girc.ERR_USERONCHANNEL, target.Nick(), ch.Name(), "is already on channel")
		return
	}

	ch.Invite(target)
	h.reply(c, girc.RPL_INVITING, target.Nick(), ch.Name())
	target.Send(FormatLine(c.Nick(), "INVITE "+target.Nick()+" "+ch.Name()))
}

func (h *Hub) handleNames(c *Client, ev *girc.Event) {
	target := proto.Param(ev, 0)
	if target == "" {
		for _, ch := range h.channelsOf(c) {
			h.sendNames(c, ch)
		}
		return
	}
	for _, name := range proto.SplitList(target) {
		if ch, ok := h.Lookup(name); ok {
			h.sendNames(c, ch)
			continue
		}
		h.reply(c, girc.RPL_ENDOFNAMES, name, "End of /NAMES list")
	}
}

func (h *Hub) sendNames(c *Client, ch *Channel) {
	name := ch.Name()
	h.reply(c, girc.RPL_NAMREPLY, "=", name, strings.Join(ch.Names(), " "))
	h.reply(c, girc.RPL_ENDOFNAMES, name, "End of /NAMES list")
}

func (h *Hub) handleMessage(ctx context.Context, c *Client, ev *girc.Event) {
	notice := ev.Command == girc.NOTICE
	if len(ev.Params) < 1 {
		if !notice {
			h.reply(c, girc.ERR_NORECIPIENT, "No recipient given ("+ev.Command+")")
		}
		return
	}
	text := proto.Param(ev, 1)
	if text == "" {
		if !notice {
			h.reply(c, girc.ERR_NOTEXTTOSEND, "No text to send")
		}
		return
	}

	kind := store.MessageKindPrivmsg
	if notice {
		kind = store.MessageKindNotice
	}

	for _, target := range proto.SplitList(ev.Params[0]) {
		if proto.IsChannel(target) {
			ch, ok := h.Lookup(target)
			if !ok {
				if !notice {
					h.reply(c, girc.ERR_NOSUCHCHANNEL, target, "No such channel")
				}
				continue
			}
			if !ch.IsMember(c) {
				if !notice {
					h.reply(c, girc.ERR_CANNOTSENDTOCHAN, ch.Name(), "Cannot send to channel")
				}
				continue
			}
			ch.Broadcast(ev.Command+" "+ch.Name()+" :"+text, c)
			h.logMessage(ctx, store.Message{Sender: c.Nick(), Target: ch.Name(), Kind: kind, Body: text})
			continue
		}

		recipient, ok := h.ClientByNick(target)
		if !ok {
			if !notice {
				h.reply(c, girc.ERR_NOSUCHNICK, target, "No such nick/channel")
			}
			continue
		}
		recipient.Send(FormatLine(c.Nick(), ev.Command+" "+recipient.Nick()+" :"+text))
	}
}

func (h *Hub) handleMode(c *Client, ev *girc.Event) {
	target := proto.Param(ev, 0)
	if target == "" {
		h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.MODE, "Not enough parameters")
		return
	}

	if !proto.IsChannel(target) {
		if proto.Fold(target) != proto.Fold(c.Nick()) {
			h.reply(c, proto.ErrUsersDontMatch, "Cannot change mode for other users")
			return
		}
		umodes := "+"
		if c.IsBot() {
			umodes += "B"
		}
		h.reply(c, proto.RplUModeIs, umodes)
		return
	}

	ch, ok := h.Lookup(target)
	if !ok {
		h.reply(c, girc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return
	}

	modestr := proto.Param(ev, 1)
	if modestr == "" {
		summary := ch.ModeSummary()
		if h.opts.FullModeSummary {
			summary = ch.FullModeSummary()
		}
		h.reply(c, girc.RPL_CHANNELMODEIS, append([]string{ch.Name()}, strings.Fields(summary)...)...)
		return
	}
	if (modestr == "b" || modestr == "+b") && len(ev.Params) == 2 {
		h.reply(c, proto.RplEndOfBanList, ch.Name(), "End of channel ban list")
		return
	}

	if !ch.IsMember(c) {
		h.reply(c, girc.ERR_NOTONCHANNEL, ch.Name(), "You're not on that channel")
		return
	}
	if !ch.IsOperator(c) {
		h.reply(c, girc.ERR_CHANOPRIVSNEEDED, ch.Name(), "You're not channel operator")
		return
	}

	applied := h.applyModes(c, ch, modestr, ev.Params[2:])
	if applied != "" {
		ch.SendAll(FormatLine(c.Nick(), "MODE "+ch.Name()+" "+applied))
	}
}

// modeChanges accumulates applied changes as "+kl-i key 5".
type modeChanges struct {
	flags strings.Builder
	args  []string
	sign  byte
}

func (m *modeChanges) add(sign, mode byte, arg string) {
	if sign != m.sign {
		m.flags.WriteByte(sign)
		m.sign = sign
	}
	m.flags.WriteByte(mode)
	if arg != "" {
		m.args = append(m.args, arg)
	}
}

func (m *modeChanges) String() string {
	if m.flags.Len() == 0 {
		return ""
	}
	return strings.Join(append([]string{m.flags.String()}, m.args...), " ")
}

func (h *Hub) applyModes(c *Client, ch *Channel, modestr string, args []string) string {
	var changes modeChanges
	sign := byte('+')
	next := func() (string, bool) {
		if len(args) == 0 {
			return "", false
		}
		arg := args[0]
		args = args[1:]
		return arg, true
	}

	for i := 0; i < len(modestr); i++ {
		mode := modestr[i]
		switch mode {
		case '+', '-':
			sign = mode
		case ModeKey:
			if sign == '-' {
				next()
				ch.ClearPassword()
				changes.add(sign, mode, "*")
				continue
			}
			key, ok := next()
			if !ok || key == "" {
				h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.MODE, "Not enough parameters")
				continue
			}
			ch.SetPassword(key)
			changes.add(sign, mode, key)
		case ModeLimit:
			if sign == '-' {
				ch.ClearUserLimit()
				changes.add(sign, mode, "")
				continue
			}
			raw, ok := next()
			if !ok {
				h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.MODE, "Not enough parameters")
				continue
			}
			limit, err := strconv.Atoi(raw)
			if err == nil {
				err = ch.SetUserLimit(limit)
			}
			if err != nil {
				h.reply(c, proto.ErrInvalidModeParam, ch.Name(), "l", raw, "Invalid user limit")
				continue
			}
			changes.add(sign, mode, strconv.Itoa(limit))
		case ModeInviteOnly:
			if sign == '+' {
				ch.SetInviteOnly()
			} else {
				ch.ClearInviteOnly()
			}
			changes.add(sign, mode, "")
		case ModeTopicRestricted:
			if sign == '+' {
				ch.SetTopicRestriction()
			} else {
				ch.ClearTopicRestriction()
			}
			changes.add(sign, mode, "")
		case 'o':
			nick, ok := next()
			if !ok {
				h.reply(c, girc.ERR_NEEDMOREPARAMS, girc.MODE, "Not enough parameters")
				continue
			}
			if sign == '-' && nick == "*" {
				ch.DemoteAllOperators()
				changes.add(sign, mode, nick)
				continue
			}
			target, found := h.ClientByNick(nick)
			if !found || !ch.IsMember(target) {
				h.reply(c, girc.ERR_USERNOTINCHANNEL, nick, ch.Name(), "They aren't on that channel")
				continue
			}
			if sign == '+' {
				ch.AddOperator(target)
			} else {
				ch.RemoveOperator(target)
			}
			changes.add(sign, mode, target.Nick())
		default:
			h.reply(c, girc.ERR_UNKNOWNMODE, string(mode), "is unknown mode char to me")
		}
	}
	return changes.String()
}
