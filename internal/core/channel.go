package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Channel holds the authoritative state of a single chat channel: members,
// operators, invitees and access-control modes. All methods are safe for
// concurrent use; the lock is never held while delivering to a member.
type Channel struct {
	mu  sync.Mutex
	log *zerolog.Logger

	name       string
	topic      string
	topicSetBy string
	topicSetAt time.Time
	createdAt  time.Time

	members   []Member
	operators []Member
	invitees  []Member
	modes     Modes
}

// NewChannel constructs an empty channel with no modes set.
func NewChannel(name string, logger *zerolog.Logger) *Channel {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Channel{
		name:      name,
		log:       logger,
		createdAt: time.Now(),
	}
}

func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName replaces the stored name. Used to correct casing only.
func (c *Channel) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *Channel) CreatedAt() time.Time { return c.createdAt }

func (c *Channel) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// TopicInfo returns the topic along with who set it and when.
func (c *Channel) TopicInfo() (topic, setBy string, setAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic, c.topicSetBy, c.topicSetAt
}

// SetTopic stores the topic. Authorization is the caller's job, see CanSetTopic.
func (c *Channel) SetTopic(topic, setBy string) {
	c.mu.Lock()
	c.topic = topic
	c.topicSetBy = setBy
	c.topicSetAt = time.Now()
	c.mu.Unlock()
}

// CanSetTopic reports whether m may change the topic under the current modes.
func (c *Channel) CanSetTopic(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isMemberLocked(m) {
		return false
	}
	return !c.modes.topicRestricted || c.isOperatorLocked(m)
}

// ==== Membership & authority ====

// IsMember reports whether m appears among the members or the operators.
func (c *Channel) IsMember(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isMemberLocked(m)
}

func (c *Channel) isMemberLocked(m Member) bool {
	if isNil(m) {
		return false
	}
	match := func(x Member) bool { return sameMember(x, m) }
	return lo.ContainsBy(c.members, match) || lo.ContainsBy(c.operators, match)
}

// IsOperator reports whether m holds operator status.
func (c *Channel) IsOperator(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOperatorLocked(m)
}

func (c *Channel) isOperatorLocked(m Member) bool {
	if isNil(m) {
		return false
	}
	return lo.ContainsBy(c.operators, func(x Member) bool { return sameMember(x, m) })
}

// AddMember inserts m. Returns false if m is already present.
func (c *Channel) AddMember(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addMemberLocked(m)
}

func (c *Channel) addMemberLocked(m Member) bool {
	if isNil(m) {
		return false
	}
	if lo.ContainsBy(c.members, func(x Member) bool { return sameMember(x, m) }) {
		return false
	}
	c.members = append(c.members, m)
	return true
}

// AddOperator grants operator status. It does not check membership.
func (c *Channel) AddOperator(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isNil(m) {
		return false
	}
	if lo.ContainsBy(c.operators, func(x Member) bool { return sameMember(x, m) }) {
		return false
	}
	c.operators = append(c.operators, m)
	return true
}

// RemoveMember removes the first matching member and any operator status
// it held. Returns whether a member entry was removed.
func (c *Channel) RemoveMember(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isNil(m) {
		return false
	}
	var removed bool
	c.members, removed = removeFirst(c.members, func(x Member) bool { return sameMember(x, m) })
	c.operators, _ = removeFirst(c.operators, func(x Member) bool { return sameMember(x, m) })
	return removed
}

// RemoveOperator revokes operator status by identity.
func (c *Channel) RemoveOperator(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isNil(m) {
		return false
	}
	var removed bool
	c.operators, removed = removeFirst(c.operators, func(x Member) bool { return sameIdentity(x, m) })
	return removed
}

// DemoteAllOperators clears the operator set.
func (c *Channel) DemoteAllOperators() {
	c.mu.Lock()
	c.operators = nil
	c.mu.Unlock()
}

// Len returns the number of members.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Empty returns true if no members are in the channel.
func (c *Channel) Empty() bool {
	return c.Len() == 0
}

// Members returns a snapshot of the member list in join order.
func (c *Channel) Members() []Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Member(nil), c.members...)
}

// Operators returns a snapshot of the operator list.
func (c *Channel) Operators() []Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Member(nil), c.operators...)
}

// Bot returns the first member flagged as a service bot, or nil.
func (c *Channel) Bot() Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	bot, ok := lo.Find(c.members, func(x Member) bool { return x.IsBot() })
	if !ok {
		return nil
	}
	return bot
}

// Names lists member nicks, operators prefixed with "@".
func (c *Channel) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.members, func(x Member, _ int) string {
		if c.isOperatorLocked(x) {
			return "@" + x.Nick()
		}
		return x.Nick()
	})
}

// ==== Modes & join eligibility ====

// Modes returns a copy of the current mode state.
func (c *Channel) Modes() Modes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes
}

// HasMode reports whether the flag is active.
func (c *Channel) HasMode(mode byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes.Has(mode)
}

// SetPassword sets the channel key. An empty key is ignored.
func (c *Channel) SetPassword(password string) {
	if password == "" {
		return
	}
	c.mu.Lock()
	c.modes.key = &password
	c.mu.Unlock()
}

func (c *Channel) ClearPassword() {
	c.mu.Lock()
	c.modes.key = nil
	c.mu.Unlock()
}

// Password returns the key, or "" when the channel has none.
func (c *Channel) Password() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes.Key()
}

// SetUserLimit enforces a maximum member count.
func (c *Channel) SetUserLimit(limit int) error {
	if limit < 0 {
		return ErrInvalidLimit
	}
	c.mu.Lock()
	c.modes.limit = &limit
	c.mu.Unlock()
	return nil
}

func (c *Channel) ClearUserLimit() {
	c.mu.Lock()
	c.modes.limit = nil
	c.mu.Unlock()
}

// UserLimit returns the limit, or 0 when none is set.
func (c *Channel) UserLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes.Limit()
}

func (c *Channel) SetInviteOnly() {
	c.mu.Lock()
	c.modes.inviteOnly = true
	c.mu.Unlock()
}

func (c *Channel) ClearInviteOnly() {
	c.mu.Lock()
	c.modes.inviteOnly = false
	c.mu.Unlock()
}

func (c *Channel) IsInviteOnly() bool {
	return c.HasMode(ModeInviteOnly)
}

func (c *Channel) SetTopicRestriction() {
	c.mu.Lock()
	c.modes.topicRestricted = true
	c.mu.Unlock()
}

func (c *Channel) ClearTopicRestriction() {
	c.mu.Lock()
	c.modes.topicRestricted = false
	c.mu.Unlock()
}

func (c *Channel) IsTopicRestricted() bool {
	return c.HasMode(ModeTopicRestricted)
}

// ModeSummary returns "+" followed by k and l when active. Invite-only and
// topic restriction are not part of this summary; see FullModeSummary.
func (c *Channel) ModeSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes.Summary()
}

// FullModeSummary returns every active flag plus the limit parameter.
func (c *Channel) FullModeSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes.FullSummary()
}

// CanJoin checks the key and the user limit. Invite-only is not evaluated
// here; callers consult IsInvited first.
func (c *Channel) CanJoin(password string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joinErrorLocked(password) == nil
}

func (c *Channel) joinErrorLocked(password string) *CoreError {
	if c.modes.key != nil && password != *c.modes.key {
		return coreError(ErrCodeBadKey, "cannot join channel (+k)")
	}
	if c.modes.limit != nil && len(c.members) >= *c.modes.limit {
		return coreError(ErrCodeChannelFull, "cannot join channel (+l)")
	}
	return nil
}

// IsFull compares the member count to the stored limit whether or not the
// limit mode is active. Check HasMode(ModeLimit) before relying on it.
func (c *Channel) IsFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members) >= c.modes.Limit()
}

// Admit runs the full join check for m under a single lock: invite gating,
// key, limit, then insertion. When consumeInvite is set a matching
// invitation is revoked on success.
func (c *Channel) Admit(m Member, password string, consumeInvite bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isNil(m) {
		return coreError(ErrCodeInvalidMember, "invalid member")
	}
	if c.isMemberLocked(m) {
		return coreError(ErrCodeAlreadyJoined, "already on channel")
	}
	if c.modes.inviteOnly && !c.isInvitedLocked(m) {
		return coreError(ErrCodeInviteOnly, "cannot join channel (+i)")
	}
	if err := c.joinErrorLocked(password); err != nil {
		return err
	}
	c.addMemberLocked(m)
	if consumeInvite {
		c.revokeLocked(m)
	}
	return nil
}

// ==== Invitations ====

// Invite pre-authorizes m. Returns false if m is already invited.
func (c *Channel) Invite(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isNil(m) || c.isInvitedLocked(m) {
		return false
	}
	c.invitees = append(c.invitees, m)
	return true
}

// IsInvited reports whether m holds an invitation.
func (c *Channel) IsInvited(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isInvitedLocked(m) {
		return true
	}
	if !isNil(m) {
		c.log.Debug().Str("channel", c.name).Str("nick", m.Nick()).Int("invitees", len(c.invitees)).Msg("not invited")
	}
	return false
}

func (c *Channel) isInvitedLocked(m Member) bool {
	if isNil(m) {
		return false
	}
	return lo.ContainsBy(c.invitees, func(x Member) bool { return sameMember(x, m) })
}

// RevokeInvitation removes the invitation matching m by identity, falling
// back to the nick. Returns whether one was removed.
func (c *Channel) RevokeInvitation(m Member) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revokeLocked(m)
}

func (c *Channel) revokeLocked(m Member) bool {
	if isNil(m) {
		return false
	}
	var removed bool
	c.invitees, removed = removeFirst(c.invitees, func(x Member) bool { return sameIdentity(x, m) })
	if !removed {
		c.invitees, removed = removeFirst(c.invitees, func(x Member) bool { return sameNick(x, m) })
	}
	return removed
}

// Invitees returns a snapshot of pending invitations.
func (c *Channel) Invitees() []Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Member(nil), c.invitees...)
}

// ==== Broadcast ====

// FormatLine prefixes body with the sender's nick and appends CRLF.
func FormatLine(senderNick, body string) string {
	return ":" + senderNick + " " + body + "\r\n"
}

// Broadcast delivers body, prefixed with the sender's nick, to every member
// except the sender. Each delivery is independent; a member whose queue is
// full is skipped. Returns the number of members that accepted the line.
func (c *Channel) Broadcast(body string, sender Member) int {
	if isNil(sender) {
		return 0
	}
	c.mu.Lock()
	name := c.name
	recipients := lo.Filter(c.members, func(x Member, _ int) bool { return !sameIdentity(x, sender) })
	c.mu.Unlock()

	line := FormatLine(sender.Nick(), body)
	delivered := 0
	for _, m := range recipients {
		if m.Send(line) {
			delivered++
			continue
		}
		c.log.Warn().Str("channel", name).Str("nick", m.Nick()).Msg("dropped line for slow member")
	}
	return delivered
}

// SendAll delivers a preformatted line to every member, sender included.
func (c *Channel) SendAll(line string) int {
	c.mu.Lock()
	recipients := append([]Member(nil), c.members...)
	c.mu.Unlock()

	delivered := 0
	for _, m := range recipients {
		if m.Send(line) {
			delivered++
		}
	}
	return delivered
}

// ==== Snapshots ====

// Info is a read-only view of a channel.
type Info struct {
	Name      string
	Topic     string
	TopicBy   string
	TopicAt   time.Time
	Modes     string
	Members   []string
	Operators []string
	Invitees  []string
	Bot       string
	CreatedAt time.Time
}

// Info captures the current state.
func (c *Channel) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	nicks := func(ms []Member) []string {
		return lo.Map(ms, func(x Member, _ int) string { return x.Nick() })
	}
	info := Info{
		Name:      c.name,
		Topic:     c.topic,
		TopicBy:   c.topicSetBy,
		TopicAt:   c.topicSetAt,
		Modes:     c.modes.FullSummary(),
		Members:   nicks(c.members),
		Operators: nicks(c.operators),
		Invitees:  nicks(c.invitees),
		CreatedAt: c.createdAt,
	}
	if bot, ok := lo.Find(c.members, func(x Member) bool { return x.IsBot() }); ok {
		info.Bot = bot.Nick()
	}
	return info
}

func removeFirst(ms []Member, match func(Member) bool) ([]Member, bool) {
	_, idx, ok := lo.FindIndexOf(ms, match)
	if !ok {
		return ms, false
	}
	return append(ms[:idx], ms[idx+1:]...), true
}
