package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(opts HubOptions) *Hub {
	if opts.ServerName == "" {
		opts.ServerName = "irc.test"
	}
	return NewHub(opts, nil, nil)
}

func register(t *testing.T, h *Hub, id, nick string) *Client {
	t.Helper()

	c := NewClient(id, "127.0.0.1", 64)
	h.HandleLine(context.Background(), c, "NICK "+nick)
	h.HandleLine(context.Background(), c, "USER "+nick+" 0 * :"+nick)
	mustLine(t, c, " 001 ", nick)
	return c
}

func send(h *Hub, c *Client, line string) {
	h.HandleLine(context.Background(), c, line)
}

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #general")
	send(h, bob, "JOIN #general")

	// Bob should see his own join.
	mustLine(t, bob, ":bob JOIN #general")
	mustLine(t, bob, " 353 ", "bob", "@alice")
	mustLine(t, alice, ":bob JOIN #general")

	send(h, alice, "PRIVMSG #general :hi")
	assert.Equal(t, ":alice PRIVMSG #general :hi\r\n", mustLine(t, bob, "PRIVMSG"))
	for _, line := range drain(alice) {
		assert.NotContains(t, line, "PRIVMSG")
	}

	send(h, alice, "PART #general :bye")
	mustLine(t, bob, ":alice PART #general :bye")

	ch, ok := h.Lookup("#general")
	require.True(t, ok)
	assert.False(t, ch.IsMember(alice))
	assert.False(t, ch.IsOperator(alice))
}

func TestHubCreatorBecomesOperator(t *testing.T) {
	h := newTestHub(HubOptions{DefaultTopicRestricted: true})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #Room")
	ch, ok := h.Lookup("#room")
	require.True(t, ok)
	assert.Equal(t, "#Room", ch.Name())
	assert.True(t, ch.IsOperator(alice))
	assert.True(t, ch.HasMode(ModeTopicRestricted))
}

func TestHubDoubleJoinIsSilent(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #general")
	drain(alice)
	send(h, alice, "JOIN #general")

	assert.Empty(t, drain(alice))
	ch, _ := h.Lookup("#general")
	assert.Equal(t, 1, ch.Len())
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")
	send(h, bob, "JOIN #general")

	send(h, alice, "PRIVMSG #general :hi")
	mustLine(t, alice, " 404 alice #general ")
}

func TestHubPartUnknownChannelError(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")

	send(h, alice, "PART #ghost")
	mustLine(t, alice, " 403 alice #ghost ")
}

func TestHubRequiresRegistration(t *testing.T) {
	h := newTestHub(HubOptions{})
	c := NewClient("x", "127.0.0.1", 8)

	send(h, c, "JOIN #general")
	mustLine(t, c, " 451 ")

	_, ok := h.Lookup("#general")
	assert.False(t, ok)
}

func TestHubNickInUse(t *testing.T) {
	h := newTestHub(HubOptions{})
	register(t, h, "a", "alice")
	c := NewClient("b", "127.0.0.1", 8)

	send(h, c, "NICK Alice")
	mustLine(t, c, " 433 ")
}

func TestHubKeyedChannel(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #secret")
	send(h, alice, "MODE #secret +k hunter2")
	mustLine(t, alice, ":alice MODE #secret +k hunter2")

	send(h, bob, "JOIN #secret wrong")
	mustLine(t, bob, " 475 bob #secret ")

	send(h, bob, "JOIN #secret hunter2")
	mustLine(t, bob, ":bob JOIN #secret")
}

func TestHubLimitedChannel(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #small")
	send(h, alice, "MODE #small +l 1")
	mustLine(t, alice, "MODE #small +l 1")

	send(h, bob, "JOIN #small")
	mustLine(t, bob, " 471 bob #small ")

	send(h, alice, "MODE #small +l -3")
	mustLine(t, alice, " 696 ")
	ch, _ := h.Lookup("#small")
	assert.Equal(t, 1, ch.UserLimit())
}

func TestHubInviteOnlyChannel(t *testing.T) {
	h := newTestHub(HubOptions{SingleUseInvites: true})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #club")
	send(h, alice, "MODE #club +i")

	send(h, bob, "JOIN #club")
	mustLine(t, bob, " 473 bob #club ")

	send(h, alice, "INVITE bob #club")
	mustLine(t, alice, " 341 alice bob ", "#club")
	mustLine(t, bob, ":alice INVITE bob #club")

	send(h, bob, "JOIN #club")
	mustLine(t, bob, ":bob JOIN #club")

	ch, _ := h.Lookup("#club")
	assert.False(t, ch.IsInvited(bob))
}

func TestHubInvitationsPersistByDefault(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #club")
	send(h, alice, "MODE #club +i")
	send(h, alice, "INVITE bob #club")
	send(h, bob, "JOIN #club")
	mustLine(t, bob, ":bob JOIN #club")

	ch, _ := h.Lookup("#club")
	assert.True(t, ch.IsInvited(bob))
}

func TestHubTopicRestriction(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #t")
	send(h, bob, "JOIN #t")

	send(h, bob, "TOPIC #t :from bob")
	mustLine(t, alice, ":bob TOPIC #t :from bob")

	send(h, alice, "MODE #t +t")
	send(h, bob, "TOPIC #t :again")
	mustLine(t, bob, " 482 bob #t ")

	send(h, bob, "TOPIC #t")
	mustLine(t, bob, " 332 bob #t :from bob")
}

func TestHubModeChangesRequireOperator(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #m")
	send(h, bob, "JOIN #m")

	send(h, bob, "MODE #m +i")
	mustLine(t, bob, " 482 bob #m ")

	send(h, alice, "MODE #m +o bob")
	mustLine(t, bob, ":alice MODE #m +o bob")
	send(h, bob, "MODE #m +i")
	mustLine(t, alice, ":bob MODE #m +i")

	ch, _ := h.Lookup("#m")
	assert.True(t, ch.IsInviteOnly())
}

func TestHubModeQuery(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #q")
	send(h, alice, "MODE #q +ikl key 4")
	drain(alice)

	send(h, alice, "MODE #q")
	line := mustLine(t, alice, " 324 alice #q ")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "+kl"), line)
}

func TestHubFullModeQuery(t *testing.T) {
	h := newTestHub(HubOptions{FullModeSummary: true})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #q")
	send(h, alice, "MODE #q +ikl key 4")
	drain(alice)

	send(h, alice, "MODE #q")
	mustLine(t, alice, " 324 alice #q +ikl ", "4")
}

func TestHubDeopAll(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #d")
	send(h, bob, "JOIN #d")
	send(h, alice, "MODE #d +o bob")
	send(h, alice, "MODE #d -o *")

	ch, _ := h.Lookup("#d")
	assert.Empty(t, ch.Operators())
}

func TestHubUnknownMode(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #u")
	send(h, alice, "MODE #u +z")
	mustLine(t, alice, " 472 alice z ")
}

func TestHubKick(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #k")
	send(h, bob, "JOIN #k")

	send(h, bob, "KICK #k alice")
	mustLine(t, bob, " 482 bob #k ")

	send(h, alice, "KICK #k bob :out")
	mustLine(t, bob, ":alice KICK #k bob :out")

	ch, _ := h.Lookup("#k")
	assert.False(t, ch.IsMember(bob))
}

func TestHubEmptyChannelIsRemoved(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")

	send(h, alice, "JOIN #tmp")
	_, ok := h.Lookup("#tmp")
	require.True(t, ok)

	send(h, alice, "PART #tmp")
	_, ok = h.Lookup("#tmp")
	assert.False(t, ok)
}

func TestHubNickChangeKeepsMembership(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "JOIN #n")
	send(h, bob, "JOIN #n")

	send(h, alice, "NICK alicia")
	mustLine(t, bob, ":alice NICK alicia")

	ch, _ := h.Lookup("#n")
	assert.True(t, ch.IsOperator(alice))
	assert.Equal(t, []string{"@alicia", "bob"}, ch.Names())

	_, ok := h.ClientByNick("alice")
	assert.False(t, ok)
}

func TestHubQuitCleansUp(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")
	carol := register(t, h, "c", "carol")

	send(h, alice, "JOIN #q")
	send(h, bob, "JOIN #q")
	send(h, alice, "MODE #q +i")
	send(h, alice, "INVITE carol #q")

	send(h, bob, "QUIT :gone")
	mustLine(t, alice, ":bob QUIT :gone")
	<-bob.Done()

	ch, _ := h.Lookup("#q")
	assert.False(t, ch.IsMember(bob))

	send(h, carol, "QUIT")
	assert.False(t, ch.IsInvited(carol))
	assert.Equal(t, 1, h.ClientCount())
}

func TestHubPrivateMessage(t *testing.T) {
	h := newTestHub(HubOptions{})
	alice := register(t, h, "a", "alice")
	bob := register(t, h, "b", "bob")

	send(h, alice, "PRIVMSG bob :psst")
	mustLine(t, bob, ":alice PRIVMSG bob :psst")

	send(h, alice, "PRIVMSG nobody :psst")
	mustLine(t, alice, " 401 alice nobody ")
}

func TestHubServiceBot(t *testing.T) {
	h := newTestHub(HubOptions{ServiceBots: []string{"ChanServ"}})
	alice := register(t, h, "a", "alice")
	bot := register(t, h, "s", "chanserv")

	send(h, alice, "JOIN #b")
	send(h, bot, "JOIN #b")

	ch, _ := h.Lookup("#b")
	require.NotNil(t, ch.Bot())
	assert.Equal(t, "chanserv", ch.Bot().Nick())

	infos := h.Channels()
	require.Len(t, infos, 1)
	assert.Equal(t, "chanserv", infos[0].Bot)
}

func TestHubPing(t *testing.T) {
	h := newTestHub(HubOptions{})
	c := NewClient("x", "127.0.0.1", 8)

	send(h, c, "PING :token")
	mustLine(t, c, "PONG", "token")
}
