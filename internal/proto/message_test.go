package proto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	ev, err := Parse("privmsg #chan :hello there\r\n")
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", ev.Command)
	assert.Equal(t, []string{"#chan", "hello there"}, ev.Params)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("\r\n")
	assert.ErrorIs(t, err, ErrEmptyLine)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, ErrEmptyLine)
}

func TestReply(t *testing.T) {
	line := Reply("irc.test", "", "451", "You have not registered")
	assert.True(t, strings.HasPrefix(line, ":irc.test 451 * "), line)
	assert.True(t, strings.HasSuffix(line, " :You have not registered\r\n"), line)
}

func TestParamAndSplitList(t *testing.T) {
	ev, err := Parse("JOIN #a,,#b key")
	require.NoError(t, err)

	assert.Equal(t, "#a,,#b", Param(ev, 0))
	assert.Equal(t, "", Param(ev, 5))
	assert.Equal(t, "", Param(nil, 0))
	assert.Equal(t, []string{"#a", "#b"}, SplitList(Param(ev, 0)))
}

func TestNames(t *testing.T) {
	assert.True(t, IsChannel("#general"))
	assert.False(t, IsChannel("general"))
	assert.True(t, IsNick("alice"))
	assert.False(t, IsNick("#alice"))
	assert.Equal(t, Fold("Alice[]"), Fold("alice{}"))
}
