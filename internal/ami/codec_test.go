package ami

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestEncodeAction(t *testing.T) {
	got := string(encodeAction("Command", "gui-7", header{"Command", "pjsip show endpoints"}))
	assert.Equal(t, "Action: Command\r\nActionID: gui-7\r\nCommand: pjsip show endpoints\r\n\r\n", got)
}

func TestEncodeActionFlattensNewlines(t *testing.T) {
	got := string(encodeAction("Command", "", header{"Command", "core show version\r\nAction: Logoff"}))
	assert.Equal(t, "Action: Command\r\nCommand: core show version  Action: Logoff\r\n\r\n", got)
}

func TestReadBanner(t *testing.T) {
	line, err := readBanner(reader("Asterisk Call Manager/7.0.3\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "Asterisk Call Manager/7.0.3", line)

	_, err = readBanner(reader("SSH-2.0-OpenSSH_9.6\r\n"))
	require.ErrorIs(t, err, errBadBanner)
}

func TestReadMessageOutputHeaders(t *testing.T) {
	r := reader("Response: Success\r\nActionID: gui-1\r\nMessage: Command output follows\r\n" +
		"Output: Asterisk 20.5.0\r\nOutput: second line\r\n\r\n")

	msg, err := readMessage(r)
	require.NoError(t, err)
	assert.True(t, msg.Success())
	assert.Equal(t, "gui-1", msg.ActionID())
	assert.Equal(t, "Asterisk 20.5.0\nsecond line", msg.Text())
}

func TestReadMessageLegacyFollows(t *testing.T) {
	r := reader("Response: Follows\r\nPrivilege: Command\r\nActionID: gui-2\r\n" +
		"Channel              Location             State   Application(Data)\n" +
		"\n" +
		"0 active channels\n" +
		"--END COMMAND--\r\n\r\n")

	msg, err := readMessage(r)
	require.NoError(t, err)
	assert.True(t, msg.Success())
	assert.Equal(t, "gui-2", msg.ActionID())
	require.Len(t, msg.Output, 3)
	assert.Equal(t, "0 active channels", msg.Output[2])
}

func TestReadMessageLegacyFollowsInlineTerminator(t *testing.T) {
	r := reader("Response: Follows\r\nActionID: gui-3\r\nQueue reloaded--END COMMAND--\r\n\r\n")

	msg, err := readMessage(r)
	require.NoError(t, err)
	assert.Equal(t, []string{"Queue reloaded"}, msg.Output)
}

func TestReadMessageEventAndSkipsStrayBlankLines(t *testing.T) {
	r := reader("\r\n\r\nEvent: PeerStatus\r\nPrivilege: system,all\r\nPeer: PJSIP/1001\r\nPeerStatus: Reachable\r\n\r\n")

	msg, err := readMessage(r)
	require.NoError(t, err)
	assert.True(t, msg.IsEvent())
	assert.Equal(t, "PJSIP/1001", msg.Get("peer"))
	assert.Equal(t, "Reachable", msg.Get("PeerStatus"))
}

func TestReadMessageErrorResponse(t *testing.T) {
	msg, err := readMessage(reader("Response: Error\r\nActionID: x\r\nMessage: Permission denied\r\n\r\n"))
	require.NoError(t, err)
	assert.False(t, msg.Success())
	assert.Equal(t, "Permission denied", msg.Get("Message"))
}

func TestReadMessageTruncated(t *testing.T) {
	_, err := readMessage(reader("Response: Success\r\nActionID: x\r\n"))
	require.Error(t, err)
}
