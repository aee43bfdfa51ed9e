package ami

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCommander struct {
	mu      sync.Mutex
	state   State
	outputs map[string]string
	errs    map[string]error
	sent    []string
}

func (s *stubCommander) SendCommand(_ context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, command)
	if err := s.errs[command]; err != nil {
		return "", err
	}
	return s.outputs[command], nil
}

func (s *stubCommander) State() State { return s.state }

type captureNotifier struct {
	notes []Notification
}

func (c *captureNotifier) Notify(n Notification) { c.notes = append(c.notes, n) }

func TestReloadAllStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("pjsip module unavailable")
	cmd := &stubCommander{state: StateConnected, errs: map[string]error{"pjsip reload": boom}}
	notes := &captureNotifier{}
	cli := NewCLI(cmd, WithNotifier(notes))

	err := cli.ReloadAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"pjsip reload"}, cmd.sent)

	require.Len(t, notes.notes, 1)
	assert.Equal(t, NotifyReloadFailed, notes.notes[0].Kind)
	assert.Equal(t, "pjsip", notes.notes[0].Module)
}

func TestReloadAllRunsBothInOrder(t *testing.T) {
	cmd := &stubCommander{state: StateConnected}
	notes := &captureNotifier{}
	cli := NewCLI(cmd, WithNotifier(notes))

	require.NoError(t, cli.ReloadAll(context.Background()))
	assert.Equal(t, []string{"pjsip reload", "queue reload all"}, cmd.sent)

	require.Len(t, notes.notes, 3)
	assert.Equal(t, "all", notes.notes[2].Module)
}

func TestReloadQueuesSurfacesNotConnected(t *testing.T) {
	cmd := &stubCommander{errs: map[string]error{"queue reload all": ErrNotConnected}}
	err := NewCLI(cmd).ReloadQueues(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSystemInfoDegradesPerField(t *testing.T) {
	cmd := &stubCommander{
		state: StateConnected,
		outputs: map[string]string{
			"core show version":  "Asterisk 20.5.0 built by root\nmore",
			"core show channels": "Channel\n3 active channels\n1 active call\n",
		},
		errs: map[string]error{"core show uptime": errors.New("timeout")},
	}

	info := NewCLI(cmd).SystemInfo(context.Background())
	assert.Equal(t, SystemInfo{
		Version:        "Asterisk 20.5.0 built by root",
		Uptime:         "Unknown",
		ActiveChannels: 3,
		Connected:      true,
	}, info)
}

func TestSystemInfoWhenDisconnected(t *testing.T) {
	cmd := &stubCommander{
		state: StateDisconnected,
		errs: map[string]error{
			"core show version":  ErrNotConnected,
			"core show uptime":   ErrNotConnected,
			"core show channels": ErrNotConnected,
		},
	}

	info := NewCLI(cmd).SystemInfo(context.Background())
	assert.Equal(t, SystemInfo{Version: "Unknown", Uptime: "Unknown"}, info)
}

type fixedPeerParser struct{ TextParser }

func (fixedPeerParser) ParsePeers(string) []Peer {
	return []Peer{{Endpoint: "custom"}}
}

func TestCLIUsesInjectedParser(t *testing.T) {
	cmd := &stubCommander{state: StateConnected}
	peers, err := NewCLI(cmd, WithParser(fixedPeerParser{})).SIPPeers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Peer{{Endpoint: "custom"}}, peers)
	assert.Equal(t, []string{"pjsip show endpoints"}, cmd.sent)
}

func TestPing(t *testing.T) {
	ok := NewCLI(&stubCommander{state: StateConnected}).Ping(context.Background())
	assert.True(t, ok)

	down := &stubCommander{errs: map[string]error{"core show version": ErrNotConnected}}
	assert.False(t, NewCLI(down).Ping(context.Background()))
}
