package ami

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newTestClient(t *testing.T, f *fakeManager, cfg Config) (*Client, *manualScheduler, *recorder) {
	t.Helper()
	sched := &manualScheduler{}
	rec := &recorder{}
	c := New(cfg, WithScheduler(sched))
	c.OnNotification(rec.record)
	t.Cleanup(func() { _ = c.Close() })
	return c, sched, rec
}

func TestSendCommandWhenDisconnectedFailsWithoutIO(t *testing.T) {
	dialer := &countingDialer{}
	c := New(Config{Host: "127.0.0.1", Port: 5038}, WithDialer(dialer))

	_, err := c.SendCommand(context.Background(), "core show version")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, dialer.calls)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectAndSendCommand(t *testing.T) {
	f := newFakeManager(t)
	f.setOutput("core show version", "Asterisk 20.5.0 built by root @ pbx on a x86_64")
	c, _, rec := newTestClient(t, f, f.config())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 1, rec.count(NotifyConnected))

	out, err := c.SendCommand(context.Background(), "core show version")
	require.NoError(t, err)
	assert.Equal(t, "Asterisk 20.5.0 built by root @ pbx on a x86_64", out)

	st := c.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "connected", st.State)
	assert.Equal(t, 0, st.ReconnectAttempts)
}

func TestConnectAuthFailureStaysDisconnected(t *testing.T) {
	f := newFakeManager(t)
	f.setRejectLogin(true)
	c, sched, rec := newTestClient(t, f, f.config())

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.count(NotifyError))
	assert.Empty(t, sched.pending(), "a failed first connect does not schedule reconnects")
}

func TestCommandErrorResponse(t *testing.T) {
	f := newFakeManager(t)
	f.setFailure("pjsip reload", "Module pjsip not loaded")
	c, _, _ := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.SendCommand(context.Background(), "pjsip reload")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "Module pjsip not loaded", cmdErr.Message)
}

func TestConcurrentCommandsAreCorrelated(t *testing.T) {
	f := newFakeManager(t)
	for i := 0; i < 8; i++ {
		f.setOutput(fmt.Sprintf("echo %d", i), fmt.Sprintf("reply %d", i))
	}
	c, _, _ := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	outs := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = c.SendCommand(context.Background(), fmt.Sprintf("echo %d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("reply %d", i), outs[i])
	}
}

func TestQueuedCommandGivesUpOnContext(t *testing.T) {
	f := newFakeManager(t)
	c, _, _ := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	release := f.holdCommands()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "queue show")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.commandLog()) == 1 }, waitFor, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.SendCommand(ctx, "core show uptime")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"queue show"}, f.commandLog(), "the queued command must not reach the wire")

	release()
	require.NoError(t, <-done)
}

func TestDropEmitsOneDisconnectAndSchedulesOneReconnect(t *testing.T) {
	f := newFakeManager(t)
	c, sched, rec := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	f.dropAll()

	require.Eventually(t, func() bool { return rec.count(NotifyReconnectScheduled) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.count(NotifyDisconnected))

	pending := sched.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 5*time.Second, pending[0].delay)
	assert.Equal(t, 1, c.Status().ReconnectAttempts)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count(NotifyDisconnected))
	assert.Len(t, sched.pending(), 1)
}

func TestInFlightCommandFailsOnDrop(t *testing.T) {
	f := newFakeManager(t)
	c, _, _ := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	release := f.holdCommands()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "queue show")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(f.commandLog()) == 1 }, waitFor, 10*time.Millisecond)

	f.dropAll()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(waitFor):
		t.Fatal("command did not fail after drop")
	}
}

func TestReconnectSuccessResetsAttempts(t *testing.T) {
	f := newFakeManager(t)
	c, sched, rec := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	f.dropAll()
	require.Eventually(t, func() bool { return len(sched.pending()) == 1 }, waitFor, 10*time.Millisecond)

	sched.fire(t)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 0, c.Status().ReconnectAttempts)
	assert.Equal(t, 2, rec.count(NotifyConnected))
	assert.Equal(t, 2, f.loginCount())
	assert.Empty(t, sched.pending())
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	f := newFakeManager(t)
	cfg := f.config()
	cfg.MaxReconnectAttempts = 3
	c, sched, rec := newTestClient(t, f, cfg)
	require.NoError(t, c.Connect(context.Background()))

	f.stopListening()
	f.dropAll()
	require.Eventually(t, func() bool { return len(sched.pending()) == 1 }, waitFor, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		sched.fire(t)
	}

	assert.Equal(t, StateExhausted, c.State())
	assert.Equal(t, 1, rec.count(NotifyReconnectFailed))
	assert.Equal(t, 3, rec.count(NotifyError))
	assert.Empty(t, sched.pending(), "no attempts after exhaustion")

	_, err := c.SendCommand(context.Background(), "core show version")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, rec.count(NotifyReconnectFailed))
}

func TestConnectFromExhaustedRestartsBudget(t *testing.T) {
	f := newFakeManager(t)
	cfg := f.config()
	cfg.MaxReconnectAttempts = 1
	c, sched, _ := newTestClient(t, f, cfg)

	require.NoError(t, c.Connect(context.Background()))
	f.stopListening()
	f.dropAll()
	require.Eventually(t, func() bool { return len(sched.pending()) == 1 }, waitFor, 10*time.Millisecond)
	sched.fire(t)
	require.Equal(t, StateExhausted, c.State())

	live := newFakeManager(t)
	c.cfg.Port = live.config().Port
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 0, c.Status().ReconnectAttempts)
}

func TestEventFanOut(t *testing.T) {
	f := newFakeManager(t)
	c, _, _ := newTestClient(t, f, f.config())

	var all, peer atomic.Int32
	var lastAll atomic.Value
	c.Subscribe(TopicAll, func(ev Event) {
		all.Add(1)
		lastAll.Store(ev)
	})
	c.Subscribe(TopicFor(EventPeerStatus), func(ev Event) {
		peer.Add(1)
		assert.Equal(t, "PJSIP/1001", ev.Fields["Peer"])
	})

	require.NoError(t, c.Connect(context.Background()))

	f.emit("FullyBooted", map[string]string{"Status": "Fully Booted"})
	f.emit("PeerStatus", map[string]string{"Peer": "PJSIP/1001", "PeerStatus": "Reachable"})
	require.Eventually(t, func() bool { return all.Load() == 1 && peer.Load() == 1 }, waitFor, 10*time.Millisecond)

	f.emit("Hangup", map[string]string{"Channel": "PJSIP/1001-00000001"})
	require.Eventually(t, func() bool { return all.Load() == 2 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, int32(1), peer.Load())

	ev := lastAll.Load().(Event)
	assert.Equal(t, EventHangup, ev.Name)
	assert.Equal(t, "PJSIP/1001-00000001", ev.Subject())
}

func TestHandlersNotDuplicatedAcrossReconnects(t *testing.T) {
	f := newFakeManager(t)
	c, sched, _ := newTestClient(t, f, f.config())

	var hits atomic.Int32
	c.Subscribe(TopicFor(EventNewchannel), func(Event) { hits.Add(1) })
	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		f.dropAll()
		require.Eventually(t, func() bool { return len(sched.pending()) == 1 }, waitFor, 10*time.Millisecond)
		sched.fire(t)
		require.Equal(t, StateConnected, c.State())
	}

	f.emit("Newchannel", map[string]string{"Channel": "PJSIP/1002-00000002"})
	require.Eventually(t, func() bool { return hits.Load() == 1 }, waitFor, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, c.bus.Subscribers(TopicFor(EventNewchannel)))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newFakeManager(t)
	c, _, _ := newTestClient(t, f, f.config())

	var hits atomic.Int32
	unsubscribe := c.Subscribe(TopicAll, func(Event) { hits.Add(1) })
	require.NoError(t, c.Connect(context.Background()))

	f.emit("Dial", map[string]string{"Channel": "PJSIP/1001-1"})
	require.Eventually(t, func() bool { return hits.Load() == 1 }, waitFor, 10*time.Millisecond)

	unsubscribe()
	f.emit("Dial", map[string]string{"Channel": "PJSIP/1001-2"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCloseStopsReconnecting(t *testing.T) {
	f := newFakeManager(t)
	c, sched, rec := newTestClient(t, f, f.config())
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.count(NotifyDisconnected))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sched.pending())
	require.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}
