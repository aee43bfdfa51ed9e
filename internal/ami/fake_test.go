package ami

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeManager is a scripted manager endpoint on loopback.
type fakeManager struct {
	t  *testing.T
	ln net.Listener

	mu          sync.Mutex
	conns       []net.Conn
	commands    []string
	outputs     map[string]string
	failures    map[string]string
	rejectLogin bool
	hold        chan struct{}
	logins      int
}

func newFakeManager(t *testing.T) *fakeManager {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeManager{
		t:        t,
		ln:       ln,
		outputs:  make(map[string]string),
		failures: make(map[string]string),
	}
	go f.acceptLoop()
	t.Cleanup(f.shutdown)
	return f
}

func (f *fakeManager) config() Config {
	host, portStr, _ := net.SplitHostPort(f.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return Config{
		Host:                 host,
		Port:                 port,
		Username:             "admin",
		Password:             "secret",
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 10,
		CommandTimeout:       2 * time.Second,
		DialTimeout:          time.Second,
	}
}

func (f *fakeManager) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		go f.serve(conn)
	}
}

func (f *fakeManager) serve(conn net.Conn) {
	defer conn.Close()
	if _, err := conn.Write([]byte("Asterisk Call Manager/5.0.1\r\n")); err != nil {
		return
	}

	r := bufio.NewReader(conn)
	for {
		msg, err := readMessage(r)
		if err != nil {
			return
		}
		id := msg.ActionID()

		switch msg.Get("Action") {
		case "Login":
			f.mu.Lock()
			reject := f.rejectLogin
			f.logins++
			f.mu.Unlock()
			if reject {
				fmt.Fprintf(conn, "Response: Error\r\nActionID: %s\r\nMessage: Authentication failed\r\n\r\n", id)
				continue
			}
			fmt.Fprintf(conn, "Response: Success\r\nActionID: %s\r\nMessage: Authentication accepted\r\n\r\n", id)
		case "Command":
			command := msg.Get("Command")
			f.mu.Lock()
			f.commands = append(f.commands, command)
			hold := f.hold
			out, hasOut := f.outputs[command]
			failure, failed := f.failures[command]
			f.mu.Unlock()

			if hold != nil {
				<-hold
			}
			if failed {
				fmt.Fprintf(conn, "Response: Error\r\nActionID: %s\r\nMessage: %s\r\n\r\n", id, failure)
				continue
			}
			if !hasOut {
				out = "No such command '" + command + "'"
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Response: Success\r\nActionID: %s\r\nMessage: Command output follows\r\n", id)
			for _, line := range strings.Split(out, "\n") {
				fmt.Fprintf(&b, "Output: %s\r\n", line)
			}
			b.WriteString("\r\n")
			_, _ = conn.Write([]byte(b.String()))
		case "Logoff":
			fmt.Fprintf(conn, "Response: Goodbye\r\nActionID: %s\r\n\r\n", id)
			return
		}
	}
}

func (f *fakeManager) emit(event string, fields map[string]string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\r\nPrivilege: system,all\r\n", event)
	for k, v := range fields {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_, _ = c.Write([]byte(b.String()))
	}
}

func (f *fakeManager) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

func (f *fakeManager) setOutput(command, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[command] = output
}

func (f *fakeManager) setFailure(command, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[command] = message
}

func (f *fakeManager) setRejectLogin(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectLogin = v
}

func (f *fakeManager) holdCommands() func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.hold = nil
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fakeManager) commandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeManager) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeManager) stopListening() {
	_ = f.ln.Close()
}

func (f *fakeManager) shutdown() {
	f.stopListening()
	f.dropAll()
}

// manualScheduler records AfterFunc calls and runs them only on fire.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, delay: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) pending() []*manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTimer
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the oldest pending task on the calling goroutine.
func (s *manualScheduler) fire(t *testing.T) {
	t.Helper()
	p := s.pending()
	require.NotEmpty(t, p, "no scheduled task to fire")
	task := p[0]
	s.mu.Lock()
	task.fired = true
	s.mu.Unlock()
	task.f()
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) record(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) count(kind NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

// countingDialer counts dial attempts and refuses all of them.
type countingDialer struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return nil, fmt.Errorf("dial disabled in test")
}
