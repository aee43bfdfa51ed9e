package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"asteriskgui/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReloader struct {
	mu       sync.Mutex
	calls    []string
	pjsipErr error
	queueErr error
}

func (f *fakeReloader) ReloadPJSIP(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "pjsip")
	return f.pjsipErr
}

func (f *fakeReloader) ReloadQueues(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "queues")
	return f.queueErr
}

func (f *fakeReloader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) BroadcastSystem(event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type testEnv struct {
	db          *database.DB
	generated   string
	snapshots   string
	backups     string
	reloader    *fakeReloader
	events      *fakeEvents
	audit       *AuditService
	snapshotSvc *SnapshotService
	provisioner *Provisioner
}

var testActor = Actor{ID: 1, Username: "admin", IP: "127.0.0.1"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := database.New(root)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("INSERT INTO users (id, username, password_hash, role) VALUES (1, 'admin', 'x', 'admin')")
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		generated: filepath.Join(root, "generated"),
		snapshots: filepath.Join(root, "snapshots"),
		backups:   filepath.Join(root, "backups"),
		reloader:  &fakeReloader{},
		events:    &fakeEvents{},
	}
	for _, dir := range []string{env.generated, env.snapshots, env.backups} {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	logger := zap.NewNop()
	env.audit = NewAuditService(db, logger)
	env.snapshotSvc = NewSnapshotService(env.generated, env.snapshots, logger)
	env.provisioner = NewProvisioner(ProvisionerDeps{
		DB:        db,
		Generator: NewConfigGenerator(env.generated),
		Snapshots: env.snapshotSvc,
		Reloader:  env.reloader,
		Audit:     env.audit,
		Events:    env.events,
		Logger:    logger,
	})
	return env
}

func (e *testEnv) readGenerated(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.generated, name))
	require.NoError(t, err)
	return string(data)
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	page, err := e.audit.Query(context.Background(), AuditFilter{Limit: 100})
	require.NoError(t, err)
	actions := make([]string, 0, len(page.Logs))
	for i := len(page.Logs) - 1; i >= 0; i-- {
		actions = append(actions, page.Logs[i].Action)
	}
	return actions
}
