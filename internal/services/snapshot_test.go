package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSkipsTmpFilesAndListsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	svc := env.snapshotSvc
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "pjsip.conf"), []byte("v1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "queues.conf.tmp"), []byte("partial"), 0644))

	first, err := svc.Create("first", "")
	require.NoError(t, err)
	assert.Equal(t, "system", first.CreatedBy)
	assert.Equal(t, []string{"pjsip.conf"}, first.Files)
	assert.NoFileExists(t, filepath.Join(env.snapshots, first.ID, "queues.conf.tmp"))

	second, err := svc.Create("second", "ops")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(env.snapshots, "garbage"), 0755))

	snaps, err := svc.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, first.ID, snaps[1].ID)
}

func TestSnapshotRestoreKeepsTmpAndRemovesNewFiles(t *testing.T) {
	env := newTestEnv(t)
	svc := env.snapshotSvc

	conf := filepath.Join(env.generated, "pjsip.conf")
	require.NoError(t, os.WriteFile(conf, []byte("v1"), 0644))
	snap, err := svc.Create("baseline", "admin")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(conf, []byte("v2"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "extra.conf"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "pjsip.conf.tmp"), []byte("w"), 0644))

	restored, err := env.provisioner.RestoreSnapshot(context.Background(), testActor, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, restored.ID)

	data, err := os.ReadFile(conf)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.NoFileExists(t, filepath.Join(env.generated, "extra.conf"))
	assert.FileExists(t, filepath.Join(env.generated, "pjsip.conf.tmp"))

	assert.Equal(t, []string{"pjsip", "queues"}, env.reloader.Calls())
	assert.Equal(t, []string{"snapshot_restored"}, env.events.events)
	assert.Equal(t, []string{ActionSnapshotRestored}, env.auditActions(t))
}

func TestSnapshotLookupErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.snapshotSvc.Restore("../../etc")
	assert.ErrorIs(t, err, ErrInvalidID)

	err = env.snapshotSvc.Delete("0b6f1c9e-6a53-4f38-9b8e-1d2f3a4b5c6d")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	snap, err := env.provisioner.CreateSnapshot(ctx, testActor, "manual")
	require.NoError(t, err)
	require.NoError(t, env.provisioner.DeleteSnapshot(ctx, testActor, snap.ID))
	assert.NoDirExists(t, filepath.Join(env.snapshots, snap.ID))
	assert.Equal(t, []string{ActionSnapshotCreated, ActionSnapshotDeleted}, env.auditActions(t))
}
