package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigName(t *testing.T) {
	for _, name := range []string{"", "../pjsip.conf", "a/b.conf", `a\b.conf`, "pjsip.txt", "..conf"} {
		assert.ErrorIs(t, ValidateConfigName(name), ErrInvalidName, name)
	}
	assert.NoError(t, ValidateConfigName("extensions.conf"))
}

func TestRawConfigWriteSnapshotsAndReloads(t *testing.T) {
	env := newTestEnv(t)
	svc := NewRawConfigService(env.generated, env.provisioner)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "queues.conf"), []byte("old"), 0644))

	info, err := svc.Write(ctx, testActor, "queues.conf", "[general]\n", "tidy")
	require.NoError(t, err)
	assert.Equal(t, int64(len("[general]\n")), info.Size)

	file, err := svc.Read("queues.conf")
	require.NoError(t, err)
	assert.Equal(t, "[general]\n", file.Content)

	snaps, err := env.snapshotSvc.List()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "Raw edit: queues.conf - tidy", snaps[0].Comment)
	assert.Equal(t, []string{"queues"}, env.reloader.Calls())

	_, err = svc.Write(ctx, testActor, "extensions.conf", "[default]\n", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"queues"}, env.reloader.Calls())

	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "extensions.conf", files[0].Name)
}

func TestRawConfigReadAndDelete(t *testing.T) {
	env := newTestEnv(t)
	svc := NewRawConfigService(env.generated, env.provisioner)
	ctx := context.Background()

	_, err := svc.Read("missing.conf")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, testActor, "missing.conf"), ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(env.generated, "old.conf"), []byte("x"), 0644))
	require.NoError(t, svc.Delete(ctx, testActor, "old.conf"))
	assert.NoFileExists(t, filepath.Join(env.generated, "old.conf"))
	assert.Equal(t, []string{ActionConfigFileDeleted}, env.auditActions(t))
}
