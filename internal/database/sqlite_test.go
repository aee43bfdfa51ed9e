package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(dir)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, filepath.Join(dir, FileName), db.Path())

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'queue_members'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestQueueMembersCascade(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO queues (id, name) VALUES ('support', 'Support')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO queue_members (queue_id, interface) VALUES ('support', 'PJSIP/1001')")
	require.NoError(t, err)
	_, err = db.Exec("DELETE FROM queues WHERE id = 'support'")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM queue_members").Scan(&n))
	assert.Zero(t, n)
}

func TestSnapshotAndRestorePBXTables(t *testing.T) {
	ctx := context.Background()
	db, err := New(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("INSERT INTO sip_accounts (id, password) VALUES ('1001', 'secret')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users (username, password_hash) VALUES ('ops', 'x')")
	require.NoError(t, err)

	dump := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, db.SnapshotTo(ctx, dump))

	_, err = db.Exec("DELETE FROM sip_accounts")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sip_accounts (id, password) VALUES ('2002', 'other')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO users (username, password_hash) VALUES ('later', 'y')")
	require.NoError(t, err)

	require.NoError(t, db.RestoreFrom(ctx, dump))

	var ids []string
	rows, err := db.Query("SELECT id FROM sip_accounts ORDER BY id")
	require.NoError(t, err)
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"1001"}, ids)

	var users int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&users))
	assert.Equal(t, 2, users)
}
