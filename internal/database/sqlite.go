package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const FileName = "asteriskgui.db"

type DB struct {
	*sql.DB
	path string
}

func New(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, FileName)
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &DB{DB: db, path: dbPath}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

func (d *DB) Path() string {
	return d.path
}

// WithTx runs fn inside a transaction, rolling back when fn fails.
func (d *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SnapshotTo writes a consistent copy of the live database to dest.
func (d *DB) SnapshotTo(ctx context.Context, dest string) error {
	if _, err := d.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// PBXTables are the tables replaced when a backup is restored. Users and the
// audit trail stay with the running instance.
var PBXTables = []string{"sip_accounts", "queue_members", "queues", "trunks", "settings"}

// RestoreFrom replaces the PBX tables with the contents of the database file
// at src.
func (d *DB) RestoreFrom(ctx context.Context, src string) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS backup", src); err != nil {
		return fmt.Errorf("failed to attach backup: %w", err)
	}
	defer conn.ExecContext(context.Background(), "DETACH DATABASE backup")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, table := range PBXTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM main."+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	// Parents before children for the queue_members foreign key.
	for _, table := range []string{"sip_accounts", "queues", "queue_members", "trunks", "settings"} {
		if _, err := tx.ExecContext(ctx, "INSERT INTO main."+table+" SELECT * FROM backup."+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to restore %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'viewer',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			failed_login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until DATETIME,
			last_login DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			username TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			details TEXT,
			ip_address TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action)`,
		`CREATE TABLE IF NOT EXISTS sip_accounts (
			id TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT 'internal',
			codecs TEXT NOT NULL DEFAULT 'ulaw,alaw',
			status TEXT NOT NULL DEFAULT 'active',
			description TEXT NOT NULL DEFAULT '',
			callerid TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queues (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT 'ringall',
			timeout INTEGER NOT NULL DEFAULT 30,
			wrapuptime INTEGER NOT NULL DEFAULT 10,
			maxlen INTEGER NOT NULL DEFAULT 0,
			servicelevel INTEGER NOT NULL DEFAULT 60,
			musicclass TEXT NOT NULL DEFAULT 'default',
			announce TEXT NOT NULL DEFAULT 'queue-thankyou',
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queue_members (
			queue_id TEXT NOT NULL,
			interface TEXT NOT NULL,
			penalty INTEGER NOT NULL DEFAULT 0,
			membername TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (queue_id, interface),
			FOREIGN KEY (queue_id) REFERENCES queues(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS trunks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'peer',
			host TEXT NOT NULL,
			port INTEGER NOT NULL DEFAULT 5060,
			username TEXT NOT NULL DEFAULT '',
			password TEXT NOT NULL DEFAULT '',
			fromuser TEXT NOT NULL DEFAULT '',
			fromdomain TEXT NOT NULL DEFAULT '',
			context TEXT NOT NULL DEFAULT 'from-trunk',
			qualify TEXT NOT NULL DEFAULT 'yes',
			qualify_frequency INTEGER NOT NULL DEFAULT 60,
			insecure TEXT NOT NULL DEFAULT 'invite,port',
			protocol TEXT NOT NULL DEFAULT 'udp',
			register TEXT NOT NULL DEFAULT 'no',
			status TEXT NOT NULL DEFAULT 'active',
			created_by TEXT NOT NULL DEFAULT '',
			updated_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			section TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_by INTEGER,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := d.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
