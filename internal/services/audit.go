package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"asteriskgui/internal/database"
	"asteriskgui/internal/models"

	"go.uber.org/zap"
)

const (
	ActionLoginSuccess       = "LOGIN_SUCCESS"
	ActionLoginFailed        = "LOGIN_FAILED"
	ActionLogout             = "LOGOUT"
	ActionUserCreated        = "USER_CREATED"
	ActionUserUpdated        = "USER_UPDATED"
	ActionUserDeleted        = "USER_DELETED"
	ActionUserDeactivated    = "USER_DEACTIVATED"
	ActionPasswordChanged    = "PASSWORD_CHANGED"
	ActionPasswordReset      = "PASSWORD_RESET"
	ActionSIPCreated         = "SIP_ACCOUNT_CREATED"
	ActionSIPUpdated         = "SIP_ACCOUNT_UPDATED"
	ActionSIPDeleted         = "SIP_ACCOUNT_DELETED"
	ActionQueueCreated       = "QUEUE_CREATED"
	ActionQueueUpdated       = "QUEUE_UPDATED"
	ActionQueueDeleted       = "QUEUE_DELETED"
	ActionQueueMemberAdded   = "QUEUE_MEMBER_ADDED"
	ActionQueueMemberRemoved = "QUEUE_MEMBER_REMOVED"
	ActionTrunkCreated       = "TRUNK_CREATED"
	ActionTrunkUpdated       = "TRUNK_UPDATED"
	ActionTrunkDeleted       = "TRUNK_DELETED"
	ActionSnapshotCreated    = "SNAPSHOT_CREATED"
	ActionSnapshotRestored   = "SNAPSHOT_RESTORED"
	ActionSnapshotDeleted    = "SNAPSHOT_DELETED"
	ActionConfigFileUpdated  = "CONFIG_FILE_UPDATED"
	ActionConfigFileDeleted  = "CONFIG_FILE_DELETED"
	ActionAsteriskReload     = "ASTERISK_RELOAD"
	ActionAsteriskConnect    = "ASTERISK_CONNECT"
	ActionSystemConfigUpdate = "SYSTEM_CONFIG_UPDATED"
	ActionBackupCreated      = "BACKUP_CREATED"
	ActionBackupRestored     = "BACKUP_RESTORED"
	ActionAuditCleared       = "AUDIT_LOG_CLEARED"
)

// Actor identifies who performed a mutation.
type Actor struct {
	ID       int64
	Username string
	IP       string
}

func (a Actor) userID() *int64 {
	if a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

type AuditFilter struct {
	Limit     int
	Offset    int
	Action    string
	UserID    *int64
	StartDate *time.Time
	EndDate   *time.Time
}

type AuditService struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditService(db *database.DB, logger *zap.Logger) *AuditService {
	return &AuditService{db: db, logger: logger.Named("audit"), now: time.Now}
}

// Log appends an entry. Audit failures are logged and never fail the caller.
func (s *AuditService) Log(ctx context.Context, actor Actor, action string, details any) {
	var raw []byte
	if details != nil {
		var err error
		if raw, err = json.Marshal(details); err != nil {
			s.logger.Warn("failed to encode audit details", zap.String("action", action), zap.Error(err))
			raw = nil
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (user_id, username, action, details, ip_address, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		actor.userID(), actor.Username, action, nullString(raw), actor.IP, s.now().UTC(),
	)
	if err != nil {
		s.logger.Error("failed to write audit log", zap.String("action", action), zap.Error(err))
		return
	}
	s.logger.Info("audit", zap.String("action", action), zap.String("user", actor.Username))
}

func (s *AuditService) Query(ctx context.Context, f AuditFilter) (*models.AuditPage, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var where []string
	var args []any
	if f.Action != "" {
		where = append(where, "a.action = ?")
		args = append(args, f.Action)
	}
	if f.UserID != nil {
		where = append(where, "a.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.StartDate != nil {
		where = append(where, "a.created_at >= ?")
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where = append(where, "a.created_at <= ?")
		args = append(args, f.EndDate.UTC())
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := &models.AuditPage{Logs: []models.AuditLog{}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs a"+clause, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, COALESCE(NULLIF(a.username, ''), u.username, 'system'), a.action, a.details, COALESCE(a.ip_address, ''), a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON a.user_id = u.id`+clause+`
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry   models.AuditLog
			userID  sql.NullInt64
			details sql.NullString
		)
		if err := rows.Scan(&entry.ID, &userID, &entry.Username, &entry.Action, &details, &entry.IPAddress, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if userID.Valid {
			entry.UserID = &userID.Int64
		}
		if details.Valid {
			entry.Details = json.RawMessage(details.String)
		}
		page.Logs = append(page.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page.HasMore = f.Offset+f.Limit < page.Total
	return page, nil
}

func (s *AuditService) Stats(ctx context.Context) (*models.AuditStats, error) {
	stats := &models.AuditStats{Actions: map[string]int{}, Users: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(a.username, ''), u.username, 'system'), a.action, a.created_at
		FROM audit_logs a
		LEFT JOIN users u ON a.user_id = u.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer rows.Close()

	weekAgo := s.now().UTC().Add(-7 * 24 * time.Hour)
	for rows.Next() {
		var (
			user, action string
			at           time.Time
		)
		if err := rows.Scan(&user, &action, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit stats: %w", err)
		}
		stats.TotalEntries++
		stats.Actions[action]++
		stats.Users[user]++
		if at.After(weekAgo) {
			stats.RecentActivity++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	best := 0
	for user, n := range stats.Users {
		if n > best || (n == best && user < stats.MostActiveUser) {
			best, stats.MostActiveUser = n, user
		}
	}
	return stats, nil
}

// Clear empties the log and records who cleared it.
func (s *AuditService) Clear(ctx context.Context, actor Actor) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs"); err != nil {
		return fmt.Errorf("failed to clear audit logs: %w", err)
	}
	s.Log(ctx, actor, ActionAuditCleared, map[string]any{"clearedBy": actor.Username})
	return nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
