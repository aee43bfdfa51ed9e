package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"asteriskgui/internal/database"
	"asteriskgui/internal/models"
)

type SIPAccountUpdate struct {
	Password    *string `json:"password"`
	Context     *string `json:"context"`
	Codecs      *string `json:"codecs"`
	Status      *string `json:"status"`
	Description *string `json:"description"`
	CallerID    *string `json:"callerid"`
}

type SIPService struct {
	db          *database.DB
	provisioner *Provisioner
	now         func() time.Time
}

func NewSIPService(db *database.DB, provisioner *Provisioner) *SIPService {
	return &SIPService{db: db, provisioner: provisioner, now: time.Now}
}

const sipColumns = `id, password, context, codecs, status, description, callerid,
	created_by, updated_by, created_at, updated_at`

func (s *SIPService) List(ctx context.Context) ([]models.SIPAccount, error) {
	return listSIPAccounts(ctx, s.db)
}

func (s *SIPService) Get(ctx context.Context, id string) (*models.SIPAccount, error) {
	acc, err := scanSIPAccount(s.db.QueryRowContext(ctx, "SELECT "+sipColumns+" FROM sip_accounts WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sip account: %w", err)
	}
	return acc, nil
}

func (s *SIPService) Create(ctx context.Context, actor Actor, in models.SIPAccount) (*models.SIPAccount, error) {
	if !validID(in.ID) {
		return nil, ErrInvalidID
	}
	if in.Context == "" {
		in.Context = "internal"
	}
	if in.Codecs == "" {
		in.Codecs = "ulaw,alaw"
	}
	if in.Status == "" {
		in.Status = "active"
	}
	if err := singleLine(in.Password, in.Context, in.Codecs, in.CallerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sip_accounts (id, password, context, codecs, status, description, callerid, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Password, in.Context, in.Codecs, in.Status, in.Description, in.CallerID,
		actor.Username, actor.Username, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("sip account %s: %w", in.ID, ErrExists)
		}
		return nil, fmt.Errorf("failed to create sip account: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Create SIP account: " + in.ID,
		action:  ActionSIPCreated,
		details: map[string]any{"accountId": in.ID},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, in.ID)
}

func (s *SIPService) Update(ctx context.Context, actor Actor, id string, in SIPAccountUpdate) (*models.SIPAccount, error) {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setString(&acc.Password, in.Password)
	setString(&acc.Context, in.Context)
	setString(&acc.Codecs, in.Codecs)
	setString(&acc.Status, in.Status)
	setString(&acc.Description, in.Description)
	setString(&acc.CallerID, in.CallerID)
	if err := singleLine(acc.Password, acc.Context, acc.Codecs, acc.CallerID); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE sip_accounts SET password = ?, context = ?, codecs = ?, status = ?, description = ?, callerid = ?,
		updated_by = ?, updated_at = ? WHERE id = ?`,
		acc.Password, acc.Context, acc.Codecs, acc.Status, acc.Description, acc.CallerID,
		actor.Username, s.now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update sip account: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Update SIP account: " + id,
		action:  ActionSIPUpdated,
		details: map[string]any{"accountId": id, "changes": redactSIPUpdate(in)},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SIPService) Delete(ctx context.Context, actor Actor, id string) (*models.SIPAccount, error) {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sip_accounts WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete sip account: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Delete SIP account: " + id,
		action:  ActionSIPDeleted,
		details: map[string]any{"accountId": id},
	}); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *SIPService) Stats(ctx context.Context) (*models.SIPStats, error) {
	var stats models.SIPStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'offline' THEN 1 ELSE 0 END), 0)
		FROM sip_accounts`).Scan(&stats.Total, &stats.Active, &stats.Offline)
	if err != nil {
		return nil, fmt.Errorf("failed to count sip accounts: %w", err)
	}
	return &stats, nil
}

func listSIPAccounts(ctx context.Context, db *database.DB) ([]models.SIPAccount, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+sipColumns+" FROM sip_accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list sip accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.SIPAccount{}
	for rows.Next() {
		acc, err := scanSIPAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sip account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSIPAccount(row rowScanner) (*models.SIPAccount, error) {
	var acc models.SIPAccount
	if err := row.Scan(&acc.ID, &acc.Password, &acc.Context, &acc.Codecs, &acc.Status, &acc.Description,
		&acc.CallerID, &acc.CreatedBy, &acc.UpdatedBy, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	acc.Username = acc.ID
	return &acc, nil
}

func redactSIPUpdate(in SIPAccountUpdate) SIPAccountUpdate {
	if in.Password != nil {
		masked := "***"
		in.Password = &masked
	}
	return in
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
