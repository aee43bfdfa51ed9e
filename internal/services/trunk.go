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

type TrunkUpdate struct {
	Name             *string `json:"name"`
	Host             *string `json:"host"`
	Port             *int    `json:"port"`
	Username         *string `json:"username"`
	Password         *string `json:"password"`
	FromUser         *string `json:"fromuser"`
	FromDomain       *string `json:"fromdomain"`
	Context          *string `json:"context"`
	Qualify          *string `json:"qualify"`
	QualifyFrequency *int    `json:"qualify_frequency"`
	Insecure         *string `json:"insecure"`
	Protocol         *string `json:"protocol"`
	Register         *string `json:"register"`
	Status           *string `json:"status"`
}

func (u TrunkUpdate) empty() bool {
	return u == TrunkUpdate{}
}

type TrunkService struct {
	db          *database.DB
	provisioner *Provisioner
	now         func() time.Time
}

func NewTrunkService(db *database.DB, provisioner *Provisioner) *TrunkService {
	return &TrunkService{db: db, provisioner: provisioner, now: time.Now}
}

const trunkColumns = `id, name, type, host, port, username, password, fromuser, fromdomain, context,
	qualify, qualify_frequency, insecure, protocol, register, status,
	created_by, updated_by, created_at, updated_at`

func (s *TrunkService) List(ctx context.Context) ([]models.Trunk, error) {
	return listTrunks(ctx, s.db)
}

func (s *TrunkService) Get(ctx context.Context, id string) (*models.Trunk, error) {
	t, err := scanTrunk(s.db.QueryRowContext(ctx, "SELECT "+trunkColumns+" FROM trunks WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trunk: %w", err)
	}
	return t, nil
}

func applyTrunkDefaults(t *models.Trunk) {
	if t.Type == "" {
		t.Type = "peer"
	}
	if t.Port == 0 {
		t.Port = 5060
	}
	if t.FromUser == "" {
		t.FromUser = t.Username
	}
	if t.FromDomain == "" {
		t.FromDomain = t.Host
	}
	if t.Context == "" {
		t.Context = "from-trunk"
	}
	if t.Qualify == "" {
		t.Qualify = "yes"
	}
	if t.QualifyFrequency == 0 {
		t.QualifyFrequency = 60
	}
	if t.Insecure == "" {
		t.Insecure = "invite,port"
	}
	if t.Protocol == "" {
		t.Protocol = "udp"
	}
	if t.Register == "" {
		t.Register = "no"
	}
	if t.Status == "" {
		t.Status = "active"
	}
}

func validateTrunk(t *models.Trunk) error {
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidValue, t.Port)
	}
	return singleLine(t.Host, t.Username, t.Password, t.FromUser, t.FromDomain, t.Context,
		t.Qualify, t.Insecure, t.Protocol, t.Register)
}

func (s *TrunkService) Create(ctx context.Context, actor Actor, in models.Trunk) (*models.Trunk, error) {
	if !validID(in.ID) {
		return nil, ErrInvalidID
	}
	applyTrunkDefaults(&in)
	if err := validateTrunk(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trunks (id, name, type, host, port, username, password, fromuser, fromdomain, context,
		qualify, qualify_frequency, insecure, protocol, register, status, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Name, in.Type, in.Host, in.Port, in.Username, in.Password, in.FromUser, in.FromDomain, in.Context,
		in.Qualify, in.QualifyFrequency, in.Insecure, in.Protocol, in.Register, in.Status,
		actor.Username, actor.Username, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("trunk %s: %w", in.ID, ErrExists)
		}
		return nil, fmt.Errorf("failed to create trunk: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Create trunk: " + in.ID,
		action:  ActionTrunkCreated,
		details: map[string]any{"trunkId": in.ID, "name": in.Name},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, in.ID)
}

func (s *TrunkService) Update(ctx context.Context, actor Actor, id string, in TrunkUpdate) (*models.Trunk, error) {
	if in.empty() {
		return nil, fmt.Errorf("%w: no valid fields to update", ErrInvalidValue)
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setString(&t.Name, in.Name)
	setString(&t.Host, in.Host)
	setInt(&t.Port, in.Port)
	setString(&t.Username, in.Username)
	setString(&t.Password, in.Password)
	setString(&t.FromUser, in.FromUser)
	setString(&t.FromDomain, in.FromDomain)
	setString(&t.Context, in.Context)
	setString(&t.Qualify, in.Qualify)
	setInt(&t.QualifyFrequency, in.QualifyFrequency)
	setString(&t.Insecure, in.Insecure)
	setString(&t.Protocol, in.Protocol)
	setString(&t.Register, in.Register)
	setString(&t.Status, in.Status)
	if err := validateTrunk(t); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE trunks SET name = ?, host = ?, port = ?, username = ?, password = ?, fromuser = ?, fromdomain = ?,
		context = ?, qualify = ?, qualify_frequency = ?, insecure = ?, protocol = ?, register = ?, status = ?,
		updated_by = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Host, t.Port, t.Username, t.Password, t.FromUser, t.FromDomain,
		t.Context, t.Qualify, t.QualifyFrequency, t.Insecure, t.Protocol, t.Register, t.Status,
		actor.Username, s.now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update trunk: %w", err)
	}

	changes := in
	if changes.Password != nil {
		masked := "***"
		changes.Password = &masked
	}
	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Update trunk: " + id,
		action:  ActionTrunkUpdated,
		details: map[string]any{"trunkId": id, "name": t.Name, "changes": changes},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *TrunkService) Delete(ctx context.Context, actor Actor, id string) (*models.Trunk, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM trunks WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete trunk: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModulePJSIP,
		comment: "Delete trunk: " + id,
		action:  ActionTrunkDeleted,
		details: map[string]any{"trunkId": id, "name": t.Name},
	}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TrunkService) Stats(ctx context.Context) (*models.TrunkStats, error) {
	var stats models.TrunkStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN register = 'yes' THEN 1 ELSE 0 END), 0)
		FROM trunks`).Scan(&stats.Total, &stats.Active, &stats.Registered)
	if err != nil {
		return nil, fmt.Errorf("failed to count trunks: %w", err)
	}
	return &stats, nil
}

func listTrunks(ctx context.Context, db *database.DB) ([]models.Trunk, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+trunkColumns+" FROM trunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list trunks: %w", err)
	}
	defer rows.Close()

	trunks := []models.Trunk{}
	for rows.Next() {
		t, err := scanTrunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trunk: %w", err)
		}
		trunks = append(trunks, *t)
	}
	return trunks, rows.Err()
}

func scanTrunk(row rowScanner) (*models.Trunk, error) {
	var t models.Trunk
	if err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Host, &t.Port, &t.Username, &t.Password, &t.FromUser,
		&t.FromDomain, &t.Context, &t.Qualify, &t.QualifyFrequency, &t.Insecure, &t.Protocol, &t.Register,
		&t.Status, &t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
