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

type QueueUpdate struct {
	Name         *string               `json:"name"`
	Strategy     *string               `json:"strategy"`
	Timeout      *int                  `json:"timeout"`
	WrapupTime   *int                  `json:"wrapuptime"`
	MaxLen       *int                  `json:"maxlen"`
	ServiceLevel *int                  `json:"servicelevel"`
	MusicClass   *string               `json:"musicclass"`
	Announce     *string               `json:"announce"`
	Members      *[]models.QueueMember `json:"members"`
}

type QueueService struct {
	db          *database.DB
	provisioner *Provisioner
	now         func() time.Time
}

func NewQueueService(db *database.DB, provisioner *Provisioner) *QueueService {
	return &QueueService{db: db, provisioner: provisioner, now: time.Now}
}

const queueColumns = `id, name, strategy, timeout, wrapuptime, maxlen, servicelevel, musicclass, announce,
	created_by, updated_by, created_at, updated_at`

func (s *QueueService) List(ctx context.Context) ([]models.Queue, error) {
	return listQueues(ctx, s.db)
}

func (s *QueueService) Get(ctx context.Context, id string) (*models.Queue, error) {
	q, err := scanQueue(s.db.QueryRowContext(ctx, "SELECT "+queueColumns+" FROM queues WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	members, err := queueMembers(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	q.Members = members
	return q, nil
}

func applyQueueDefaults(q *models.Queue) {
	if q.Strategy == "" {
		q.Strategy = "ringall"
	}
	if q.Timeout == 0 {
		q.Timeout = 30
	}
	if q.WrapupTime == 0 {
		q.WrapupTime = 10
	}
	if q.ServiceLevel == 0 {
		q.ServiceLevel = 60
	}
	if q.MusicClass == "" {
		q.MusicClass = "default"
	}
	if q.Announce == "" {
		q.Announce = "queue-thankyou"
	}
	if q.Members == nil {
		q.Members = []models.QueueMember{}
	}
	for i := range q.Members {
		if q.Members[i].MemberName == "" {
			q.Members[i].MemberName = q.Members[i].Interface
		}
	}
}

func validateQueue(q *models.Queue) error {
	values := []string{q.Strategy, q.MusicClass, q.Announce}
	seen := make(map[string]bool, len(q.Members))
	for _, m := range q.Members {
		if m.Interface == "" {
			return fmt.Errorf("%w: member interface is required", ErrInvalidValue)
		}
		if seen[m.Interface] {
			return fmt.Errorf("%s: %w", m.Interface, ErrMemberExists)
		}
		seen[m.Interface] = true
		values = append(values, m.Interface, m.MemberName)
	}
	return singleLine(values...)
}

func (s *QueueService) Create(ctx context.Context, actor Actor, in models.Queue) (*models.Queue, error) {
	if !validID(in.ID) {
		return nil, ErrInvalidID
	}
	applyQueueDefaults(&in)
	if err := validateQueue(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO queues (id, name, strategy, timeout, wrapuptime, maxlen, servicelevel, musicclass, announce,
			created_by, updated_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.Name, in.Strategy, in.Timeout, in.WrapupTime, in.MaxLen, in.ServiceLevel, in.MusicClass, in.Announce,
			actor.Username, actor.Username, now, now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("queue %s: %w", in.ID, ErrExists)
			}
			return fmt.Errorf("failed to create queue: %w", err)
		}
		return replaceMembers(ctx, tx, in.ID, in.Members)
	})
	if err != nil {
		return nil, err
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModuleQueues,
		comment: "Create queue: " + in.ID,
		action:  ActionQueueCreated,
		details: map[string]any{"queueId": in.ID, "name": in.Name},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, in.ID)
}

func (s *QueueService) Update(ctx context.Context, actor Actor, id string, in QueueUpdate) (*models.Queue, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setString(&q.Name, in.Name)
	setString(&q.Strategy, in.Strategy)
	setInt(&q.Timeout, in.Timeout)
	setInt(&q.WrapupTime, in.WrapupTime)
	setInt(&q.MaxLen, in.MaxLen)
	setInt(&q.ServiceLevel, in.ServiceLevel)
	setString(&q.MusicClass, in.MusicClass)
	setString(&q.Announce, in.Announce)
	if in.Members != nil {
		q.Members = *in.Members
	}
	applyQueueDefaults(q)
	if err := validateQueue(q); err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE queues SET name = ?, strategy = ?, timeout = ?, wrapuptime = ?, maxlen = ?, servicelevel = ?,
			musicclass = ?, announce = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			q.Name, q.Strategy, q.Timeout, q.WrapupTime, q.MaxLen, q.ServiceLevel, q.MusicClass, q.Announce,
			actor.Username, s.now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update queue: %w", err)
		}
		if in.Members == nil {
			return nil
		}
		return replaceMembers(ctx, tx, id, q.Members)
	})
	if err != nil {
		return nil, err
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModuleQueues,
		comment: "Update queue: " + id,
		action:  ActionQueueUpdated,
		details: map[string]any{"queueId": id, "name": q.Name, "changes": in},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *QueueService) Delete(ctx context.Context, actor Actor, id string) (*models.Queue, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM queues WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete queue: %w", err)
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModuleQueues,
		comment: "Delete queue: " + id,
		action:  ActionQueueDeleted,
		details: map[string]any{"queueId": id, "name": q.Name},
	}); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QueueService) AddMember(ctx context.Context, actor Actor, queueID string, member models.QueueMember) (*models.Queue, error) {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if member.MemberName == "" {
		member.MemberName = member.Interface
	}
	if member.Interface == "" {
		return nil, fmt.Errorf("%w: member interface is required", ErrInvalidValue)
	}
	if err := singleLine(member.Interface, member.MemberName); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO queue_members (queue_id, interface, penalty, membername, position) VALUES (?, ?, ?, ?, ?)",
		queueID, member.Interface, member.Penalty, member.MemberName, len(q.Members),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrMemberExists
		}
		return nil, fmt.Errorf("failed to add queue member: %w", err)
	}
	if err := s.touch(ctx, actor, queueID); err != nil {
		return nil, err
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModuleQueues,
		comment: "Add member " + member.Interface + " to queue: " + queueID,
		action:  ActionQueueMemberAdded,
		details: map[string]any{"queueId": queueID, "member": member.Interface},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, queueID)
}

func (s *QueueService) RemoveMember(ctx context.Context, actor Actor, queueID, iface string) (*models.Queue, error) {
	if _, err := s.Get(ctx, queueID); err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM queue_members WHERE queue_id = ? AND interface = ?", queueID, iface)
	if err != nil {
		return nil, fmt.Errorf("failed to remove queue member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrMemberNotFound
	}
	if err := s.touch(ctx, actor, queueID); err != nil {
		return nil, err
	}

	if err := s.provisioner.apply(ctx, actor, change{
		module:  ModuleQueues,
		comment: "Remove member " + iface + " from queue: " + queueID,
		action:  ActionQueueMemberRemoved,
		details: map[string]any{"queueId": queueID, "member": iface},
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, queueID)
}

func (s *QueueService) Stats(ctx context.Context) (*models.QueueStats, error) {
	var stats models.QueueStats
	err := s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM queues), (SELECT COUNT(*) FROM queue_members)",
	).Scan(&stats.Total, &stats.TotalMembers)
	if err != nil {
		return nil, fmt.Errorf("failed to count queues: %w", err)
	}
	return &stats, nil
}

func (s *QueueService) touch(ctx context.Context, actor Actor, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE queues SET updated_by = ?, updated_at = ? WHERE id = ?",
		actor.Username, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}
	return nil
}

func replaceMembers(ctx context.Context, tx *sql.Tx, queueID string, members []models.QueueMember) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM queue_members WHERE queue_id = ?", queueID); err != nil {
		return fmt.Errorf("failed to clear queue members: %w", err)
	}
	for i, m := range members {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO queue_members (queue_id, interface, penalty, membername, position) VALUES (?, ?, ?, ?, ?)",
			queueID, m.Interface, m.Penalty, m.MemberName, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert queue member: %w", err)
		}
	}
	return nil
}

func listQueues(ctx context.Context, db *database.DB) ([]models.Queue, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+queueColumns+" FROM queues ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	queues := []models.Queue{}
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		queues = append(queues, *q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range queues {
		members, err := queueMembers(ctx, db, queues[i].ID)
		if err != nil {
			return nil, err
		}
		queues[i].Members = members
	}
	return queues, nil
}

func queueMembers(ctx context.Context, db *database.DB, queueID string) ([]models.QueueMember, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT interface, penalty, membername FROM queue_members WHERE queue_id = ? ORDER BY position, interface", queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue members: %w", err)
	}
	defer rows.Close()

	members := []models.QueueMember{}
	for rows.Next() {
		var m models.QueueMember
		if err := rows.Scan(&m.Interface, &m.Penalty, &m.MemberName); err != nil {
			return nil, fmt.Errorf("failed to scan queue member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func scanQueue(row rowScanner) (*models.Queue, error) {
	var q models.Queue
	if err := row.Scan(&q.ID, &q.Name, &q.Strategy, &q.Timeout, &q.WrapupTime, &q.MaxLen, &q.ServiceLevel,
		&q.MusicClass, &q.Announce, &q.CreatedBy, &q.UpdatedBy, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}
