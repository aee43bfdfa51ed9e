package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"asteriskgui/internal/database"
	"asteriskgui/internal/models"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserExists      = errors.New("user already exists")
	ErrAccountLocked   = errors.New("account is temporarily locked due to failed login attempts")
	ErrUserInactive    = errors.New("user is inactive")
	ErrInvalidRole     = errors.New("invalid role")
	ErrSelfAction      = errors.New("cannot perform this action on your own account")
)

type UserOptions struct {
	BcryptCost       int
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

type UserService struct {
	db   *database.DB
	opts UserOptions
	now  func() time.Time
}

func NewUserService(db *database.DB, opts UserOptions) *UserService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 15 * time.Minute
	}
	return &UserService{db: db, opts: opts, now: time.Now}
}

type CreateUserInput struct {
	Username string
	Password string
	Email    string
	Role     models.Role
}

type UpdateUserInput struct {
	Email    *string
	Role     *models.Role
	IsActive *bool
}

const userColumns = `id, username, password_hash, email, role, is_active,
	failed_login_attempts, locked_until, last_login, created_at, updated_at`

func (s *UserService) Create(in CreateUserInput) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleViewer
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO users (username, password_hash, email, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)`,
		in.Username, hash, in.Email, string(in.Role), now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, _ := result.LastInsertId()
	return s.GetByID(id)
}

// Authenticate checks credentials and maintains the lockout counters. For
// locked and wrong-password failures the user is returned with the error so
// callers can attribute the attempt.
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	user, err := s.GetByUsername(username)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if user.Locked(now) {
		return user, ErrAccountLocked
	}
	if user.LockedUntil != nil {
		// Expired lock starts a fresh budget.
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
	}
	if !user.IsActive {
		return user, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= s.opts.MaxLoginAttempts {
			until := now.Add(s.opts.LockoutDuration)
			user.LockedUntil = &until
		}
		if err := s.saveLoginState(user, now); err != nil {
			return nil, err
		}
		return user, ErrInvalidPassword
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	if err := s.saveLoginState(user, now); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) saveLoginState(user *models.User, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE users SET failed_login_attempts = ?, locked_until = ?, last_login = ?, updated_at = ?
		WHERE id = ?`,
		user.FailedLoginAttempts, nullTime(user.LockedUntil), nullTime(user.LastLogin), now, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (s *UserService) GetByID(id int64) (*models.User, error) {
	return s.getOne("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *UserService) GetByUsername(username string) (*models.User, error) {
	return s.getOne("SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *UserService) getOne(query string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *UserService) List() ([]models.User, error) {
	rows, err := s.db.Query("SELECT " + userColumns + " FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *UserService) Update(id int64, in UpdateUserInput) (*models.User, error) {
	var sets []string
	var args []any
	if in.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *in.Email)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, ErrInvalidRole
		}
		sets = append(sets, "role = ?")
		args = append(args, string(*in.Role))
	}
	if in.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *in.IsActive)
	}
	if len(sets) == 0 {
		return s.GetByID(id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().UTC(), id)
	if err := s.execOne("UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetByID(id)
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(id int64, current, next string) error {
	user, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidPassword
	}
	return s.setPassword(id, next)
}

// ResetPassword sets a new password and clears any lockout.
func (s *UserService) ResetPassword(id int64, next string) (*models.User, error) {
	if err := s.setPassword(id, next); err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *UserService) setPassword(id int64, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.execOne(
		`UPDATE users SET password_hash = ?, failed_login_attempts = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		hash, s.now().UTC(), id,
	)
}

func (s *UserService) Deactivate(id, actorID int64) (*models.User, error) {
	if id == actorID {
		return nil, ErrSelfAction
	}
	inactive := false
	return s.Update(id, UpdateUserInput{IsActive: &inactive})
}

func (s *UserService) Delete(id, actorID int64) error {
	if id == actorID {
		return ErrSelfAction
	}
	return s.execOne("DELETE FROM users WHERE id = ?", id)
}

func (s *UserService) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

func (s *UserService) Stats() (*models.UserStats, error) {
	users, err := s.List()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stats := &models.UserStats{
		Total: len(users),
		ByRole: map[models.Role]int{
			models.RoleAdmin:    0,
			models.RoleOperator: 0,
			models.RoleViewer:   0,
		},
	}
	for i := range users {
		if users[i].IsActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if users[i].Locked(now) {
			stats.Locked++
		}
		stats.ByRole[users[i].Role]++
	}
	return stats, nil
}

// EnsureDefaultAdmin creates the bootstrap admin when the users table is empty.
func (s *UserService) EnsureDefaultAdmin(username, password, email string) (bool, error) {
	count, err := s.Count()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	_, err = s.Create(CreateUserInput{Username: username, Password: password, Email: email, Role: models.RoleAdmin})
	return err == nil, err
}

func (s *UserService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *UserService) execOne(query string, args ...any) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user        models.User
		role        string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	if err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Email, &role, &user.IsActive,
		&user.FailedLoginAttempts, &lockedUntil, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	user.Permissions = Permissions(user.Role)
	return &user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
