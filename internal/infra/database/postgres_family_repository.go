package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockpile_manager/internal/domain/family"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Custom errors
var ErrUserNotFound = fmt.Errorf("user not found")
var ErrFamilyNotFound = fmt.Errorf("family not found")
var ErrDuplicateInviteCode = fmt.Errorf("family with this invite code already exists")

const (
	userColumns   = `id, family_id, display_name, email, line_user_id AS notify_user_id, COALESCE(created_at, NOW()) AS created_at`
	familyColumns = `id, name, invite_code, line_group_id AS notify_group_id, COALESCE(created_at, NOW()) AS created_at`
)

// Chat targets live in the line_* columns regardless of the messaging
// provider in use.
type PostgresFamilyRepository struct {
	db *sqlx.DB
}

func NewPostgresFamilyRepository(db *sqlx.DB) *PostgresFamilyRepository {
	return &PostgresFamilyRepository{db: db}
}

func (r *PostgresFamilyRepository) GetUser(ctx context.Context, id string) (*family.User, error) {
	u := &family.User{}
	err := r.db.GetContext(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresFamilyRepository) CreateUser(ctx context.Context, u *family.User) error {
	query := `INSERT INTO users (id, display_name, email, created_at)
               VALUES ($1, $2, $3, NOW())
               ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.DisplayName, u.Email); err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresFamilyRepository) SetUserFamily(ctx context.Context, userID, familyID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET family_id = $1 WHERE id = $2`, familyID, userID)
	if err != nil {
		return fmt.Errorf("error setting user family: %w", err)
	}
	return checkAffected(res, ErrUserNotFound)
}

// SetUserNotifyID stores the individual chat target; an empty id clears it.
func (r *PostgresFamilyRepository) SetUserNotifyID(ctx context.Context, userID string, notifyUserID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET line_user_id = NULLIF($1, '') WHERE id = $2`, notifyUserID, userID)
	if err != nil {
		return fmt.Errorf("error setting user notification target: %w", err)
	}
	return checkAffected(res, ErrUserNotFound)
}

func (r *PostgresFamilyRepository) CreateFamily(ctx context.Context, f *family.Family) error {
	f.ID = uuid.NewString()
	query := `INSERT INTO families (id, name, invite_code, created_at)
               VALUES ($1, $2, $3, NOW())
               RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query, f.ID, f.Name, f.InviteCode).Scan(&f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateInviteCode
		}
		return fmt.Errorf("error creating family: %w", err)
	}
	return nil
}

func (r *PostgresFamilyRepository) GetFamilyByID(ctx context.Context, id string) (*family.Family, error) {
	return r.getFamily(ctx, `SELECT `+familyColumns+` FROM families WHERE id = $1`, id)
}

func (r *PostgresFamilyRepository) GetFamilyByInviteCode(ctx context.Context, code string) (*family.Family, error) {
	return r.getFamily(ctx, `SELECT `+familyColumns+` FROM families WHERE invite_code = $1`, code)
}

func (r *PostgresFamilyRepository) getFamily(ctx context.Context, query string, arg string) (*family.Family, error) {
	f := &family.Family{}
	if err := r.db.GetContext(ctx, f, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("error getting family: %w", err)
	}
	return f, nil
}

// SetFamilyGroupID stores the family's group chat target; an empty id clears it.
func (r *PostgresFamilyRepository) SetFamilyGroupID(ctx context.Context, familyID string, groupID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE families SET line_group_id = NULLIF($1, '') WHERE id = $2`, groupID, familyID)
	if err != nil {
		return fmt.Errorf("error setting family group target: %w", err)
	}
	return checkAffected(res, ErrFamilyNotFound)
}

func (r *PostgresFamilyRepository) ListMembers(ctx context.Context, familyID string) ([]*family.User, error) {
	var users []*family.User
	query := `SELECT ` + userColumns + ` FROM users WHERE family_id = $1 ORDER BY created_at ASC, id ASC`
	if err := r.db.SelectContext(ctx, &users, query, familyID); err != nil {
		return nil, fmt.Errorf("error listing family members: %w", err)
	}
	return users, nil
}
