package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockpile_manager/internal/domain/stock"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrBagNotFound = fmt.Errorf("bag not found")

const bagColumns = `id, family_id, name, COALESCE(created_at, NOW()) AS created_at`

type PostgresBagRepository struct {
	db *sqlx.DB
}

func NewPostgresBagRepository(db *sqlx.DB) *PostgresBagRepository {
	return &PostgresBagRepository{db: db}
}

func (r *PostgresBagRepository) ListByFamily(ctx context.Context, familyID string) ([]*stock.Bag, error) {
	bags := []*stock.Bag{}
	query := `SELECT ` + bagColumns + ` FROM bags WHERE family_id = $1 ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &bags, query, familyID); err != nil {
		return nil, fmt.Errorf("error listing bags: %w", err)
	}
	return bags, nil
}

func (r *PostgresBagRepository) Get(ctx context.Context, id string) (*stock.Bag, error) {
	bag := &stock.Bag{}
	if err := r.db.GetContext(ctx, bag, `SELECT `+bagColumns+` FROM bags WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBagNotFound
		}
		return nil, fmt.Errorf("error getting bag by ID: %w", err)
	}
	return bag, nil
}

func (r *PostgresBagRepository) Create(ctx context.Context, bag *stock.Bag) error {
	bag.ID = uuid.NewString()
	query := `INSERT INTO bags (id, family_id, name, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`
	if err := r.db.QueryRowxContext(ctx, query, bag.ID, bag.FamilyID, bag.Name).Scan(&bag.CreatedAt); err != nil {
		return fmt.Errorf("error creating bag: %w", err)
	}
	return nil
}

// Delete unassigns the bag's items and removes the bag in one transaction.
func (r *PostgresBagRepository) Delete(ctx context.Context, familyID, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE items SET bag_id = NULL WHERE bag_id = $1 AND family_id = $2`, id, familyID); err != nil {
		return fmt.Errorf("error unassigning bag items: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bags WHERE id = $1 AND family_id = $2`, id, familyID)
	if err != nil {
		return fmt.Errorf("error deleting bag: %w", err)
	}
	if err := checkAffected(res, ErrBagNotFound); err != nil {
		return err
	}
	return tx.Commit()
}
