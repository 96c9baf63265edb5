package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockpile_manager/internal/domain/stock"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrItemNotFound = fmt.Errorf("item not found")

// itemSelect reads items joined with their bag. Expiry dates are rendered as
// YYYY-MM-DD so no time zone conversion can shift the calendar day.
const itemSelect = `SELECT i.id, i.family_id, i.name, COALESCE(i.quantity, 1) AS quantity,
       to_char(i.expiry_date, 'YYYY-MM-DD') AS expiry_date, i.bag_id, i.location_note,
       COALESCE(i.notified_30, false) AS notified_30, COALESCE(i.notified_7, false) AS notified_7,
       COALESCE(i.created_at, NOW()) AS created_at, b.name AS bag_name
  FROM items i
  LEFT JOIN bags b ON b.id = i.bag_id`

type PostgresItemRepository struct {
	db *sqlx.DB
}

func NewPostgresItemRepository(db *sqlx.DB) *PostgresItemRepository {
	return &PostgresItemRepository{db: db}
}

func (r *PostgresItemRepository) ListByFamily(ctx context.Context, familyID string) ([]*stock.Item, error) {
	items := []*stock.Item{}
	query := itemSelect + ` WHERE i.family_id = $1 ORDER BY i.expiry_date ASC NULLS LAST, i.name ASC, i.id ASC`
	if err := r.db.SelectContext(ctx, &items, query, familyID); err != nil {
		return nil, fmt.Errorf("error listing items: %w", err)
	}
	return items, nil
}

func (r *PostgresItemRepository) Get(ctx context.Context, familyID, id string) (*stock.Item, error) {
	item := &stock.Item{}
	err := r.db.GetContext(ctx, item, itemSelect+` WHERE i.family_id = $1 AND i.id = $2`, familyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("error getting item by ID: %w", err)
	}
	return item, nil
}

func (r *PostgresItemRepository) Create(ctx context.Context, item *stock.Item) error {
	item.ID = uuid.NewString()
	query := `INSERT INTO items (id, family_id, name, quantity, expiry_date, bag_id, location_note,
                                 notified_30, notified_7, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, false, false, NOW())
               RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.FamilyID, item.Name, item.Quantity, item.ExpiryDate, item.BagID, item.LocationNote,
	).Scan(&item.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating item: %w", err)
	}
	return nil
}

// Update writes the editable fields. Notification flags are never reset here.
func (r *PostgresItemRepository) Update(ctx context.Context, item *stock.Item) error {
	query := `UPDATE items
               SET name = $1, quantity = $2, expiry_date = $3, bag_id = $4, location_note = $5
               WHERE id = $6 AND family_id = $7`
	res, err := r.db.ExecContext(ctx, query,
		item.Name, item.Quantity, item.ExpiryDate, item.BagID, item.LocationNote, item.ID, item.FamilyID,
	)
	if err != nil {
		return fmt.Errorf("error updating item: %w", err)
	}
	return checkAffected(res, ErrItemNotFound)
}

func (r *PostgresItemRepository) Delete(ctx context.Context, familyID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1 AND family_id = $2`, id, familyID)
	if err != nil {
		return fmt.Errorf("error deleting item: %w", err)
	}
	return checkAffected(res, ErrItemNotFound)
}

func (r *PostgresItemRepository) Import(ctx context.Context, familyID string, entries []stock.ImportEntry) (*stock.ImportResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing []stock.Bag
	if err := tx.SelectContext(ctx, &existing,
		`SELECT id, family_id, name, COALESCE(created_at, NOW()) AS created_at FROM bags WHERE family_id = $1`, familyID,
	); err != nil {
		return nil, fmt.Errorf("error loading bags: %w", err)
	}
	bagIDs := make(map[string]string, len(existing))
	for _, b := range existing {
		bagIDs[b.Name] = b.ID
	}

	result := &stock.ImportResult{}
	for _, e := range entries {
		if e.BagName == "" {
			continue
		}
		if _, ok := bagIDs[e.BagName]; ok {
			continue
		}
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bags (id, family_id, name, created_at) VALUES ($1, $2, $3, NOW())`, id, familyID, e.BagName,
		); err != nil {
			return nil, fmt.Errorf("error creating bag %q: %w", e.BagName, err)
		}
		bagIDs[e.BagName] = id
		result.NewBags = append(result.NewBags, e.BagName)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id := uuid.NewString()
		var bagID sql.NullString
		if e.BagName != "" {
			bagID = stock.NullString(bagIDs[e.BagName])
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, family_id, name, quantity, expiry_date, bag_id, location_note,
                                notified_30, notified_7, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, false, false, NOW())`,
			id, familyID, e.Name, e.Quantity, e.ExpiryDate, bagID, stock.NullString(e.LocationNote),
		); err != nil {
			return nil, fmt.Errorf("error importing item %q: %w", e.Name, err)
		}
		ids = append(ids, id)
	}

	var stored []*stock.Item
	if err := tx.SelectContext(ctx, &stored, itemSelect+` WHERE i.id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("error reading imported items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	// Keep the request order.
	byID := make(map[string]*stock.Item, len(stored))
	for _, it := range stored {
		byID[it.ID] = it
	}
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			result.Items = append(result.Items, it)
		}
	}
	return result, nil
}
