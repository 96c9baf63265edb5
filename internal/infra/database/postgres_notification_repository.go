// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"fmt"

	"stockpile_manager/internal/domain/notification"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // For pq.Array
)

type PostgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// FindItemsDueForNotification selects items expiring on or before
// thresholdDate whose flag for t is not yet set. Items without an expiry date
// never match.
func (r *PostgresNotificationRepository) FindItemsDueForNotification(ctx context.Context, thresholdDate string, t notification.Threshold) ([]notification.DueItem, error) {
	column := t.Column()
	if column == "" {
		return nil, fmt.Errorf("unknown notification threshold %d", int(t))
	}

	// column comes from a fixed set, never from input.
	query := fmt.Sprintf(`SELECT i.id, i.family_id, i.name, COALESCE(i.quantity, 1) AS quantity,
              to_char(i.expiry_date, 'YYYY-MM-DD') AS expiry_date, b.name AS bag_name
         FROM items i
         LEFT JOIN bags b ON b.id = i.bag_id
        WHERE i.expiry_date <= $1::date
          AND COALESCE(i.%s, false) = false
        ORDER BY i.family_id, i.expiry_date, i.id`, column)

	var items []notification.DueItem
	if err := r.db.SelectContext(ctx, &items, query, thresholdDate); err != nil {
		return nil, fmt.Errorf("error finding items due for %s: %w", t, err)
	}
	return items, nil
}

type familyTargetRow struct {
	ID      string `db:"id"`
	GroupID string `db:"group_id"`
}

type memberTargetRow struct {
	FamilyID string `db:"family_id"`
	UserID   string `db:"user_id"`
}

// FindRecipients loads the group target of each family and the individual
// targets of its members. Unknown family ids are absent from the result.
func (r *PostgresNotificationRepository) FindRecipients(ctx context.Context, familyIDs []string) (map[string]*notification.Recipients, error) {
	out := make(map[string]*notification.Recipients, len(familyIDs))
	if len(familyIDs) == 0 {
		return out, nil
	}

	var families []familyTargetRow
	err := r.db.SelectContext(ctx, &families,
		`SELECT id, COALESCE(line_group_id, '') AS group_id FROM families WHERE id = ANY($1::uuid[])`,
		pq.Array(familyIDs))
	if err != nil {
		return nil, fmt.Errorf("error loading family targets: %w", err)
	}
	for _, f := range families {
		out[f.ID] = &notification.Recipients{FamilyID: f.ID, GroupID: f.GroupID}
	}

	var members []memberTargetRow
	err = r.db.SelectContext(ctx, &members,
		`SELECT family_id, line_user_id AS user_id
           FROM users
          WHERE family_id = ANY($1::uuid[])
            AND line_user_id IS NOT NULL AND line_user_id <> ''
          ORDER BY family_id, line_user_id`,
		pq.Array(familyIDs))
	if err != nil {
		return nil, fmt.Errorf("error loading member targets: %w", err)
	}
	for _, m := range members {
		if rc, ok := out[m.FamilyID]; ok {
			rc.UserIDs = append(rc.UserIDs, m.UserID)
		}
	}
	return out, nil
}

// MarkItemsNotified sets the flag for t on the given items. It only ever
// sets flags to true.
func (r *PostgresNotificationRepository) MarkItemsNotified(ctx context.Context, itemIDs []string, t notification.Threshold) error {
	if len(itemIDs) == 0 {
		return nil
	}
	column := t.Column()
	if column == "" {
		return fmt.Errorf("unknown notification threshold %d", int(t))
	}

	query := fmt.Sprintf(`UPDATE items SET %s = true WHERE id = ANY($1::uuid[])`, column)
	if _, err := r.db.ExecContext(ctx, query, pq.Array(itemIDs)); err != nil {
		return fmt.Errorf("error marking %d item(s) notified for %s: %w", len(itemIDs), t, err)
	}
	return nil
}
