package family

import (
	"database/sql"
	"time"
)

// Family is the sharing group that owns bags and items. It is also the unit
// of expiry notification: one message per family per run.
type Family struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	InviteCode string         `db:"invite_code"`
	GroupID    sql.NullString `db:"notify_group_id"` // Chat group target, supersedes member targets
	CreatedAt  time.Time      `db:"created_at"`
}

// User is an authenticated account. FamilyID is empty until the user creates
// or joins a family.
type User struct {
	ID           string         `db:"id"` // Subject of the identity provider token
	FamilyID     sql.NullString `db:"family_id"`
	DisplayName  sql.NullString `db:"display_name"`
	Email        sql.NullString `db:"email"`
	NotifyUserID sql.NullString `db:"notify_user_id"` // Individual chat target
	CreatedAt    time.Time      `db:"created_at"`
}

// Member is the public view of a family member.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	HasTarget   bool   `json:"hasNotificationTarget"`
}
