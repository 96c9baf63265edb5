package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"stockpile_manager/internal/domain/family"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresFamilyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserMapsTargetColumn(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresFamilyRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("line_user_id AS notify_user_id")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "family_id", "display_name", "email", "notify_user_id", "created_at"}).
			AddRow("u1", "f1", "Hanako", nil, "Uabc", now))

	u, err := repo.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "f1", u.FamilyID.String)
	assert.Equal(t, "Uabc", u.NotifyUserID.String)
	assert.False(t, u.Email.Valid)
}

func TestCreateFamilyDuplicateInviteCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresFamilyRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO families")).
		WithArgs(sqlmock.AnyArg(), "Tanaka", "ABC123").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "families_invite_code_unique"})

	err := repo.CreateFamily(context.Background(), &family.Family{Name: "Tanaka", InviteCode: "ABC123"})
	assert.ErrorIs(t, err, ErrDuplicateInviteCode)
}

func TestSetUserNotifyIDUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresFamilyRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET line_user_id = NULLIF($1, '') WHERE id = $2")).
		WithArgs("", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetUserNotifyID(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
