package family

import (
	"context"
)

// Repository defines the operations for persisting families and their users.
type Repository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error // No-op when the user already exists
	SetUserFamily(ctx context.Context, userID, familyID string) error
	SetUserNotifyID(ctx context.Context, userID string, notifyUserID string) error

	CreateFamily(ctx context.Context, f *Family) error
	GetFamilyByID(ctx context.Context, id string) (*Family, error)
	GetFamilyByInviteCode(ctx context.Context, code string) (*Family, error)
	SetFamilyGroupID(ctx context.Context, familyID string, groupID string) error
	ListMembers(ctx context.Context, familyID string) ([]*User, error)
}
