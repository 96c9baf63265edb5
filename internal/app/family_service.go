package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stockpile_manager/internal/domain/family"
	"stockpile_manager/internal/domain/messaging"
	idb "stockpile_manager/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Application-level errors shared by the family, inventory and label services.
var ErrNoFamily = fmt.Errorf("user does not belong to a family")
var ErrInvalidInput = fmt.Errorf("invalid input")

const (
	inviteCodeLength   = 6
	inviteCodeAttempts = 5
)

// Identity is the authenticated caller as described by the bearer token.
type Identity struct {
	UserID      string
	DisplayName string
	Email       string
}

// Profile is the caller's own account view.
type Profile struct {
	ID           string  `json:"id"`
	FamilyID     *string `json:"familyId"`
	FamilyName   *string `json:"familyName"`
	DisplayName  *string `json:"displayName"`
	NotifyUserID *string `json:"notifyUserId"`
}

// FamilyView is a family with its members, as shown to one of its members.
type FamilyView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	InviteCode    string          `json:"inviteCode"`
	NotifyGroupID *string         `json:"notifyGroupId"`
	Members       []family.Member `json:"members"`
}

// NotificationSettings carries target updates. A nil field is left as is; an
// empty string clears the target.
type NotificationSettings struct {
	UserTarget  *string `json:"notifyUserId"`
	GroupTarget *string `json:"notifyGroupId"`
}

type FamilyService struct {
	repo      family.Repository
	validator messaging.TargetValidator
	log       *logrus.Entry
}

func NewFamilyService(repo family.Repository, validator messaging.TargetValidator, log *logrus.Logger) *FamilyService {
	return &FamilyService{
		repo:      repo,
		validator: validator,
		log:       log.WithField("component", "family_service"),
	}
}

// EnsureUser returns the caller's user record, creating it on first sight.
func (s *FamilyService) EnsureUser(ctx context.Context, id Identity) (*family.User, error) {
	u, err := s.repo.GetUser(ctx, id.UserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, idb.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u = &family.User{
		ID:          id.UserID,
		DisplayName: nullString(id.DisplayName),
		Email:       nullString(id.Email),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.WithField("user_id", u.ID).Info("Registered new user")

	// Another request may have created the row first; read back the stored one.
	stored, err := s.repo.GetUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user after create: %w", err)
	}
	return stored, nil
}

// Profile returns the caller's account together with their family name.
func (s *FamilyService) Profile(ctx context.Context, id Identity) (*Profile, error) {
	u, err := s.EnsureUser(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &Profile{
		ID:           u.ID,
		FamilyID:     optional(u.FamilyID.String),
		DisplayName:  optional(u.DisplayName.String),
		NotifyUserID: optional(u.NotifyUserID.String),
	}
	if u.FamilyID.Valid {
		f, err := s.repo.GetFamilyByID(ctx, u.FamilyID.String)
		if err != nil && !errors.Is(err, idb.ErrFamilyNotFound) {
			return nil, fmt.Errorf("failed to get family: %w", err)
		}
		if f != nil {
			p.FamilyName = optional(f.Name)
		}
	}
	return p, nil
}

// CreateFamily creates a family with a fresh invite code and moves the
// caller into it.
func (s *FamilyService) CreateFamily(ctx context.Context, id Identity, name string) (*family.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: family name is required", ErrInvalidInput)
	}
	if _, err := s.EnsureUser(ctx, id); err != nil {
		return nil, err
	}

	var f *family.Family
	for attempt := 1; ; attempt++ {
		f = &family.Family{Name: name, InviteCode: newInviteCode()}
		err := s.repo.CreateFamily(ctx, f)
		if err == nil {
			break
		}
		if !errors.Is(err, idb.ErrDuplicateInviteCode) || attempt == inviteCodeAttempts {
			return nil, fmt.Errorf("failed to create family: %w", err)
		}
		s.log.WithField("attempt", attempt).Warn("Invite code collision, regenerating")
	}

	if err := s.repo.SetUserFamily(ctx, id.UserID, f.ID); err != nil {
		return nil, fmt.Errorf("failed to join created family: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id.UserID, "family_id": f.ID}).Info("Family created")
	return f, nil
}

// JoinFamily moves the caller into the family owning the invite code. Codes
// are matched case-insensitively.
func (s *FamilyService) JoinFamily(ctx context.Context, id Identity, code string) (*family.Family, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}
	if _, err := s.EnsureUser(ctx, id); err != nil {
		return nil, err
	}

	f, err := s.repo.GetFamilyByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, idb.ErrFamilyNotFound) {
			return nil, idb.ErrFamilyNotFound
		}
		return nil, fmt.Errorf("failed to find family by invite code: %w", err)
	}
	if err := s.repo.SetUserFamily(ctx, id.UserID, f.ID); err != nil {
		return nil, fmt.Errorf("failed to join family: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": id.UserID, "family_id": f.ID}).Info("User joined family")
	return f, nil
}

// GetFamily returns the caller's family and its members.
func (s *FamilyService) GetFamily(ctx context.Context, userID string) (*FamilyView, error) {
	familyID, err := familyOf(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	f, err := s.repo.GetFamilyByID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	users, err := s.repo.ListMembers(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	view := &FamilyView{
		ID:            f.ID,
		Name:          f.Name,
		InviteCode:    f.InviteCode,
		NotifyGroupID: optional(f.GroupID.String),
		Members:       make([]family.Member, 0, len(users)),
	}
	for _, u := range users {
		view.Members = append(view.Members, family.Member{
			UserID:      u.ID,
			DisplayName: u.DisplayName.String,
			HasTarget:   u.NotifyUserID.Valid && u.NotifyUserID.String != "",
		})
	}
	return view, nil
}

// UpdateNotificationSettings stores the caller's individual target and the
// family group target after validating them for the active chat platform.
func (s *FamilyService) UpdateNotificationSettings(ctx context.Context, userID string, in NotificationSettings) error {
	familyID, err := familyOf(ctx, s.repo, userID)
	if err != nil {
		return err
	}

	userTarget := trimmed(in.UserTarget)
	groupTarget := trimmed(in.GroupTarget)
	if userTarget != nil && *userTarget != "" {
		if err := s.validator.ValidateUserID(*userTarget); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if groupTarget != nil && *groupTarget != "" {
		if err := s.validator.ValidateGroupID(*groupTarget); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	if userTarget != nil {
		if err := s.repo.SetUserNotifyID(ctx, userID, *userTarget); err != nil {
			return fmt.Errorf("failed to update user target: %w", err)
		}
	}
	if groupTarget != nil {
		if err := s.repo.SetFamilyGroupID(ctx, familyID, *groupTarget); err != nil {
			return fmt.Errorf("failed to update group target: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "family_id": familyID}).Info("Notification settings updated")
	return nil
}

// familyOf resolves the family of a user, mapping a missing user or an
// unassigned family to ErrNoFamily.
func familyOf(ctx context.Context, repo family.Repository, userID string) (string, error) {
	u, err := repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, idb.ErrUserNotFound) {
			return "", ErrNoFamily
		}
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if !u.FamilyID.Valid || u.FamilyID.String == "" {
		return "", ErrNoFamily
	}
	return u.FamilyID.String, nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:inviteCodeLength])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
