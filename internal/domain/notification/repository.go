// internal/domain/notification/repository.go
package notification

import (
	"context"
)

// Recipients holds the notification targets configured for one family.
type Recipients struct {
	FamilyID string
	GroupID  string   // Empty when no group is configured
	UserIDs  []string // Individual targets of members, may contain duplicates
}

// Repository defines the persistence operations used by the expiry batch job.
type Repository interface {
	// FindItemsDueForNotification returns items whose expiry date is on or
	// before thresholdDate (YYYY-MM-DD) and whose flag for t is still false.
	FindItemsDueForNotification(ctx context.Context, thresholdDate string, t Threshold) ([]DueItem, error)
	// FindRecipients loads targets for the given families. Families that do not
	// exist are absent from the returned map.
	FindRecipients(ctx context.Context, familyIDs []string) (map[string]*Recipients, error)
	// MarkItemsNotified sets the flag for t to true. It never clears a flag.
	MarkItemsNotified(ctx context.Context, itemIDs []string, t Threshold) error
}
