package messaging

import (
	"context"
	"sort"
)

// TargetKind selects between the two delivery modes of a chat platform.
type TargetKind string

const (
	TargetGroup      TargetKind = "group"
	TargetIndividual TargetKind = "individual"
)

// Target is where one outbound message goes. A group target is used
// exclusively; individual targets are only used when no group is set.
type Target struct {
	Kind    TargetKind
	GroupID string
	UserIDs []string
}

// ResolveTarget picks the delivery target for a family. It returns false when
// there is nobody to deliver to.
func ResolveTarget(groupID string, userIDs []string) (Target, bool) {
	if groupID != "" {
		return Target{Kind: TargetGroup, GroupID: groupID}, true
	}

	seen := make(map[string]struct{}, len(userIDs))
	distinct := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	if len(distinct) == 0 {
		return Target{}, false
	}
	sort.Strings(distinct)
	return Target{Kind: TargetIndividual, UserIDs: distinct}, true
}

// Sender defines an interface for delivering a text message through a chat
// platform. This keeps the notification logic independent of the platform SDK.
type Sender interface {
	Send(ctx context.Context, target Target, text string) error
}

// TargetValidator checks platform-specific identifier formats before they are
// stored as notification targets.
type TargetValidator interface {
	ValidateUserID(id string) error
	ValidateGroupID(id string) error
}
