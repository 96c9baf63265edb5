// internal/app/expiry_notifier.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockpile_manager/internal/domain/messaging"
	"stockpile_manager/internal/domain/notification"
	"stockpile_manager/internal/domain/stock"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrFlagUpdate is returned by Run when a message was delivered but the
// notification flags of its items could not be written. The affected items
// will be reminded again on the next run.
var ErrFlagUpdate = errors.New("failed to update notification flags")

const defaultNotifyConcurrency = 4

// ExpiryNotifier sends one reminder per family for items approaching their
// expiry date and records which reminders went out.
type ExpiryNotifier struct {
	repo        notification.Repository
	sender      messaging.Sender
	location    *time.Location
	concurrency int
	now         func() time.Time
	log         *logrus.Entry
}

func NewExpiryNotifier(
	repo notification.Repository,
	sender messaging.Sender,
	location *time.Location,
	concurrency int,
	log *logrus.Logger,
) *ExpiryNotifier {
	if location == nil {
		location = time.UTC
	}
	if concurrency < 1 {
		concurrency = defaultNotifyConcurrency
	}
	return &ExpiryNotifier{
		repo:        repo,
		sender:      sender,
		location:    location,
		concurrency: concurrency,
		now:         time.Now,
		log:         log.WithField("component", "expiry_notifier"),
	}
}

// Run executes one batch. A store failure while selecting candidates aborts
// the run. A delivery failure only affects the family it belongs to.
func (s *ExpiryNotifier) Run(ctx context.Context) (*notification.BatchResult, error) {
	today := s.now().In(s.location)
	result := &notification.BatchResult{
		Today:   today.Format(stock.DateLayout),
		Results: []notification.FamilyResult{},
	}

	found := make(map[notification.Threshold][]notification.DueItem, len(notification.Thresholds))
	for _, t := range notification.Thresholds {
		horizon := today.AddDate(0, 0, t.Days()).Format(stock.DateLayout)
		items, err := s.repo.FindItemsDueForNotification(ctx, horizon, t)
		if err != nil {
			s.log.WithError(err).Errorf("Failed to select %s candidates", t)
			return nil, fmt.Errorf("failed to find items due for %s: %w", t, err)
		}
		s.log.WithFields(logrus.Fields{"threshold": t.String(), "horizon": horizon, "count": len(items)}).Debug("Selected candidates")
		found[t] = items
	}

	cands := notification.MergeCandidates(found[notification.Threshold30], found[notification.Threshold7])
	result.Candidates = len(cands)
	if len(cands) == 0 {
		s.log.Info("No items due for notification.")
		return result, nil
	}

	groups := notification.GroupByFamily(cands)
	familyIDs := notification.FamilyIDs(groups)
	recipients, err := s.repo.FindRecipients(ctx, familyIDs)
	if err != nil {
		s.log.WithError(err).Error("Failed to load recipients")
		return nil, fmt.Errorf("failed to find recipients: %w", err)
	}

	var (
		mu       sync.Mutex
		flagErrs []error
		g        errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, familyID := range familyIDs {
		familyCands := groups[familyID]

		r, ok := recipients[familyID]
		if !ok {
			for _, c := range familyCands {
				result.Unresolved = append(result.Unresolved, c.ID)
			}
			s.log.WithField("family_id", familyID).Warnf("Family not found, skipping %d item(s)", len(familyCands))
			continue
		}

		target, ok := messaging.ResolveTarget(r.GroupID, r.UserIDs)
		if !ok {
			result.Skipped = append(result.Skipped, familyID)
			s.log.WithField("family_id", familyID).Info("No notification target configured, skipping")
			continue
		}

		g.Go(func() error {
			fr, flagErr := s.deliver(ctx, familyID, target, familyCands)
			mu.Lock()
			defer mu.Unlock()
			result.Results = append(result.Results, fr)
			if flagErr != nil {
				flagErrs = append(flagErrs, flagErr)
			}
			return nil
		})
	}
	_ = g.Wait() // Delivery errors are recorded per family

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].FamilyID < result.Results[j].FamilyID
	})
	sort.Strings(result.Unresolved)

	s.log.WithFields(logrus.Fields{
		"today":      result.Today,
		"candidates": result.Candidates,
		"attempted":  len(result.Results),
		"failed":     result.Failed(),
		"skipped":    len(result.Skipped),
		"unresolved": len(result.Unresolved),
	}).Info("Expiry notification run finished")

	if len(flagErrs) > 0 {
		return result, fmt.Errorf("%w: %w", ErrFlagUpdate, errors.Join(flagErrs...))
	}
	return result, nil
}

// deliver sends the family's message and, only after a successful send, sets
// the flag of every threshold each item was selected for.
func (s *ExpiryNotifier) deliver(
	ctx context.Context,
	familyID string,
	target messaging.Target,
	cands []notification.Candidate,
) (notification.FamilyResult, error) {
	fr := notification.FamilyResult{
		FamilyID:   familyID,
		TargetKind: target.Kind,
		ItemCount:  len(cands),
	}
	log := s.log.WithFields(logrus.Fields{"family_id": familyID, "target": target.Kind})

	if err := s.sender.Send(ctx, target, notification.ComposeMessage(cands)); err != nil {
		log.WithError(err).Error("Failed to send expiry notification")
		fr.Error = err.Error()
		return fr, nil
	}
	fr.Delivered = true
	log.Infof("Sent expiry notification for %d item(s)", len(cands))

	var errs []error
	for _, t := range notification.Thresholds {
		ids := notification.ItemIDsFor(cands, t)
		if len(ids) == 0 {
			continue
		}
		if err := s.repo.MarkItemsNotified(ctx, ids, t); err != nil {
			log.WithError(err).Errorf("Failed to mark %d item(s) as notified for %s", len(ids), t)
			errs = append(errs, fmt.Errorf("family %s %s: %w", familyID, t, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		fr.Error = err.Error()
		return fr, err
	}
	return fr, nil
}
