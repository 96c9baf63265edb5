package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"stockpile_manager/internal/domain/messaging"
	"stockpile_manager/internal/domain/notification"
	"stockpile_manager/internal/domain/stock"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeItem struct {
	familyID   string
	name       string
	expiry     string
	notified30 bool
	notified7  bool
}

type fakeNotificationRepo struct {
	mu         sync.Mutex
	items      map[string]*fakeItem
	recipients map[string]*notification.Recipients
	findErr    error
	markErr    error
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		items:      make(map[string]*fakeItem),
		recipients: make(map[string]*notification.Recipients),
	}
}

func (r *fakeNotificationRepo) FindItemsDueForNotification(_ context.Context, thresholdDate string, t notification.Threshold) ([]notification.DueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []notification.DueItem
	for id, it := range r.items {
		if it.expiry == "" || it.expiry > thresholdDate {
			continue
		}
		if (t == notification.Threshold30 && it.notified30) || (t == notification.Threshold7 && it.notified7) {
			continue
		}
		out = append(out, notification.DueItem{
			ID:         id,
			FamilyID:   it.familyID,
			Name:       it.name,
			Quantity:   1,
			ExpiryDate: stock.NullString(it.expiry),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeNotificationRepo) FindRecipients(_ context.Context, familyIDs []string) (map[string]*notification.Recipients, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*notification.Recipients)
	for _, id := range familyIDs {
		if rc, ok := r.recipients[id]; ok {
			out[id] = rc
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkItemsNotified(_ context.Context, itemIDs []string, t notification.Threshold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	for _, id := range itemIDs {
		it := r.items[id]
		if t == notification.Threshold30 {
			it.notified30 = true
		} else {
			it.notified7 = true
		}
	}
	return nil
}

func (r *fakeNotificationRepo) flags(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.items[id]
	return it.notified30, it.notified7
}

type sentMessage struct {
	target messaging.Target
	text   string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool // Group ids whose delivery fails
}

func (s *fakeSender) Send(_ context.Context, target messaging.Target, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[target.GroupID] {
		return errors.New("push rejected")
	}
	s.sent = append(s.sent, sentMessage{target: target, text: text})
	return nil
}

// 2025-01-01 15:30 UTC is already 2025-01-02 in Tokyo.
var fixedNow = time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)

func newTestNotifier(t *testing.T, repo *fakeNotificationRepo, sender *fakeSender) *ExpiryNotifier {
	t.Helper()
	n := NewExpiryNotifier(repo, sender, time.FixedZone("JST", 9*60*60), 2, testLogger())
	n.now = func() time.Time { return fixedNow }
	return n
}

func TestExpiryNotifierThresholdIndependence(t *testing.T) {
	repo := newFakeNotificationRepo()
	// today+5, today+20, beyond both horizons, no expiry date
	repo.items["soon"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-07"}
	repo.items["later"] = &fakeItem{familyID: "f1", name: "米", expiry: "2025-01-22"}
	repo.items["far"] = &fakeItem{familyID: "f1", name: "缶詰", expiry: "2025-03-01"}
	repo.items["none"] = &fakeItem{familyID: "f1", name: "乾パン"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", GroupID: "C1"}
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-01-02", res.Today)
	assert.Equal(t, 2, res.Candidates)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Delivered)
	assert.Equal(t, 2, res.Results[0].ItemCount)

	n30, n7 := repo.flags("soon")
	assert.True(t, n30)
	assert.True(t, n7)

	n30, n7 = repo.flags("later")
	assert.True(t, n30)
	assert.False(t, n7)

	n30, n7 = repo.flags("far")
	assert.False(t, n30)
	assert.False(t, n7)
}

func TestExpiryNotifierIdempotentFlags(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["a"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-05"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", UserIDs: []string{"U1"}}
	sender := &fakeSender{}
	n := newTestNotifier(t, repo, sender)

	_, err := n.Run(context.Background())
	require.NoError(t, err)
	res, err := n.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 0, res.Candidates)
	assert.Empty(t, res.Results)
}

func TestExpiryNotifierGroupSupersedesIndividuals(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["a"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-05"}
	repo.recipients["f1"] = &notification.Recipients{
		FamilyID: "f1",
		GroupID:  "C1",
		UserIDs:  []string{"U1", "U2"},
	}
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, messaging.Target{Kind: messaging.TargetGroup, GroupID: "C1"}, sender.sent[0].target)
	assert.Equal(t, messaging.TargetGroup, res.Results[0].TargetKind)
}

func TestExpiryNotifierSkipsFamilyWithoutTarget(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["a"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-05"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", UserIDs: []string{""}}
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sender.sent)
	assert.Empty(t, res.Results)
	assert.Equal(t, []string{"f1"}, res.Skipped)
	n30, n7 := repo.flags("a")
	assert.False(t, n30)
	assert.False(t, n7)
}

func TestExpiryNotifierPartialFailureIsolation(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["bad"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-05"}
	repo.items["good"] = &fakeItem{familyID: "f2", name: "米", expiry: "2025-01-05"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", GroupID: "C-broken"}
	repo.recipients["f2"] = &notification.Recipients{FamilyID: "f2", GroupID: "C-ok"}
	sender := &fakeSender{failFor: map[string]bool{"C-broken": true}}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, "f1", res.Results[0].FamilyID)
	assert.False(t, res.Results[0].Delivered)
	assert.Equal(t, "push rejected", res.Results[0].Error)
	assert.True(t, res.Results[1].Delivered)
	assert.Equal(t, 1, res.Failed())

	n30, n7 := repo.flags("bad")
	assert.False(t, n30)
	assert.False(t, n7)
	n30, n7 = repo.flags("good")
	assert.True(t, n30)
	assert.True(t, n7)
}

func TestExpiryNotifierUnresolvedFamily(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["orphan"] = &fakeItem{familyID: "gone", name: "水", expiry: "2025-01-05"}
	repo.items["a"] = &fakeItem{familyID: "f1", name: "米", expiry: "2025-01-05"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", GroupID: "C1"}
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"orphan"}, res.Unresolved)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "f1", res.Results[0].FamilyID)
}

func TestExpiryNotifierStoreFailureAborts(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.findErr = errors.New("connection refused")
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, sender.sent)
}

func TestExpiryNotifierFlagUpdateFailure(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.items["a"] = &fakeItem{familyID: "f1", name: "水", expiry: "2025-01-20"}
	repo.recipients["f1"] = &notification.Recipients{FamilyID: "f1", GroupID: "C1"}
	repo.markErr = errors.New("deadlock detected")
	sender := &fakeSender{}

	res, err := newTestNotifier(t, repo, sender).Run(context.Background())

	require.ErrorIs(t, err, ErrFlagUpdate)
	require.NotNil(t, res)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].Delivered)
	assert.Contains(t, res.Results[0].Error, "deadlock detected")
}
