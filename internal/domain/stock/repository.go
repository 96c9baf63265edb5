package stock

import (
	"context"
)

// ImportEntry is one validated row of a bulk import. BagName refers to a bag
// of the same family by name; unknown names are created.
type ImportEntry struct {
	Name         string
	Quantity     int
	ExpiryDate   string
	BagName      string
	LocationNote string
}

// ImportResult reports what a bulk import stored.
type ImportResult struct {
	Items   []*Item
	NewBags []string
}

// ItemRepository defines operations for supply items. Every method is scoped
// to a family so one family can never touch another family's items.
type ItemRepository interface {
	ListByFamily(ctx context.Context, familyID string) ([]*Item, error)
	Get(ctx context.Context, familyID, id string) (*Item, error)
	Create(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Delete(ctx context.Context, familyID, id string) error

	// Import resolves bag names, creates missing bags and inserts all entries
	// in one transaction.
	Import(ctx context.Context, familyID string, entries []ImportEntry) (*ImportResult, error)
}

// BagRepository defines operations for bags.
type BagRepository interface {
	ListByFamily(ctx context.Context, familyID string) ([]*Bag, error)
	Get(ctx context.Context, id string) (*Bag, error)
	Create(ctx context.Context, bag *Bag) error
	// Delete unlinks the bag's items and removes the bag.
	Delete(ctx context.Context, familyID, id string) error
}
