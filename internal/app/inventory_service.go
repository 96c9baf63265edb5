package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"stockpile_manager/internal/domain/family"
	"stockpile_manager/internal/domain/stock"
	idb "stockpile_manager/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// ImportRow is one raw entry of a bulk import request.
type ImportRow struct {
	Name         string   `json:"name"`
	Quantity     *float64 `json:"quantity"`
	ExpiryDate   string   `json:"expiryDate"`
	BagName      string   `json:"bagName"`
	LocationNote string   `json:"locationNote"`
}

// ImportError reports the first invalid row of an import, 1-based.
type ImportError struct {
	Index  int
	Reason string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

func (e *ImportError) Unwrap() error { return ErrInvalidInput }

// ImportSummary is the outcome of a successful bulk import.
type ImportSummary struct {
	Success  bool                 `json:"success"`
	Imported int                  `json:"imported"`
	Items    []stock.ItemResponse `json:"items"`
	NewBags  []string             `json:"newBags"`
}

type InventoryService struct {
	families family.Repository
	items    stock.ItemRepository
	bags     stock.BagRepository
	log      *logrus.Entry
}

func NewInventoryService(
	families family.Repository,
	items stock.ItemRepository,
	bags stock.BagRepository,
	log *logrus.Logger,
) *InventoryService {
	return &InventoryService{
		families: families,
		items:    items,
		bags:     bags,
		log:      log.WithField("component", "inventory_service"),
	}
}

// ListItems returns the family's items ordered by expiry date. A caller
// without a family simply has no items.
func (s *InventoryService) ListItems(ctx context.Context, userID string) ([]*stock.Item, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if errors.Is(err, ErrNoFamily) {
		return []*stock.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *InventoryService) CreateItem(ctx context.Context, userID string, in stock.ItemInput) (*stock.Item, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return nil, err
	}
	in, err = s.validateItem(ctx, familyID, in)
	if err != nil {
		return nil, err
	}

	item := &stock.Item{FamilyID: familyID}
	applyInput(item, in)
	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	s.log.WithFields(logrus.Fields{"family_id": familyID, "item_id": item.ID}).Info("Item created")
	return s.items.Get(ctx, familyID, item.ID)
}

// UpdateItem replaces the writable fields of an item. Notification flags are
// left untouched, even when the expiry date changes.
func (s *InventoryService) UpdateItem(ctx context.Context, userID, itemID string, in stock.ItemInput) (*stock.Item, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	item, err := s.items.Get(ctx, familyID, itemID)
	if err != nil {
		return nil, err
	}
	in, err = s.validateItem(ctx, familyID, in)
	if err != nil {
		return nil, err
	}

	applyInput(item, in)
	if err := s.items.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return s.items.Get(ctx, familyID, item.ID)
}

func (s *InventoryService) DeleteItem(ctx context.Context, userID, itemID string) error {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return err
	}
	if itemID == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidInput)
	}
	if err := s.items.Delete(ctx, familyID, itemID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"family_id": familyID, "item_id": itemID}).Info("Item deleted")
	return nil
}

func (s *InventoryService) ListBags(ctx context.Context, userID string) ([]*stock.Bag, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if errors.Is(err, ErrNoFamily) {
		return []*stock.Bag{}, nil
	}
	if err != nil {
		return nil, err
	}
	bags, err := s.bags.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bags: %w", err)
	}
	return bags, nil
}

func (s *InventoryService) CreateBag(ctx context.Context, userID, name string) (*stock.Bag, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: bag name is required", ErrInvalidInput)
	}
	bag := &stock.Bag{FamilyID: familyID, Name: name}
	if err := s.bags.Create(ctx, bag); err != nil {
		return nil, fmt.Errorf("failed to create bag: %w", err)
	}
	return bag, nil
}

// DeleteBag removes a bag of the caller's family. Items in it stay, unassigned.
func (s *InventoryService) DeleteBag(ctx context.Context, userID, bagID string) error {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return err
	}
	if bagID == "" {
		return fmt.Errorf("%w: bag id is required", ErrInvalidInput)
	}
	bag, err := s.bags.Get(ctx, bagID)
	if err != nil {
		return err
	}
	if bag.FamilyID != familyID {
		return idb.ErrBagNotFound
	}
	if err := s.bags.Delete(ctx, familyID, bagID); err != nil {
		return fmt.Errorf("failed to delete bag: %w", err)
	}
	s.log.WithFields(logrus.Fields{"family_id": familyID, "bag_id": bagID}).Info("Bag deleted")
	return nil
}

// ImportItems validates all rows first and stores nothing unless every row
// is valid.
func (s *InventoryService) ImportItems(ctx context.Context, userID string, rows []ImportRow) (*ImportSummary, error) {
	familyID, err := familyOf(ctx, s.families, userID)
	if err != nil {
		return nil, err
	}
	entries, err := ValidateImport(rows)
	if err != nil {
		return nil, err
	}

	res, err := s.items.Import(ctx, familyID, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to import items: %w", err)
	}

	summary := &ImportSummary{
		Success:  true,
		Imported: len(res.Items),
		Items:    make([]stock.ItemResponse, 0, len(res.Items)),
		NewBags:  res.NewBags,
	}
	if summary.NewBags == nil {
		summary.NewBags = []string{}
	}
	for _, it := range res.Items {
		summary.Items = append(summary.Items, it.ToResponse())
	}
	s.log.WithFields(logrus.Fields{
		"family_id": familyID,
		"imported":  summary.Imported,
		"new_bags":  len(summary.NewBags),
	}).Info("Items imported")
	return summary, nil
}

// ValidateImport checks every row and normalizes it. The first invalid row
// is reported as an *ImportError.
func ValidateImport(rows []ImportRow) ([]stock.ImportEntry, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no items to import", ErrInvalidInput)
	}

	entries := make([]stock.ImportEntry, 0, len(rows))
	for i, row := range rows {
		idx := i + 1
		name := strings.TrimSpace(row.Name)
		if name == "" {
			return nil, &ImportError{Index: idx, Reason: "name is required"}
		}
		if row.ExpiryDate == "" {
			return nil, &ImportError{Index: idx, Reason: "expiryDate is required"}
		}
		if !validDate(row.ExpiryDate) {
			return nil, &ImportError{Index: idx, Reason: "expiryDate must be YYYY-MM-DD"}
		}
		quantity := 1
		if row.Quantity != nil {
			if *row.Quantity < 1 {
				return nil, &ImportError{Index: idx, Reason: "quantity must be 1 or more"}
			}
			quantity = int(math.Floor(*row.Quantity))
		}
		entries = append(entries, stock.ImportEntry{
			Name:         name,
			Quantity:     quantity,
			ExpiryDate:   row.ExpiryDate,
			BagName:      strings.TrimSpace(row.BagName),
			LocationNote: strings.TrimSpace(row.LocationNote),
		})
	}
	return entries, nil
}

func (s *InventoryService) validateItem(ctx context.Context, familyID string, in stock.ItemInput) (stock.ItemInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Quantity < 1 {
		in.Quantity = 1
	}
	if in.ExpiryDate != "" && !validDate(in.ExpiryDate) {
		return in, fmt.Errorf("%w: expiryDate must be YYYY-MM-DD", ErrInvalidInput)
	}
	if in.BagID != "" {
		bag, err := s.bags.Get(ctx, in.BagID)
		if err != nil {
			return in, err
		}
		if bag.FamilyID != familyID {
			return in, idb.ErrBagNotFound
		}
	}
	return in, nil
}

func applyInput(item *stock.Item, in stock.ItemInput) {
	item.Name = in.Name
	item.Quantity = in.Quantity
	item.ExpiryDate = stock.NullString(in.ExpiryDate)
	item.BagID = stock.NullString(in.BagID)
	item.LocationNote = stock.NullString(strings.TrimSpace(in.LocationNote))
}

func validDate(s string) bool {
	_, err := time.Parse(stock.DateLayout, s)
	return err == nil
}
