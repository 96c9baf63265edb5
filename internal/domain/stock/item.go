package stock

import (
	"database/sql"
	"time"
)

// DateLayout is the canonical form of a calendar date (no time, no zone).
const DateLayout = "2006-01-02"

// Item is a stored supply. ExpiryDate holds a YYYY-MM-DD calendar date.
type Item struct {
	ID           string         `db:"id"`
	FamilyID     string         `db:"family_id"`
	Name         string         `db:"name"`
	Quantity     int            `db:"quantity"`
	ExpiryDate   sql.NullString `db:"expiry_date"`
	BagID        sql.NullString `db:"bag_id"`
	LocationNote sql.NullString `db:"location_note"`
	Notified30   bool           `db:"notified_30"`
	Notified7    bool           `db:"notified_7"`
	CreatedAt    time.Time      `db:"created_at"`

	BagName sql.NullString `db:"bag_name"` // Joined from bags, empty when unassigned
}

// Bag is a named container used to organize items.
type Bag struct {
	ID        string    `db:"id" json:"id"`
	FamilyID  string    `db:"family_id" json:"familyId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// BagRef is the bag summary embedded in an item response.
type BagRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemResponse is what we send to the client.
type ItemResponse struct {
	ID           string  `json:"id"`
	FamilyID     string  `json:"familyId"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	ExpiryDate   *string `json:"expiryDate"`
	BagID        *string `json:"bagId"`
	LocationNote *string `json:"locationNote"`
	Notified30   bool    `json:"notified30"`
	Notified7    bool    `json:"notified7"`
	Bag          *BagRef `json:"bag"`
	CreatedAt    string  `json:"createdAt"`
}

// ItemInput is the writable part of an item, shared by create and update.
type ItemInput struct {
	Name         string
	Quantity     int
	ExpiryDate   string // Empty means unknown
	BagID        string // Empty means unassigned
	LocationNote string
}

// ToResponse converts an Item to ItemResponse.
func (i *Item) ToResponse() ItemResponse {
	resp := ItemResponse{
		ID:           i.ID,
		FamilyID:     i.FamilyID,
		Name:         i.Name,
		Quantity:     i.Quantity,
		ExpiryDate:   nullable(i.ExpiryDate),
		BagID:        nullable(i.BagID),
		LocationNote: nullable(i.LocationNote),
		Notified30:   i.Notified30,
		Notified7:    i.Notified7,
		CreatedAt:    i.CreatedAt.Format(time.RFC3339),
	}
	if i.BagID.Valid {
		resp.Bag = &BagRef{ID: i.BagID.String, Name: i.BagName.String}
	}
	return resp
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// NullString converts an optional value to its column form; empty is NULL.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
