package notification

import (
	"database/sql"
	"sort"
)

// DueItem is an item returned by a threshold query, joined with its bag name.
type DueItem struct {
	ID         string         `db:"id"`
	FamilyID   string         `db:"family_id"`
	Name       string         `db:"name"`
	Quantity   int            `db:"quantity"`
	ExpiryDate sql.NullString `db:"expiry_date"` // YYYY-MM-DD
	BagName    sql.NullString `db:"bag_name"`
}

// Candidate is a due item tagged with every threshold that selected it.
// Due30 and Due7 are independent facts; one never suppresses the other.
type Candidate struct {
	DueItem
	Due30 bool
	Due7  bool
}

// MergeCandidates unions the two threshold query results, deduplicated by item
// id. The order is first appearance across due30 then due7.
func MergeCandidates(due30, due7 []DueItem) []Candidate {
	index := make(map[string]int, len(due30)+len(due7))
	merged := make([]Candidate, 0, len(due30)+len(due7))

	add := func(items []DueItem, mark func(*Candidate)) {
		for _, it := range items {
			i, ok := index[it.ID]
			if !ok {
				i = len(merged)
				index[it.ID] = i
				merged = append(merged, Candidate{DueItem: it})
			}
			mark(&merged[i])
		}
	}
	add(due30, func(c *Candidate) { c.Due30 = true })
	add(due7, func(c *Candidate) { c.Due7 = true })

	return merged
}

// GroupByFamily partitions candidates by owning family.
func GroupByFamily(cands []Candidate) map[string][]Candidate {
	groups := make(map[string][]Candidate)
	for _, c := range cands {
		groups[c.FamilyID] = append(groups[c.FamilyID], c)
	}
	return groups
}

// FamilyIDs returns the keys of a grouping in ascending order.
func FamilyIDs(groups map[string][]Candidate) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ItemIDsFor returns the ids of the candidates due for the given threshold.
func ItemIDsFor(cands []Candidate, t Threshold) []string {
	var ids []string
	for _, c := range cands {
		if (t == Threshold30 && c.Due30) || (t == Threshold7 && c.Due7) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
