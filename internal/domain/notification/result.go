package notification

import "stockpile_manager/internal/domain/messaging"

// FamilyResult is the delivery outcome for one family in one run.
type FamilyResult struct {
	FamilyID   string               `json:"familyId"`
	Delivered  bool                 `json:"delivered"`
	TargetKind messaging.TargetKind `json:"targetKind"`
	ItemCount  int                  `json:"itemCount"`
	Error      string               `json:"error,omitempty"`
}

// BatchResult aggregates a run. Families without any target are listed in
// Skipped and never appear in Results.
type BatchResult struct {
	Today      string         `json:"today"`
	Candidates int            `json:"candidates"`
	Results    []FamilyResult `json:"results"`
	Skipped    []string       `json:"skipped,omitempty"`
	Unresolved []string       `json:"unresolved,omitempty"` // Item ids whose family could not be found
}

// Failed counts families whose delivery did not succeed.
func (r *BatchResult) Failed() int {
	n := 0
	for _, fr := range r.Results {
		if !fr.Delivered {
			n++
		}
	}
	return n
}
