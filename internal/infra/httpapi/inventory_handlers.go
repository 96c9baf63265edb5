package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/stock"
)

type itemRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Quantity     *int    `json:"quantity"`
	ExpiryDate   *string `json:"expiryDate"`
	BagID        *string `json:"bagId"`
	LocationNote *string `json:"locationNote"`
}

func (req itemRequest) input() stock.ItemInput {
	in := stock.ItemInput{
		Name:         req.Name,
		ExpiryDate:   deref(req.ExpiryDate),
		BagID:        deref(req.BagID),
		LocationNote: deref(req.LocationNote),
	}
	if req.Quantity != nil {
		in.Quantity = *req.Quantity
	}
	return in
}

type bagRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Inventory.ListItems(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := make([]stock.ItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, it.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.deps.Inventory.CreateItem(r.Context(), identityFrom(r.Context()).UserID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item.ToResponse())
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "Missing id")
		return
	}
	item, err := s.deps.Inventory.UpdateItem(r.Context(), identityFrom(r.Context()).UserID, req.ID, req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item.ToResponse())
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing id")
		return
	}
	if err := s.deps.Inventory.DeleteItem(r.Context(), identityFrom(r.Context()).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleImportItems accepts either a bare JSON array of rows or an object
// with an items array.
func (s *Server) handleImportItems(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var rows []app.ImportRow
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	} else {
		var wrapped struct {
			Items []app.ImportRow `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		rows = wrapped.Items
	}

	summary, err := s.deps.Inventory.ImportItems(r.Context(), identityFrom(r.Context()).UserID, rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListBags(w http.ResponseWriter, r *http.Request) {
	bags, err := s.deps.Inventory.ListBags(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if bags == nil {
		bags = []*stock.Bag{}
	}
	writeJSON(w, http.StatusOK, bags)
}

func (s *Server) handleCreateBag(w http.ResponseWriter, r *http.Request) {
	var req bagRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Missing name")
		return
	}
	bag, err := s.deps.Inventory.CreateBag(r.Context(), identityFrom(r.Context()).UserID, req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bag)
}

func (s *Server) handleDeleteBag(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing bag id")
		return
	}
	if err := s.deps.Inventory.DeleteBag(r.Context(), identityFrom(r.Context()).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
