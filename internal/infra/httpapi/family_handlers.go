package httpapi

import (
	"net/http"
	"time"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/family"
)

type familyRequest struct {
	Action     string `json:"action"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode"`
}

type familyResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	InviteCode    string  `json:"inviteCode"`
	NotifyGroupID *string `json:"notifyGroupId"`
	CreatedAt     string  `json:"createdAt"`
}

func toFamilyResponse(f *family.Family) familyResponse {
	resp := familyResponse{
		ID:         f.ID,
		Name:       f.Name,
		InviteCode: f.InviteCode,
		CreatedAt:  f.CreatedAt.Format(time.RFC3339),
	}
	if f.GroupID.Valid && f.GroupID.String != "" {
		g := f.GroupID.String
		resp.NotifyGroupID = &g
	}
	return resp
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Families.Profile(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetFamily(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Families.GetFamily(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleFamilyAction creates a family or joins one by invite code, depending
// on the action field.
func (s *Server) handleFamilyAction(w http.ResponseWriter, r *http.Request) {
	var req familyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	id := identityFrom(r.Context())
	var (
		f   *family.Family
		err error
	)
	switch req.Action {
	case "create":
		f, err = s.deps.Families.CreateFamily(r.Context(), id, req.Name)
	case "join":
		f, err = s.deps.Families.JoinFamily(r.Context(), id, req.InviteCode)
	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFamilyResponse(f))
}

func (s *Server) handleUpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req app.NotificationSettings
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Families.UpdateNotificationSettings(r.Context(), identityFrom(r.Context()).UserID, req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
