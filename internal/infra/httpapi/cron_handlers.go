package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"stockpile_manager/internal/domain/notification"
	"stockpile_manager/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

type notifyResponse struct {
	Today      string                      `json:"today,omitempty"`
	Candidates int                         `json:"candidates"`
	Results    []notification.FamilyResult `json:"results"`
	Skipped    []string                    `json:"skipped"`
	Unresolved []string                    `json:"unresolved,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

func newNotifyResponse(res *notification.BatchResult) notifyResponse {
	resp := notifyResponse{Results: []notification.FamilyResult{}, Skipped: []string{}}
	if res == nil {
		return resp
	}
	resp.Today = res.Today
	resp.Candidates = res.Candidates
	resp.Unresolved = res.Unresolved
	if res.Results != nil {
		resp.Results = res.Results
	}
	if res.Skipped != nil {
		resp.Skipped = res.Skipped
	}
	return resp
}

// handleCronNotify runs one expiry notification batch for an external
// scheduler.
func (s *Server) handleCronNotify(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		s.log.WithField("remote_addr", r.RemoteAddr).Warn("Unauthorized cron trigger")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := s.deps.Notifier.Run(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "Notification run already in progress")
			return
		}
		s.log.WithError(err).Error("Expiry notification run failed")
		resp := newNotifyResponse(res)
		resp.Error = "Internal Server Error"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	s.log.WithFields(logrus.Fields{
		"candidates": res.Candidates,
		"families":   len(res.Results),
		"failed":     res.Failed(),
	}).Info("Expiry notification run triggered over HTTP")
	writeJSON(w, http.StatusOK, newNotifyResponse(res))
}

func (s *Server) cronAuthorized(r *http.Request) bool {
	if s.opts.CronAuthExempt {
		return true
	}
	if s.opts.CronSecret == "" {
		return false
	}
	want := "Bearer " + s.opts.CronSecret
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
