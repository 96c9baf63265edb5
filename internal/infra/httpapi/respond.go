package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"stockpile_manager/internal/app"
	idb "stockpile_manager/internal/infra/database"
	"stockpile_manager/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrNoFamily), errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, idb.ErrItemNotFound),
		errors.Is(err, idb.ErrBagNotFound),
		errors.Is(err, idb.ErrFamilyNotFound),
		errors.Is(err, idb.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, app.ErrRecognition):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response for err. Internal failures are logged and
// hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		writeError(w, status, "Internal Server Error")
		return
	}
	writeError(w, status, clientMessage(err))
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNoFamily):
		return "No family"
	case errors.Is(err, idb.ErrItemNotFound):
		return "Item not found"
	case errors.Is(err, idb.ErrBagNotFound):
		return "Bag not found"
	case errors.Is(err, idb.ErrFamilyNotFound):
		return "Family not found"
	case errors.Is(err, idb.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, app.ErrRecognition):
		return "OCR API error"
	default:
		return err.Error()
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", app.ErrInvalidInput, err)
	}
	return nil
}
