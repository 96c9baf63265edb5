package httpapi

import (
	"errors"
	"io"
	"net/http"

	"stockpile_manager/internal/domain/labeldate"
)

const maxLabelUpload = 10 << 20

// handleScanLabel accepts a multipart form with either a file part or a
// base64 field.
func (s *Server) handleScanLabel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Labels == nil {
		writeError(w, http.StatusServiceUnavailable, "OCR is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLabelUpload)
	if err := r.ParseMultipartForm(maxLabelUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	img, err := labelImage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if img.Empty() {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}

	res, err := s.deps.Labels.Scan(r.Context(), identityFrom(r.Context()).UserID, img)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func labelImage(r *http.Request) (labeldate.Image, error) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return labeldate.Image{Base64: r.FormValue("base64")}, nil
		}
		return labeldate.Image{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return labeldate.Image{}, err
	}
	return labeldate.Image{
		Data:        data,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
	}, nil
}
