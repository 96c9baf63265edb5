package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"stockpile_manager/internal/domain/labeldate"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRecognition wraps failures of the OCR provider.
var ErrRecognition = errors.New("label recognition failed")

// ScanResult is the text read from a label and the dates found in it.
type ScanResult struct {
	Text          string   `json:"text"`
	Dates         []string `json:"dates"`
	SuggestedDate *string  `json:"suggestedDate"`
	ImageURL      string   `json:"imageUrl,omitempty"`
}

type LabelService struct {
	recognizer labeldate.Recognizer
	extractor  labeldate.Extractor
	archive    labeldate.Archive // Optional
	log        *logrus.Entry
}

func NewLabelService(
	recognizer labeldate.Recognizer,
	extractor labeldate.Extractor,
	archive labeldate.Archive,
	log *logrus.Logger,
) *LabelService {
	return &LabelService{
		recognizer: recognizer,
		extractor:  extractor,
		archive:    archive,
		log:        log.WithField("component", "label_service"),
	}
}

// Scan recognizes the label text and suggests the earliest date found. When
// an archive is configured the image is stored as well; an archive failure
// never fails the scan.
func (s *LabelService) Scan(ctx context.Context, userID string, img labeldate.Image) (*ScanResult, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: no image provided", ErrInvalidInput)
	}

	text, err := s.recognizer.Recognize(ctx, img)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("OCR request failed")
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	extracted := s.extractor.Extract(text)
	res := &ScanResult{
		Text:          text,
		Dates:         extracted.Dates,
		SuggestedDate: extracted.Suggested,
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "dates": len(res.Dates)}).Debug("Label scanned")

	if s.archive != nil {
		url, err := s.archive.Store(ctx, archiveKey(userID, img), img)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("Failed to archive label image")
		} else {
			res.ImageURL = url
		}
	}
	return res, nil
}

func archiveKey(userID string, img labeldate.Image) string {
	ext := strings.ToLower(path.Ext(img.Filename))
	if ext == "" {
		switch img.MediaType() {
		case "image/png":
			ext = ".png"
		case "image/webp":
			ext = ".webp"
		default:
			ext = ".jpg"
		}
	}
	return path.Join("labels", userID, uuid.NewString()+ext)
}
