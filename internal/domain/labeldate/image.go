package labeldate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Image is a photographed label as uploaded by a client. Exactly one of Data
// and Base64 is set.
type Image struct {
	Data        []byte
	Base64      string // Raw base64 or a data URL
	Filename    string
	ContentType string
}

func (img Image) Empty() bool {
	return len(img.Data) == 0 && img.Base64 == ""
}

// Bytes returns the decoded image content.
func (img Image) Bytes() ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	payload := img.Base64
	if i := strings.Index(payload, ";base64,"); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return b, nil
}

// MediaType returns the declared content type, falling back to the data URL
// header and then to JPEG.
func (img Image) MediaType() string {
	if img.ContentType != "" {
		return img.ContentType
	}
	if strings.HasPrefix(img.Base64, "data:") {
		if end := strings.Index(img.Base64, ";"); end > len("data:") {
			return img.Base64[len("data:"):end]
		}
	}
	return "image/jpeg"
}

// Recognizer turns a label image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img Image) (string, error)
}

// Archive keeps a copy of scanned label images and returns where it is.
type Archive interface {
	Store(ctx context.Context, key string, img Image) (string, error)
}
