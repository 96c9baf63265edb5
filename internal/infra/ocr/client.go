package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"stockpile_manager/internal/domain/labeldate"

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
)

// ErrProvider is returned when OCR.space reports a processing failure.
var ErrProvider = errors.New("ocr provider error")

type parseResponse struct {
	ParsedResults []struct {
		ParsedText   string `json:"ParsedText"`
		ErrorMessage string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// errorText flattens ErrorMessage, which the API sends either as a string or
// as a list of strings.
func (r parseResponse) errorText() string {
	if len(r.ErrorMessage) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(r.ErrorMessage, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var s string
	if err := json.Unmarshal(r.ErrorMessage, &s); err == nil {
		return s
	}
	return string(r.ErrorMessage)
}

// Client recognizes Japanese label text with the OCR.space parse API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	log        *logrus.Entry
}

func NewClient(endpoint, apiKey string, log *logrus.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		delay:      time.Second,
		log:        log.WithField("component", "ocr"),
	}
}

// Recognize uploads the image and returns the text of all parsed results
// joined by newlines. Transport failures and 5xx answers are retried; a
// processing error reported by the provider is not.
func (c *Client) Recognize(ctx context.Context, img labeldate.Image) (string, error) {
	body, contentType, err := c.buildForm(img)
	if err != nil {
		return "", err
	}

	var text string
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("%w: HTTP %d", ErrProvider, resp.StatusCode))
			}

			var parsed parseResponse
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
			}
			if parsed.IsErroredOnProcessing {
				msg := parsed.errorText()
				if msg == "" {
					msg = "processing failed"
				}
				return retry.Unrecoverable(fmt.Errorf("%w: %s", ErrProvider, msg))
			}

			parts := make([]string, 0, len(parsed.ParsedResults))
			for _, r := range parsed.ParsedResults {
				parts = append(parts, r.ParsedText)
			}
			text = strings.Join(parts, "\n")
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithError(err).WithField("attempt", n+1).Warn("Retrying OCR request")
		}),
	)
	if err != nil {
		return "", fmt.Errorf("ocr.space: %w", err)
	}
	return text, nil
}

func (c *Client) buildForm(img labeldate.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"apikey", c.apiKey},
		{"language", "jpn"},
		{"isOverlayRequired", "false"},
		{"detectOrientation", "true"},
		{"scale", "true"},
		{"OCREngine", "2"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}

	if len(img.Data) > 0 {
		name := img.Filename
		if name == "" {
			name = "label.jpg"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		h.Set("Content-Type", img.MediaType())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	} else {
		if err := w.WriteField("base64Image", dataURL(img)); err != nil {
			return nil, "", fmt.Errorf("write base64 image: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// dataURL returns the image as the data URL form OCR.space expects for
// base64Image.
func dataURL(img labeldate.Image) string {
	if strings.HasPrefix(img.Base64, "data:") {
		return img.Base64
	}
	if img.Base64 != "" {
		return "data:" + img.MediaType() + ";base64," + img.Base64
	}
	return "data:" + img.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
