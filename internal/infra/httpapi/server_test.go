package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockpile_manager/internal/app"
	"stockpile_manager/internal/domain/family"
	"stockpile_manager/internal/domain/labeldate"
	"stockpile_manager/internal/domain/notification"
	"stockpile_manager/internal/domain/stock"
	idb "stockpile_manager/internal/infra/database"
	"stockpile_manager/internal/infra/scheduler"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret  = "jwt-secret"
	testCronSecret = "cron-secret"
)

type fakeInventory struct {
	items    []*stock.Item
	created  stock.ItemInput
	updated  string
	deleted  string
	imported []app.ImportRow
	err      error
}

func (f *fakeInventory) ListItems(_ context.Context, _ string) ([]*stock.Item, error) {
	return f.items, f.err
}

func (f *fakeInventory) CreateItem(_ context.Context, _ string, in stock.ItemInput) (*stock.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = in
	return &stock.Item{ID: "i1", FamilyID: "f1", Name: in.Name, Quantity: in.Quantity, ExpiryDate: stock.NullString(in.ExpiryDate)}, nil
}

func (f *fakeInventory) UpdateItem(_ context.Context, _ string, itemID string, in stock.ItemInput) (*stock.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = itemID
	return &stock.Item{ID: itemID, Name: in.Name, Quantity: 1}, nil
}

func (f *fakeInventory) DeleteItem(_ context.Context, _ string, itemID string) error {
	f.deleted = itemID
	return f.err
}

func (f *fakeInventory) ListBags(_ context.Context, _ string) ([]*stock.Bag, error) {
	return nil, f.err
}

func (f *fakeInventory) CreateBag(_ context.Context, _ string, name string) (*stock.Bag, error) {
	return &stock.Bag{ID: "b1", Name: name}, f.err
}

func (f *fakeInventory) DeleteBag(_ context.Context, _ string, _ string) error {
	return f.err
}

func (f *fakeInventory) ImportItems(_ context.Context, _ string, rows []app.ImportRow) (*app.ImportSummary, error) {
	f.imported = rows
	if _, err := app.ValidateImport(rows); err != nil {
		return nil, err
	}
	return &app.ImportSummary{Success: true, Imported: len(rows), Items: []stock.ItemResponse{}, NewBags: []string{}}, nil
}

type fakeFamilies struct {
	lastIdentity app.Identity
	settings     app.NotificationSettings
	err          error
}

func (f *fakeFamilies) Profile(_ context.Context, id app.Identity) (*app.Profile, error) {
	f.lastIdentity = id
	return &app.Profile{ID: id.UserID}, f.err
}

func (f *fakeFamilies) CreateFamily(_ context.Context, id app.Identity, name string) (*family.Family, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &family.Family{ID: "f1", Name: name, InviteCode: "ABC123"}, nil
}

func (f *fakeFamilies) JoinFamily(_ context.Context, _ app.Identity, code string) (*family.Family, error) {
	if code != "ABC123" {
		return nil, idb.ErrFamilyNotFound
	}
	return &family.Family{ID: "f1", Name: "Home", InviteCode: code, GroupID: sql.NullString{String: "Cgroup", Valid: true}}, nil
}

func (f *fakeFamilies) GetFamily(_ context.Context, _ string) (*app.FamilyView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &app.FamilyView{ID: "f1", Name: "Home", Members: []family.Member{}}, nil
}

func (f *fakeFamilies) UpdateNotificationSettings(_ context.Context, _ string, in app.NotificationSettings) error {
	f.settings = in
	return f.err
}

type fakeScanner struct {
	got labeldate.Image
	err error
}

func (f *fakeScanner) Scan(_ context.Context, _ string, img labeldate.Image) (*app.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = img
	d := "2025-12-22"
	return &app.ScanResult{Text: "2025.12.22", Dates: []string{d}, SuggestedDate: &d}, nil
}

type fakeRunner struct {
	res   *notification.BatchResult
	err   error
	calls int
}

func (f *fakeRunner) Run(context.Context) (*notification.BatchResult, error) {
	f.calls++
	return f.res, f.err
}

type testEnv struct {
	inventory *fakeInventory
	families  *fakeFamilies
	scanner   *fakeScanner
	runner    *fakeRunner
	handler   http.Handler
}

func newTestEnv(t *testing.T, opts ...func(*Deps, *Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		inventory: &fakeInventory{},
		families:  &fakeFamilies{},
		scanner:   &fakeScanner{},
		runner:    &fakeRunner{res: &notification.BatchResult{Today: "2025-01-02"}},
	}
	deps := Deps{
		Inventory: env.inventory,
		Families:  env.families,
		Labels:    env.scanner,
		Notifier:  env.runner,
	}
	o := Options{JWTSecret: testJWTSecret, CronSecret: testCronSecret, AllowedOrigins: []string{"*"}}
	for _, fn := range opts {
		fn(&deps, &o)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	env.handler = NewServer(deps, o, log).Router()
	return env
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func (env *testEnv) do(t *testing.T, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) authed(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	tok := token(t, jwt.MapClaims{"sub": "user-1", "name": "Hanako", "email": "h@example.com"})
	return env.do(t, method, target, strings.NewReader(body), map[string]string{
		"Authorization": "Bearer " + tok,
		"Content-Type":  "application/json",
	})
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/user", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"}).SignedString([]byte("other"))
		require.NoError(t, err)
		rec := env.do(t, http.MethodGet, "/api/user", nil, map[string]string{"Authorization": "Bearer " + bad})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok := token(t, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})
		rec := env.do(t, http.MethodGet, "/api/user", nil, map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := token(t, jwt.MapClaims{"name": "x"})
		rec := env.do(t, http.MethodGet, "/api/user", nil, map[string]string{"Authorization": "Bearer " + tok})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token carries identity", func(t *testing.T) {
		rec := env.authed(t, http.MethodGet, "/api/user", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, app.Identity{UserID: "user-1", DisplayName: "Hanako", Email: "h@example.com"}, env.families.lastIdentity)
	})
}

func TestItemsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list returns array", func(t *testing.T) {
		env.inventory.items = []*stock.Item{{ID: "i1", Name: "水", Quantity: 2}}
		rec := env.authed(t, http.MethodGet, "/api/items", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var got []stock.ItemResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "水", got[0].Name)
	})

	t.Run("create maps body", func(t *testing.T) {
		rec := env.authed(t, http.MethodPost, "/api/items", `{"name":"保存水","quantity":3,"expiryDate":"2025-12-22","bagId":"b1"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, stock.ItemInput{Name: "保存水", Quantity: 3, ExpiryDate: "2025-12-22", BagID: "b1"}, env.inventory.created)
	})

	t.Run("update requires id", func(t *testing.T) {
		rec := env.authed(t, http.MethodPut, "/api/items", `{"name":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update uses body id", func(t *testing.T) {
		rec := env.authed(t, http.MethodPut, "/api/items", `{"id":"i9","name":"x"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "i9", env.inventory.updated)
	})

	t.Run("delete requires id", func(t *testing.T) {
		rec := env.authed(t, http.MethodDelete, "/api/items", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete uses query id", func(t *testing.T) {
		rec := env.authed(t, http.MethodDelete, "/api/items?id=i5", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "i5", env.inventory.deleted)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := env.authed(t, http.MethodPost, "/api/items", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{app.ErrNoFamily, http.StatusBadRequest},
		{fmt.Errorf("%w: name is required", app.ErrInvalidInput), http.StatusBadRequest},
		{idb.ErrItemNotFound, http.StatusNotFound},
		{idb.ErrBagNotFound, http.StatusNotFound},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			env := newTestEnv(t)
			env.inventory.err = tt.err

			rec := env.authed(t, http.MethodGet, "/api/items", "")
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "connection refused")
			}
		})
	}
}

func TestImportAcceptsArrayOrWrappedObject(t *testing.T) {
	env := newTestEnv(t)

	rec := env.authed(t, http.MethodPost, "/api/items/import", `[{"name":"水","expiryDate":"2025-12-22"}]`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.inventory.imported, 1)

	rec = env.authed(t, http.MethodPost, "/api/items/import", `{"items":[{"name":"a","expiryDate":"2025-01-01"},{"name":"b","expiryDate":"2025-01-02"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.inventory.imported, 2)
}

func TestImportRejectsInvalidRows(t *testing.T) {
	env := newTestEnv(t)

	rec := env.authed(t, http.MethodPost, "/api/items/import", `[{"name":"水","expiryDate":"2025-02-30"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "item 1")

	rec = env.authed(t, http.MethodPost, "/api/items/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFamilyActions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.authed(t, http.MethodPost, "/api/family", `{"action":"create","name":"Home"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inviteCode":"ABC123"`)

	rec = env.authed(t, http.MethodPost, "/api/family", `{"action":"join","inviteCode":"ABC123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notifyGroupId":"Cgroup"`)

	rec = env.authed(t, http.MethodPost, "/api/family", `{"action":"join","inviteCode":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.authed(t, http.MethodPost, "/api/family", `{"action":"leave"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateNotifications(t *testing.T) {
	env := newTestEnv(t)

	rec := env.authed(t, http.MethodPut, "/api/family/notifications", `{"notifyGroupId":""}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.families.settings.UserTarget)
	require.NotNil(t, env.families.settings.GroupTarget)
	assert.Equal(t, "", *env.families.settings.GroupTarget)
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "label.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestScanLabel(t *testing.T) {
	tok := token(t, jwt.MapClaims{"sub": "user-1"})

	t.Run("file upload", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := multipartBody(t, nil, []byte("jpeg"))

		rec := env.do(t, http.MethodPost, "/api/ocr", body, map[string]string{"Authorization": "Bearer " + tok, "Content-Type": ct})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []byte("jpeg"), env.scanner.got.Data)
		assert.Equal(t, "label.jpg", env.scanner.got.Filename)
		assert.Contains(t, rec.Body.String(), `"suggestedDate":"2025-12-22"`)
	})

	t.Run("base64 field", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := multipartBody(t, map[string]string{"base64": "data:image/png;base64,QUJD"}, nil)

		rec := env.do(t, http.MethodPost, "/api/ocr", body, map[string]string{"Authorization": "Bearer " + tok, "Content-Type": ct})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "data:image/png;base64,QUJD", env.scanner.got.Base64)
	})

	t.Run("no image", func(t *testing.T) {
		env := newTestEnv(t)
		body, ct := multipartBody(t, map[string]string{"other": "x"}, nil)

		rec := env.do(t, http.MethodPost, "/api/ocr", body, map[string]string{"Authorization": "Bearer " + tok, "Content-Type": ct})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.scanner.err = fmt.Errorf("%w: timeout", app.ErrRecognition)
		body, ct := multipartBody(t, nil, []byte("jpeg"))

		rec := env.do(t, http.MethodPost, "/api/ocr", body, map[string]string{"Authorization": "Bearer " + tok, "Content-Type": ct})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps, _ *Options) { d.Labels = nil })
		body, ct := multipartBody(t, nil, []byte("jpeg"))

		rec := env.do(t, http.MethodPost, "/api/ocr", body, map[string]string{"Authorization": "Bearer " + tok, "Content-Type": ct})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCronNotify(t *testing.T) {
	bearer := map[string]string{"Authorization": "Bearer " + testCronSecret}

	t.Run("missing secret", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodGet, "/api/cron/notify", nil, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, env.runner.calls)
	})

	t.Run("wrong secret", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/api/cron/notify", nil, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("runs batch", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.res = &notification.BatchResult{
			Today:      "2025-01-02",
			Candidates: 2,
			Results:    []notification.FamilyResult{{FamilyID: "f1", Delivered: true, ItemCount: 2}},
		}

		rec := env.do(t, http.MethodGet, "/api/cron/notify", nil, bearer)

		require.Equal(t, http.StatusOK, rec.Code)
		var got notifyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Candidates)
		assert.Len(t, got.Results, 1)
		assert.Equal(t, []string{}, got.Skipped)
	})

	t.Run("exempt outside production", func(t *testing.T) {
		env := newTestEnv(t, func(_ *Deps, o *Options) { o.CronAuthExempt = true })
		rec := env.do(t, http.MethodPost, "/api/cron/notify", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("run in progress", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.res, env.runner.err = nil, scheduler.ErrRunInProgress

		rec := env.do(t, http.MethodGet, "/api/cron/notify", nil, bearer)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("failure keeps partial results", func(t *testing.T) {
		env := newTestEnv(t)
		env.runner.res = &notification.BatchResult{
			Results: []notification.FamilyResult{{FamilyID: "f1", Delivered: true, Error: "flags"}},
		}
		env.runner.err = app.ErrFlagUpdate

		rec := env.do(t, http.MethodGet, "/api/cron/notify", nil, bearer)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"familyId":"f1"`)
	})
}

func TestLineWebhookMountedWhenConfigured(t *testing.T) {
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	env := newTestEnv(t, func(d *Deps, _ *Options) { d.LineWebhook = hook })

	rec := env.do(t, http.MethodPost, "/api/line/webhook", nil, nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	env = newTestEnv(t)
	rec = env.do(t, http.MethodPost, "/api/line/webhook", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
