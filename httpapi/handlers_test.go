package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/detector"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/ingest"
	"github.com/atlasdevji/prowhey-middleware/sync"
)

type fakeSync struct {
	lastCaller entity.CallerContext
	resp       sync.Response
	err        error
}

func (f *fakeSync) Process(ctx context.Context, req sync.Request) (sync.Response, error) {
	f.lastCaller = req.Caller
	return f.resp, f.err
}
func (f *fakeSync) ProcessFastSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error) {
	f.lastCaller = caller
	return f.resp, f.err
}
func (f *fakeSync) ProcessMediumSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error) {
	f.lastCaller = caller
	return f.resp, f.err
}
func (f *fakeSync) ProcessSlowSync(ctx context.Context, lastSync entity.Cursor, caller entity.CallerContext, limit int64) (sync.Response, error) {
	f.lastCaller = caller
	return f.resp, f.err
}

type fakeWebhook struct {
	results []ingest.WriteResult
	err     error
}

func (f *fakeWebhook) HandleWebhook(ctx context.Context, t entity.Type, entityID, idempotencyKey string) ([]ingest.WriteResult, error) {
	return f.results, f.err
}

type fakeHealth struct{}

func (fakeHealth) CheckStore(ctx context.Context) error { return nil }
func (fakeHealth) CheckERP(ctx context.Context) error   { return nil }
func (fakeHealth) StreamStatus(ctx context.Context, t entity.Type) (StreamStatus, error) {
	return StreamStatus{Length: 0}, nil
}

func newTestServer(s *fakeSync, w *fakeWebhook) *echo.Echo {
	return NewServer(Deps{
		Sync:    s,
		Webhook: w,
		Health:  fakeHealth{},
		Config:  config.ServerConfig{},
	})
}

func TestSyncCheckHandlerWiresUserDeviceIDIntoCallerContext(t *testing.T) {
	s := &fakeSync{resp: sync.Response{InSync: true}}
	e := newTestServer(s, &fakeWebhook{})

	body, _ := json.Marshal(map[string]any{
		"lastSync":     map[string]string{},
		"userId":       "u1",
		"userDeviceId": "dev-42",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/sync/check", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-42", s.lastCaller.UserDeviceID)
	assert.Equal(t, "u1", s.lastCaller.UserID)
}

func TestSyncCheckHandlerReturnsUpdatesWithIdempotencyKey(t *testing.T) {
	s := &fakeSync{resp: sync.Response{
		InSync: false,
		Updates: []detector.Update{
			{Type: entity.TypeProduct, EntityID: "p1", Kind: detector.KindUpsert, Version: 2},
		},
		LastIDs: entity.Cursor{entity.TypeProduct: "5-0"},
	}}
	e := newTestServer(s, &fakeWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/check", bytes.NewReader([]byte(`{"lastSync":{}}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp syncCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.InSync)
	require.Len(t, resp.Updates, 1)
	assert.Equal(t, "p1", resp.Updates[0].EntityID)
}

func TestWebhookHandlerRejectsUnknownEntityType(t *testing.T) {
	e := newTestServer(&fakeSync{}, &fakeWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", bytes.NewReader([]byte(`{"entity_type":"not-a-type"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookHandlerReturnsWrittenCount(t *testing.T) {
	w := &fakeWebhook{results: []ingest.WriteResult{{Wrote: true}, {Wrote: false}}}
	e := newTestServer(&fakeSync{}, w)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/erpnext", bytes.NewReader([]byte(`{"entity_type":"product"}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Written)
}

func TestHealthHandlerAlwaysReturns200(t *testing.T) {
	e := newTestServer(&fakeSync{}, &fakeWebhook{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeviceIDMiddlewareGeneratesIDWhenAbsent(t *testing.T) {
	e := newTestServer(&fakeSync{resp: sync.Response{InSync: true}}, &fakeWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/api/sync/check", bytes.NewReader([]byte(`{"lastSync":{}}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(headerDeviceID))
}
