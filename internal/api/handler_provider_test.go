package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/vmpay-authorizer/internal/errcode"
	"github.com/fastprodman/vmpay-authorizer/internal/infra/metrics"
	"github.com/fastprodman/vmpay-authorizer/internal/services/authorizer"
)

const testKey = "test-key"

type fakeService struct {
	authorize authorizer.AuthorizeOutcome
	gotReq    authorizer.AuthorizeRequest

	rollback   authorizer.RollbackOutcome
	gotOrderID string

	balance    decimal.Decimal
	balanceErr error

	readyErr error
}

func (f *fakeService) Authorize(_ context.Context, req authorizer.AuthorizeRequest) authorizer.AuthorizeOutcome {
	f.gotReq = req
	return f.authorize
}

func (f *fakeService) Rollback(_ context.Context, orderID string) authorizer.RollbackOutcome {
	f.gotOrderID = orderID
	return f.rollback
}

func (f *fakeService) Balance(context.Context, string, string) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeService) Ready(context.Context) error { return f.readyErr }

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func authed(extra map[string]string) map[string]string {
	h := map[string]string{APIKeyHeader: testKey}
	for k, v := range extra {
		h[k] = v
	}

	return h
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

const validAuthorize = `{
	"order_uuid": "6F1C1B7E-0D5C-4A8E-9A55-3E3F6C1C9B01",
	"occurred_at": "2025-05-01T10:00:00-03:00",
	"tag_number": "TAG-1",
	"machine_asset_number": "M-1",
	"products": [{"upc_code": "789", "quantity": 2, "unit_value": "3.50"}]
}`

func TestAPIKeyGate(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakeService{}, testKey, nil)
	path := BasePath + "/tags/T/balance?machine_asset_number=M"

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{APIKeyHeader: "nope"}, http.StatusForbidden},
		{"right", authed(nil), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, router, http.MethodGet, path, "", tt.headers)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthorizeHandler(t *testing.T) {
	t.Parallel()

	svc := &fakeService{authorize: authorizer.AuthorizeOutcome{Authorized: true, TagHolderName: "Ana"}}
	router := NewRouter(svc, testKey, nil)

	rec := do(t, router, http.MethodPost, BasePath+"/authorizations", validAuthorize,
		authed(map[string]string{"Content-Type": "application/json; charset=utf-8"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.JSONEq(t, `{"authorized":true,"tag_holder_name":"Ana"}`, rec.Body.String())

	assert.Equal(t, "6f1c1b7e-0d5c-4a8e-9a55-3e3f6c1c9b01", svc.gotReq.OrderID)
	assert.Equal(t, "TAG-1", svc.gotReq.TagNumber)
	assert.Equal(t, "M-1", svc.gotReq.MachineNumber)
	require.Len(t, svc.gotReq.Products, 1)
	assert.Equal(t, 2, svc.gotReq.Products[0].Quantity)
	assert.Equal(t, "3.5", svc.gotReq.Products[0].UnitValue.String())
	assert.False(t, svc.gotReq.OccurredAt.IsZero())
}

func TestAuthorizeHandlerDecline(t *testing.T) {
	t.Parallel()

	svc := &fakeService{authorize: authorizer.AuthorizeOutcome{ErrorCode: errcode.InvalidTag}}

	rec := do(t, NewRouter(svc, testKey, nil), http.MethodPost, BasePath+"/authorizations", validAuthorize,
		authed(map[string]string{"Content-Type": "application/json"}))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{"authorized":false,"error_code":"INVALID_TAG"}`, rec.Body.String())
}

func TestAuthorizeHandlerRejects(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakeService{}, testKey, nil)
	jsonCT := authed(map[string]string{"Content-Type": "application/json"})

	tests := []struct {
		name    string
		body    string
		headers map[string]string
		want    int
		wantMsg string
	}{
		{"wrong content type", validAuthorize, authed(map[string]string{"Content-Type": "text/plain"}), http.StatusUnsupportedMediaType, ""},
		{"empty body", "", jsonCT, http.StatusBadRequest, "empty body"},
		{"broken json", "{", jsonCT, http.StatusBadRequest, "invalid JSON"},
		{"missing products", `{"order_uuid":"6f1c1b7e-0d5c-4a8e-9a55-3e3f6c1c9b01","occurred_at":"2025-05-01T10:00:00Z","tag_number":"T","machine_asset_number":"M"}`, jsonCT, http.StatusBadRequest, "field `products` is required"},
		{"bad uuid", strings.Replace(validAuthorize, "6F1C1B7E-0D5C-4A8E-9A55-3E3F6C1C9B01", "order-1", 1), jsonCT, http.StatusBadRequest, "field `order_uuid` should be a UUID"},
		{"bad date", strings.Replace(validAuthorize, "2025-05-01T10:00:00-03:00", "yesterday", 1), jsonCT, http.StatusBadRequest, "field `occurred_at`"},
		{"negative quantity", strings.Replace(validAuthorize, `"quantity": 2`, `"quantity": -1`, 1), jsonCT, http.StatusBadRequest, "field `products[0].quantity` must be at least 0"},
		{"missing quantity", strings.Replace(validAuthorize, `"quantity": 2,`, ``, 1), jsonCT, http.StatusBadRequest, "field `products[0].quantity` is required"},
		{"bad unit value", strings.Replace(validAuthorize, `"3.50"`, `"abc"`, 1), jsonCT, http.StatusBadRequest, "unit_value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, router, http.MethodPost, BasePath+"/authorizations", tt.body, tt.headers)
			assert.Equal(t, tt.want, rec.Code)

			if tt.wantMsg != "" {
				assert.Contains(t, decodeBody(t, rec)["error"], tt.wantMsg)
			}
		})
	}
}

func TestRollbackHandler(t *testing.T) {
	t.Parallel()

	svc := &fakeService{rollback: authorizer.RollbackOutcome{ErrorCode: errcode.PreviouslyRolledBack}}
	router := NewRouter(svc, testKey, nil)

	rec := do(t, router, http.MethodPost, BasePath+"/authorizations/6F1C1B7E-0D5C-4A8E-9A55-3E3F6C1C9B01/rollback", "", authed(nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rolled_back":false,"error_code":"PREVIOUSLY_ROLLED_BACK"}`, rec.Body.String())
	assert.Equal(t, "6f1c1b7e-0d5c-4a8e-9a55-3e3f6c1c9b01", svc.gotOrderID)

	rec = do(t, router, http.MethodPost, BasePath+"/authorizations/not-a-uuid/rollback", "", authed(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBalanceHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		svc      *fakeService
		query    string
		want     int
		wantBody string
	}{
		{
			name:     "ok",
			svc:      &fakeService{balance: decimal.RequireFromString("12.30")},
			query:    "?machine_asset_number=M",
			want:     http.StatusOK,
			wantBody: `{"current_balance":12.3}`,
		},
		{
			name:     "zero",
			svc:      &fakeService{balance: decimal.Zero},
			query:    "?machine_asset_number=M",
			want:     http.StatusOK,
			wantBody: `{"current_balance":0}`,
		},
		{
			name:  "missing machine",
			svc:   &fakeService{},
			query: "",
			want:  http.StatusBadRequest,
		},
		{
			name:  "tag not found",
			svc:   &fakeService{balanceErr: &authorizer.BalanceError{Code: errcode.InvalidTag, Message: "InvalidTag"}},
			query: "?machine_asset_number=M",
			want:  http.StatusNotFound,
		},
		{
			name:     "other failure",
			svc:      &fakeService{balanceErr: &authorizer.BalanceError{Code: errcode.InternalError, Message: "HTTP 502 Bad Gateway"}},
			query:    "?machine_asset_number=M",
			want:     http.StatusInternalServerError,
			wantBody: `{"error":"failed to query balance from the vending service"}`,
		},
		{
			name:     "unexpected error",
			svc:      &fakeService{balanceErr: errors.New("boom")},
			query:    "?machine_asset_number=M",
			want:     http.StatusInternalServerError,
			wantBody: `{"error":"failed to query balance from the vending service"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, NewRouter(tt.svc, testKey, nil), http.MethodGet, BasePath+"/tags/TAG-1/balance"+tt.query, "", authed(nil))
			assert.Equal(t, tt.want, rec.Code)

			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}

			if tt.want == http.StatusNotFound {
				assert.NotContains(t, rec.Body.String(), "current_balance")
			}
		})
	}
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakeService{}, testKey, metrics.New())

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := do(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String(), path)
	}

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	down := NewRouter(&fakeService{readyErr: errors.New("down")}, testKey, nil)
	rec = do(t, down, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, down, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovererAndRequestID(t *testing.T) {
	t.Parallel()

	router := NewRouter(&panicService{}, testKey, nil)

	rec := do(t, router, http.MethodGet, BasePath+"/tags/T/balance?machine_asset_number=M", "", authed(nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicService struct{ fakeService }

func (p *panicService) Balance(context.Context, string, string) (decimal.Decimal, error) {
	panic("boom")
}
