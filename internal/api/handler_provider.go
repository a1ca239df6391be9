package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/vmpay-authorizer/internal/services/authorizer"
)

// Service is what the handlers need from the authorizer.
type Service interface {
	Authorize(ctx context.Context, req authorizer.AuthorizeRequest) authorizer.AuthorizeOutcome
	Rollback(ctx context.Context, orderID string) authorizer.RollbackOutcome
	Balance(ctx context.Context, tagNumber, machineNumber string) (decimal.Decimal, error)
	Ready(ctx context.Context) error
}

// HandlerProvider wraps a Service and exposes HTTP handlers.
type HandlerProvider struct {
	svc Service
}

// NewHandler returns a new Handler provider.
func NewHandler(svc Service) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isJSON(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

// --- Handlers ---

// Health handles GET /health and GET /healthz.
func (h *HandlerProvider) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz by probing the SOAP service.
func (h *HandlerProvider) Ready(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Ready(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "readiness probe failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AuthorizeHandler handles POST /authorizations.
func (h *HandlerProvider) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	if !isJSON(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	var req authorizeRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	in, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := h.svc.Authorize(r.Context(), in)

	writeJSON(w, http.StatusOK, authorizeResponse{
		Authorized:    out.Authorized,
		ErrorCode:     string(out.ErrorCode),
		TagHolderName: out.TagHolderName,
	})
}

// RollbackHandler handles POST /authorizations/{orderUUID}/rollback.
func (h *HandlerProvider) RollbackHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := normalizeOrderID(chi.URLParam(r, "orderUUID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order_uuid in path")
		return
	}

	out := h.svc.Rollback(r.Context(), orderID)

	writeJSON(w, http.StatusOK, rollbackResponse{
		RolledBack: out.RolledBack,
		ErrorCode:  string(out.ErrorCode),
	})
}

// BalanceHandler handles GET /tags/{tagNumber}/balance?machine_asset_number=.
func (h *HandlerProvider) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(chi.URLParam(r, "tagNumber"))
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag_number is required")
		return
	}

	machine := strings.TrimSpace(r.URL.Query().Get("machine_asset_number"))
	if machine == "" {
		writeError(w, http.StatusBadRequest, "machine_asset_number is required")
		return
	}

	bal, err := h.svc.Balance(r.Context(), tag, machine)
	if err != nil {
		if errors.Is(err, authorizer.ErrTagNotFound) {
			writeError(w, http.StatusNotFound, "tag not found or inactive")
			return
		}

		slog.ErrorContext(r.Context(), "balance lookup failed", "tag_number", tag, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to query balance from the vending service")

		return
	}

	writeJSON(w, http.StatusOK, map[string]json.Number{
		"current_balance": json.Number(bal.String()),
	})
}
