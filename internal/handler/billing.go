package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/middleware"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/receipt"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// BillingServicer defines the service methods needed by billing handlers.
// Satisfied by *service.FloorService; narrow interface for testability.
type BillingServicer interface {
	MarkPaid(ctx context.Context, scope service.Scope, id string) ([]order.Order, error)
	Clear(ctx context.Context, scope service.Scope, id string) (service.ClearResult, error)
	Statement(ctx context.Context, scope service.Scope, id string) (service.Statement, error)
	History(ctx context.Context, limit int) ([]order.Order, error)
	Vat(ctx context.Context) (billing.VatConfig, error)
	SetVat(ctx context.Context, enabled bool, rate decimal.Decimal) (billing.VatConfig, error)
}

// BillingHandler handles payment, clearing and VAT endpoints.
type BillingHandler struct {
	svc   BillingServicer
	venue string
	log   *zap.Logger
}

// NewBillingHandler creates a new BillingHandler. venue heads printed statements.
func NewBillingHandler(svc BillingServicer, venue string, log *zap.Logger) *BillingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingHandler{svc: svc, venue: venue, log: log}
}

// RegisterRoutes registers billing endpoints on the given Chi router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleAdmin))
		r.Route("/billing/{scope}/{id}", func(r chi.Router) {
			r.Post("/pay", h.Pay)
			r.Post("/clear", h.Clear)
			r.Get("/statement", h.Statement)
			r.Get("/statement.pdf", h.StatementPDF)
		})
		r.Get("/history", h.History)
		r.Get("/settings/vat", h.GetVat)
		r.Put("/settings/vat", h.PutVat)
	})
}

// --- Request / Response types ---

type payResponse struct {
	Paid []order.Order `json:"paid"`
}

type vatRequest struct {
	Enabled bool            `json:"enabled"`
	Rate    decimal.Decimal `json:"rate"`
}

// --- Handlers ---

// Pay handles POST /billing/{scope}/{id}/pay.
func (h *BillingHandler) Pay(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	paid, err := h.svc.MarkPaid(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, h.log, "mark paid", err)
		return
	}
	if paid == nil {
		paid = []order.Order{}
	}
	writeJSON(w, http.StatusOK, payResponse{Paid: paid})
}

// Clear handles POST /billing/{scope}/{id}/clear. A repeated clear answers
// 200 with already_cleared set.
func (h *BillingHandler) Clear(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Clear(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, h.log, "clear", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Statement handles GET /billing/{scope}/{id}/statement. ?format=pdf renders the PDF.
func (h *BillingHandler) Statement(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "pdf" {
		h.StatementPDF(w, r)
		return
	}
	scope, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Statement(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, h.log, "statement", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StatementPDF handles GET /billing/{scope}/{id}/statement.pdf.
func (h *BillingHandler) StatementPDF(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.scope(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Statement(r.Context(), scope, id)
	if err != nil {
		writeServiceError(w, h.log, "statement pdf", err)
		return
	}
	buf, err := receipt.Render(st, h.venue)
	if err != nil {
		h.log.Error("render statement pdf", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate PDF"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", receipt.Filename(st)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// History handles GET /history?limit=.
func (h *BillingHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	orders, err := h.svc.History(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.log, "history", err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetVat handles GET /settings/vat.
func (h *BillingHandler) GetVat(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Vat(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "get vat", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// PutVat handles PUT /settings/vat.
func (h *BillingHandler) PutVat(w http.ResponseWriter, r *http.Request) {
	var req vatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	v, err := h.svc.SetVat(r.Context(), req.Enabled, req.Rate)
	if err != nil {
		writeServiceError(w, h.log, "set vat", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Helpers ---

func (h *BillingHandler) scope(w http.ResponseWriter, r *http.Request) (service.Scope, string, bool) {
	scope, err := service.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		writeServiceError(w, h.log, "billing scope", err)
		return "", "", false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return "", "", false
	}
	return scope, id, true
}
