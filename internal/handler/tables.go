package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/middleware"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/table"
	"go.uber.org/zap"
)

// TableServicer defines the service methods needed by table handlers.
// Satisfied by *service.FloorService; narrow interface for testability.
type TableServicer interface {
	Tables(ctx context.Context) ([]table.Session, error)
	Table(ctx context.Context, tableNumber int) (table.Session, error)
	ListOrders(ctx context.Context, tableNumber int) ([]order.Order, error)
	BookGroup(ctx context.Context, tableNumber, guests int, name string) (table.Group, error)
	SetTable(ctx context.Context, tableNumber int, upd service.TableUpdate) (table.Booking, error)
}

// TableHandler handles table session endpoints.
type TableHandler struct {
	svc TableServicer
	log *zap.Logger
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableServicer, log *zap.Logger) *TableHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TableHandler{svc: svc, log: log}
}

// RegisterRoutes registers table endpoints on the given Chi router.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tables/{table}", func(r chi.Router) {
		r.With(middleware.RequireTable).Get("/session", h.Session)
		r.With(middleware.RequireTable).Get("/orders", h.Orders)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(enum.RoleAdmin))
			r.Post("/", h.Update)
			r.Post("/groups", h.BookGroup)
		})
	})

	r.With(middleware.RequireRole(enum.RoleAdmin)).Get("/tables", h.List)
}

// --- Request / Response types ---

type bookGroupRequest struct {
	Guests int    `json:"guests"`
	Name   string `json:"name"`
}

type updateTableRequest struct {
	Capacity *int  `json:"capacity"`
	Occupied *bool `json:"occupied"`
}

// --- Handlers ---

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Tables(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "list tables", err)
		return
	}
	if sessions == nil {
		sessions = []table.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Session handles GET /tables/{table}/session.
func (h *TableHandler) Session(w http.ResponseWriter, r *http.Request) {
	n, err := tableParam(r)
	if err != nil {
		writeServiceError(w, h.log, "table session", err)
		return
	}
	sess, err := h.svc.Table(r.Context(), n)
	if err != nil {
		writeServiceError(w, h.log, "table session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Orders handles GET /tables/{table}/orders.
func (h *TableHandler) Orders(w http.ResponseWriter, r *http.Request) {
	n, err := tableParam(r)
	if err != nil {
		writeServiceError(w, h.log, "table orders", err)
		return
	}
	orders, err := h.svc.ListOrders(r.Context(), n)
	if err != nil {
		writeServiceError(w, h.log, "table orders", err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// BookGroup handles POST /tables/{table}/groups.
func (h *TableHandler) BookGroup(w http.ResponseWriter, r *http.Request) {
	n, err := tableParam(r)
	if err != nil {
		writeServiceError(w, h.log, "book group", err)
		return
	}
	var req bookGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	g, err := h.svc.BookGroup(r.Context(), n, req.Guests, req.Name)
	if err != nil {
		writeServiceError(w, h.log, "book group", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// Update handles POST /tables/{table}.
func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	n, err := tableParam(r)
	if err != nil {
		writeServiceError(w, h.log, "update table", err)
		return
	}
	var req updateTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Capacity == nil && req.Occupied == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "capacity or occupied is required"})
		return
	}
	b, err := h.svc.SetTable(r.Context(), n, service.TableUpdate{Capacity: req.Capacity, Occupied: req.Occupied})
	if err != nil {
		writeServiceError(w, h.log, "update table", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
