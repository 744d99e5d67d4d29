package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/middleware"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.FloorService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	ListOrders(ctx context.Context, tableNumber int) ([]order.Order, error)
	TransitionItem(ctx context.Context, req service.TransitionRequest) (order.Order, error)
	ToggleItem(ctx context.Context, ref service.ItemRef) (order.Order, error)
	CancelItem(ctx context.Context, ref service.ItemRef) (order.Order, error)
	RecoverItem(ctx context.Context, ref service.ItemRef) (order.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	ClearStation(ctx context.Context, id uuid.UUID, station order.Station) (order.Order, error)
	SetDiscount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (order.Order, error)
	RequestPayment(ctx context.Context, id uuid.UUID) (order.Order, error)
	RejectPayment(ctx context.Context, id uuid.UUID) (order.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
	log *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, log *zap.Logger) *OrderHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandler{svc: svc, log: log}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside an authenticated group.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	// Any role; customers are held to their own table.
	r.Post("/orders", h.Place)
	r.Get("/orders/{id}", h.Get)
	r.Post("/orders/{id}/payment-request", h.RequestPayment)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireStaff)
		r.Get("/orders", h.List)
		r.Post("/orders/{id}/items/{index}/toggle", h.Toggle)
		r.Post("/orders/{id}/items/{index}/transition", h.Transition)
		r.Post("/orders/{id}/items/{index}/cancel", h.CancelItem)
		r.Post("/orders/{id}/items/{index}/recover", h.RecoverItem)
		r.Post("/orders/{id}/stations/{station}/clear", h.ClearStation)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleAdmin))
		r.Delete("/orders/{id}", h.Cancel)
		r.Patch("/orders/{id}/discount", h.SetDiscount)
		r.Post("/orders/{id}/payment-reject", h.RejectPayment)
	})
}

// --- Request / Response types ---

type placeOrderRequest struct {
	TableNumber int                     `json:"table_number"`
	SessionID   string                  `json:"session_id"`
	Items       []placeOrderItemRequest `json:"items"`
}

type placeOrderItemRequest struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Price               decimal.Decimal      `json:"price"`
	Quantity            int32                `json:"quantity"`
	RequiresPreparation *bool                `json:"requires_preparation"`
	Customization       *order.Customization `json:"customization"`
	TargetTime          *time.Time           `json:"target_time"`
}

// itemActionRequest carries the status the actor last saw. Empty skips the stale check.
type itemActionRequest struct {
	Seen string `json:"seen"`
}

type transitionRequest struct {
	To   string   `json:"to"`
	From []string `json:"from"`
	Seen string   `json:"seen"`
}

type discountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// --- Handlers ---

// Place handles POST /orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims != nil && !claims.IsStaff() && req.TableNumber == 0 {
		req.TableNumber = claims.TableNumber
	}
	if !allowTable(w, r, req.TableNumber) {
		return
	}

	items := make([]order.NewItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.NewItem{
			ID:                  it.ID,
			Name:                it.Name,
			Price:               it.Price,
			Quantity:            it.Quantity,
			RequiresPreparation: it.RequiresPreparation,
			Customization:       it.Customization,
			TargetTime:          it.TargetTime,
		}
	}

	o, err := h.svc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		TableNumber: req.TableNumber,
		SessionID:   req.SessionID,
		Items:       items,
	})
	if err != nil {
		writeServiceError(w, h.log, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// List handles GET /orders, optionally filtered by ?table=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	tableNumber := 0
	if v := r.URL.Query().Get("table"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table"})
			return
		}
		tableNumber = n
	}
	orders, err := h.svc.ListOrders(r.Context(), tableNumber)
	if err != nil {
		writeServiceError(w, h.log, "list orders", err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// Toggle handles POST /orders/{id}/items/{index}/toggle.
func (h *OrderHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "toggle item", func(ctx context.Context) (order.Order, error) {
		return h.svc.ToggleItem(ctx, ref)
	})
}

// Transition handles POST /orders/{id}/items/{index}/transition.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	index, err := indexParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	to, err := order.ParseItemStatus(req.To)
	if err != nil {
		writeServiceError(w, h.log, "transition item", err)
		return
	}
	from := make([]order.ItemStatus, 0, len(req.From))
	for _, f := range req.From {
		s, err := order.ParseItemStatus(f)
		if err != nil {
			writeServiceError(w, h.log, "transition item", err)
			return
		}
		from = append(from, s)
	}
	seen, err := parseSeen(req.Seen)
	if err != nil {
		writeServiceError(w, h.log, "transition item", err)
		return
	}

	tr := service.TransitionRequest{
		ItemRef: service.ItemRef{OrderID: id, RawIndex: index, Station: actingStation(r), Seen: seen},
		From:    from,
		To:      to,
	}
	h.respond(w, r, "transition item", func(ctx context.Context) (order.Order, error) {
		return h.svc.TransitionItem(ctx, tr)
	})
}

// CancelItem handles POST /orders/{id}/items/{index}/cancel.
func (h *OrderHandler) CancelItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "cancel item", func(ctx context.Context) (order.Order, error) {
		return h.svc.CancelItem(ctx, ref)
	})
}

// RecoverItem handles POST /orders/{id}/items/{index}/recover.
func (h *OrderHandler) RecoverItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "recover item", func(ctx context.Context) (order.Order, error) {
		return h.svc.RecoverItem(ctx, ref)
	})
}

// ClearStation handles POST /orders/{id}/stations/{station}/clear.
func (h *OrderHandler) ClearStation(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	station, err := order.ParseStation(chi.URLParam(r, "station"))
	if err != nil {
		writeServiceError(w, h.log, "clear station", err)
		return
	}
	if acting := actingStation(r); acting != "" && acting != station {
		writeServiceError(w, h.log, "clear station", order.ErrWrongStation)
		return
	}
	h.respond(w, r, "clear station", func(ctx context.Context) (order.Order, error) {
		return h.svc.ClearStation(ctx, id, station)
	})
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	h.respond(w, r, "cancel order", func(ctx context.Context) (order.Order, error) {
		return h.svc.CancelOrder(ctx, id)
	})
}

// SetDiscount handles PATCH /orders/{id}/discount.
func (h *OrderHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.respond(w, r, "set discount", func(ctx context.Context) (order.Order, error) {
		return h.svc.SetDiscount(ctx, id, req.Amount)
	})
}

// RequestPayment handles POST /orders/{id}/payment-request.
func (h *OrderHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "request payment", func(ctx context.Context) (order.Order, error) {
		return h.svc.RequestPayment(ctx, o.ID)
	})
}

// RejectPayment handles POST /orders/{id}/payment-reject.
func (h *OrderHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}
	h.respond(w, r, "reject payment", func(ctx context.Context) (order.Order, error) {
		return h.svc.RejectPayment(ctx, id)
	})
}

// --- Helpers ---

func (h *OrderHandler) respond(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context) (order.Order, error)) {
	o, err := fn(r.Context())
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// loadOwned fetches the {id} order and checks the caller may see its table.
func (h *OrderHandler) loadOwned(w http.ResponseWriter, r *http.Request) (order.Order, bool) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return order.Order{}, false
	}
	o, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, "get order", err)
		return order.Order{}, false
	}
	if !allowTable(w, r, o.TableNumber) {
		return order.Order{}, false
	}
	return o, true
}

// itemRef reads {id}, {index} and an optional {"seen": status} body.
func (h *OrderHandler) itemRef(w http.ResponseWriter, r *http.Request) (service.ItemRef, bool) {
	id, err := orderIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return service.ItemRef{}, false
	}
	index, err := indexParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return service.ItemRef{}, false
	}
	var req itemActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return service.ItemRef{}, false
		}
	}
	seen, err := parseSeen(req.Seen)
	if err != nil {
		writeServiceError(w, h.log, "item action", err)
		return service.ItemRef{}, false
	}
	return service.ItemRef{OrderID: id, RawIndex: index, Station: actingStation(r), Seen: seen}, true
}

func parseSeen(s string) (order.ItemStatus, error) {
	if s == "" {
		return "", nil
	}
	return order.ParseItemStatus(s)
}
