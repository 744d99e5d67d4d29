package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/middleware"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/ticket"
	"go.uber.org/zap"
)

// StationServicer defines the service methods needed by station handlers.
// Satisfied by *service.FloorService; narrow interface for testability.
type StationServicer interface {
	StationBoard(ctx context.Context, station order.Station) ([]order.StationView, error)
	ToggleViewItem(ctx context.Context, orderID uuid.UUID, station order.Station, filtered int, seen order.ItemStatus) (order.Order, error)
	Tickets(ctx context.Context) ([]ticket.Group, error)
	BatchTransition(ctx context.Context, station order.Station, refs []ticket.Ref) []service.BatchResult
}

// StationHandler serves the kitchen and bar displays.
type StationHandler struct {
	svc StationServicer
	log *zap.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(svc StationServicer, log *zap.Logger) *StationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StationHandler{svc: svc, log: log}
}

// RegisterRoutes registers station endpoints on the given Chi router.
func (h *StationHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireStaff)
		r.Get("/stations/{station}/board", h.Board)
		r.Post("/stations/{station}/orders/{id}/items/{index}/toggle", h.ToggleViewItem)
		r.Get("/tickets", h.Tickets)
		r.Post("/tickets/batch", h.Batch)
	})
}

// --- Request / Response types ---

type batchRequest struct {
	Station string       `json:"station"`
	Refs    []ticket.Ref `json:"refs"`
}

type batchResponse struct {
	Results []service.BatchResult `json:"results"`
}

// --- Handlers ---

// Board handles GET /stations/{station}/board.
func (h *StationHandler) Board(w http.ResponseWriter, r *http.Request) {
	station, ok := h.station(w, r, chi.URLParam(r, "station"))
	if !ok {
		return
	}
	views, err := h.svc.StationBoard(r.Context(), station)
	if err != nil {
		writeServiceError(w, h.log, "station board", err)
		return
	}
	if views == nil {
		views = []order.StationView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ToggleViewItem handles POST /stations/{station}/orders/{id}/items/{index}/toggle,
// where index is the position in the station-filtered list.
func (h *StationHandler) ToggleViewItem(w http.ResponseWriter, r *http.Request) {
	station, ok := h.station(w, r, chi.URLParam(r, "station"))
	if !ok {
		return
	}
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
	var req itemActionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	seen, err := parseSeen(req.Seen)
	if err != nil {
		writeServiceError(w, h.log, "toggle view item", err)
		return
	}

	o, err := h.svc.ToggleViewItem(r.Context(), id, station, index, seen)
	if err != nil {
		writeServiceError(w, h.log, "toggle view item", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Tickets handles GET /tickets.
func (h *StationHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.Tickets(r.Context())
	if err != nil {
		writeServiceError(w, h.log, "tickets", err)
		return
	}
	if groups == nil {
		groups = []ticket.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// Batch handles POST /tickets/batch. Every ref gets its own result; the
// response is 200 even when some refs were already handled.
func (h *StationHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Refs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refs are required"})
		return
	}
	name := req.Station
	if name == "" {
		name = enum.StationKitchen
	}
	station, ok := h.station(w, r, name)
	if !ok {
		return
	}

	results := h.svc.BatchTransition(r.Context(), station, req.Refs)
	if results == nil {
		results = []service.BatchResult{}
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// --- Helpers ---

// station parses name and rejects a station token acting for the other station.
func (h *StationHandler) station(w http.ResponseWriter, r *http.Request, name string) (order.Station, bool) {
	station, err := order.ParseStation(name)
	if err != nil {
		writeServiceError(w, h.log, "station", err)
		return "", false
	}
	if acting := actingStation(r); acting != "" && acting != station {
		writeServiceError(w, h.log, "station", order.ErrWrongStation)
		return "", false
	}
	return station, true
}
