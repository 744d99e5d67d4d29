package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/service"
	"go.uber.org/zap"
)

// SnapshotServicer defines the service methods needed by the snapshot handler.
// Satisfied by *service.FloorService; narrow interface for testability.
type SnapshotServicer interface {
	Snapshot(ctx context.Context) (service.Snapshot, error)
}

// SnapshotHandler serves the whole floor state for polling clients.
type SnapshotHandler struct {
	svc SnapshotServicer
	log *zap.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(svc SnapshotServicer, log *zap.Logger) *SnapshotHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotHandler{svc: svc, log: log}
}

// RegisterRoutes registers the snapshot endpoint on the given Chi router.
func (h *SnapshotHandler) RegisterRoutes(r chi.Router) {
	r.Get("/snapshot", h.Get)
}

// Get handles GET /snapshot. A matching If-None-Match answers 304. When the
// store is down the last good snapshot is served with a Warning header.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil && !snap.Stale {
		writeServiceError(w, h.log, "snapshot", err)
		return
	}

	tag := `"` + snap.ETag + `"`
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if snap.Stale {
		h.log.Warn("serving stale snapshot", zap.Error(err))
		w.Header().Set("Warning", `110 - "store unavailable, showing last known state"`)
	}
	if match := r.Header.Get("If-None-Match"); match != "" && (match == tag || match == snap.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
