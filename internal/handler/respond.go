package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/middleware"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/table"
	"go.uber.org/zap"
)

// Error codes sent next to the message so clients can branch without parsing text.
const (
	codeAlreadyHandled = "already_handled"
	codeConflict       = "conflict"
	codeCapacity       = "capacity"
	codeRejected       = "rejected"
	codeUnavailable    = "unavailable"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeServiceError maps service errors onto HTTP statuses. Unknown errors
// are logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	msg := map[string]string{"error": err.Error()}
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, msg)
	case errors.Is(err, order.ErrItemNotFound), errors.Is(err, table.ErrGroupNotFound):
		writeJSON(w, http.StatusNotFound, msg)
	case errors.Is(err, order.ErrWrongStation):
		writeJSON(w, http.StatusForbidden, msg)
	case errors.Is(err, service.ErrAlreadyHandled):
		msg["code"] = codeAlreadyHandled
		writeJSON(w, http.StatusGone, msg)
	case errors.Is(err, service.ErrConflict):
		msg["code"] = codeConflict
		writeJSON(w, http.StatusConflict, msg)
	case errors.Is(err, table.ErrCapacity):
		msg["code"] = codeCapacity
		writeJSON(w, http.StatusConflict, msg)
	case isRejection(err):
		msg["code"] = codeRejected
		writeJSON(w, http.StatusConflict, msg)
	case errors.Is(err, service.ErrUnavailable):
		log.Warn(op, zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "store temporarily unavailable, retry shortly",
			"code":  codeUnavailable,
		})
	default:
		log.Error(op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isValidationError checks if the error is a known validation error
// from the domain packages that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, order.ErrEmptyItems) ||
		errors.Is(err, order.ErrInvalidQuantity) ||
		errors.Is(err, order.ErrInvalidPrice) ||
		errors.Is(err, order.ErrMissingName) ||
		errors.Is(err, order.ErrInvalidTable) ||
		errors.Is(err, order.ErrInvalidTransition) ||
		errors.Is(err, order.ErrUnknownStatus) ||
		errors.Is(err, order.ErrUnknownStation) ||
		errors.Is(err, order.ErrInvalidDiscount) ||
		errors.Is(err, table.ErrInvalidGuests) ||
		errors.Is(err, table.ErrInvalidTable) ||
		errors.Is(err, billing.ErrInvalidRate) ||
		errors.Is(err, service.ErrInvalidScope) ||
		errors.Is(err, service.ErrInvalidLimit)
}

// isRejection reports business rules that refuse the action in the current state.
func isRejection(err error) bool {
	return errors.Is(err, order.ErrStationNotReady) ||
		errors.Is(err, order.ErrOrderPaid) ||
		errors.Is(err, service.ErrPaidRegression) ||
		errors.Is(err, billing.ErrFrozen)
}

// --- URL params ---

func tableParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "table"))
	if err != nil || n <= 0 {
		return 0, table.ErrInvalidTable
	}
	return n, nil
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func indexParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || n < 0 {
		return 0, errors.New("invalid item index")
	}
	return n, nil
}

// actingStation is the station of a kitchen or bar token; admins act for any station.
func actingStation(r *http.Request) order.Station {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	s, _ := claims.Station()
	return order.Station(s)
}

// allowTable reports whether the caller may act on tableNumber. Customers are
// bound to the table of their token; staff may act on any table.
func allowTable(w http.ResponseWriter, r *http.Request, tableNumber int) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return false
	}
	if claims.IsStaff() || claims.TableNumber == tableNumber {
		return true
	}
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied for this table"})
	return false
}
