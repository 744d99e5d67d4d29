package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/auth"
	"github.com/kiwari-pos/floorops/internal/enum"
	"go.uber.org/zap"
)

// AuthHandler issues tokens for staff PINs and customer tables.
type AuthHandler struct {
	pins      auth.PINs
	jwtSecret string
	log       *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(pins auth.PINs, jwtSecret string, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{pins: pins, jwtSecret: jwtSecret, log: log}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/pin", h.PinLogin)
	r.Post("/auth/table", h.TableLogin)
}

// --- Request / Response types ---

type pinLoginRequest struct {
	Pin string `json:"pin"`
}

type tableLoginRequest struct {
	TableNumber int `json:"table_number"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	Role        string    `json:"role"`
	TableNumber int       `json:"table_number,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// --- Handlers ---

// PinLogin exchanges a staff PIN for a kitchen, bar or admin token.
func (h *AuthHandler) PinLogin(w http.ResponseWriter, r *http.Request) {
	var req pinLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Pin == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin is required"})
		return
	}

	role, err := h.pins.Role(req.Pin)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPIN) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		h.log.Error("pin login", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.respondWithToken(w, role, 0, auth.StaffTokenTTL)
}

// TableLogin issues a customer token bound to one table, as scanned from its QR code.
func (h *AuthHandler) TableLogin(w http.ResponseWriter, r *http.Request) {
	var req tableLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TableNumber <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table_number must be > 0"})
		return
	}

	h.respondWithToken(w, enum.RoleCustomer, req.TableNumber, auth.CustomerTokenTTL)
}

// --- Helpers ---

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, role string, tableNumber int, ttl time.Duration) {
	token, err := auth.GenerateToken(h.jwtSecret, role, tableNumber, ttl)
	if err != nil {
		h.log.Error("generate token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		Role:        role,
		TableNumber: tableNumber,
		ExpiresAt:   time.Now().Add(ttl).UTC(),
	})
}
