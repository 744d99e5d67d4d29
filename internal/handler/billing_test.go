package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/handler"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/table"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mock BillingServicer ---

type mockBillingService struct {
	markPaidFn  func(ctx context.Context, scope service.Scope, id string) ([]order.Order, error)
	clearFn     func(ctx context.Context, scope service.Scope, id string) (service.ClearResult, error)
	statementFn func(ctx context.Context, scope service.Scope, id string) (service.Statement, error)
	historyFn   func(ctx context.Context, limit int) ([]order.Order, error)
	vatFn       func(ctx context.Context) (billing.VatConfig, error)
	setVatFn    func(ctx context.Context, enabled bool, rate decimal.Decimal) (billing.VatConfig, error)
}

func (m *mockBillingService) MarkPaid(ctx context.Context, scope service.Scope, id string) ([]order.Order, error) {
	return m.markPaidFn(ctx, scope, id)
}

func (m *mockBillingService) Clear(ctx context.Context, scope service.Scope, id string) (service.ClearResult, error) {
	return m.clearFn(ctx, scope, id)
}

func (m *mockBillingService) Statement(ctx context.Context, scope service.Scope, id string) (service.Statement, error) {
	return m.statementFn(ctx, scope, id)
}

func (m *mockBillingService) History(ctx context.Context, limit int) ([]order.Order, error) {
	return m.historyFn(ctx, limit)
}

func (m *mockBillingService) Vat(ctx context.Context) (billing.VatConfig, error) {
	return m.vatFn(ctx)
}

func (m *mockBillingService) SetVat(ctx context.Context, enabled bool, rate decimal.Decimal) (billing.VatConfig, error) {
	return m.setVatFn(ctx, enabled, rate)
}

// --- Tests ---

func TestBilling_GroupLifecycle(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)

	if rr := doRequest(t, r, "PUT", "/settings/vat", map[string]interface{}{"enabled": true, "rate": "10"}, admin); rr.Code != http.StatusOK {
		t.Fatalf("set vat: status %d, body %s", rr.Code, rr.Body.String())
	}

	rr := doRequest(t, r, "POST", "/tables/5/groups", map[string]interface{}{"guests": 2, "name": "Window seat"}, admin)
	var a table.Group
	decodeBody(t, rr, &a)
	rr = doRequest(t, r, "POST", "/tables/5/groups", map[string]interface{}{"guests": 2, "name": "Bar side"}, admin)
	var b table.Group
	decodeBody(t, rr, &b)

	customer := tokenFor(t, enum.RoleCustomer, 5)
	placeViaAPI(t, r, customer, mixedOrder(0, a.ID))
	placeViaAPI(t, r, customer, mixedOrder(0, b.ID))

	base := "/billing/group/" + a.ID
	rr = doRequest(t, r, "GET", base+"/statement", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("statement: status %d, body %s", rr.Code, rr.Body.String())
	}
	var st service.Statement
	decodeBody(t, rr, &st)
	if len(st.Lines) != 1 || st.GroupName != "Window seat" {
		t.Fatalf("expected one line for group A, got %+v", st)
	}
	if !st.Summary.Outstanding.Equal(decimal.NewFromInt(935)) {
		t.Errorf("outstanding: got %s, want 935", st.Summary.Outstanding)
	}

	rr = doRequest(t, r, "GET", base+"/statement.pdf", nil, admin)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: status %d, type %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Error("pdf body must start with %PDF")
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "statement_table5_Window_seat.pdf") {
		t.Errorf("disposition: got %s", rr.Header().Get("Content-Disposition"))
	}
	if rr := doRequest(t, r, "GET", base+"/statement?format=pdf", nil, admin); rr.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("format=pdf: got type %s", rr.Header().Get("Content-Type"))
	}

	rr = doRequest(t, r, "POST", base+"/pay", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("pay: status %d, body %s", rr.Code, rr.Body.String())
	}
	var paid struct {
		Paid []order.Order `json:"paid"`
	}
	decodeBody(t, rr, &paid)
	if len(paid.Paid) != 1 || !paid.Paid[0].Total.Equal(decimal.NewFromInt(935)) {
		t.Fatalf("expected one order frozen at 935, got %+v", paid.Paid)
	}

	// VAT changes after payment leave the frozen total alone.
	doRequest(t, r, "PUT", "/settings/vat", map[string]interface{}{"enabled": true, "rate": "20"}, admin)

	rr = doRequest(t, r, "POST", base+"/clear", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("clear: status %d, body %s", rr.Code, rr.Body.String())
	}
	var res service.ClearResult
	decodeBody(t, rr, &res)
	if res.AlreadyCleared || len(res.Archived) != 1 || res.TableReleased {
		t.Errorf("first clear: %+v", res)
	}

	rr = doRequest(t, r, "POST", base+"/clear", nil, admin)
	decodeBody(t, rr, &res)
	if rr.Code != http.StatusOK || !res.AlreadyCleared {
		t.Errorf("repeat clear: status %d result %+v", rr.Code, res)
	}

	rr = doRequest(t, r, "GET", "/history?limit=10", nil, admin)
	var history []order.Order
	decodeBody(t, rr, &history)
	if len(history) != 1 || !history[0].Total.Equal(decimal.NewFromInt(935)) {
		t.Errorf("history: %+v", history)
	}

	rr = doRequest(t, r, "POST", "/billing/table/5/clear", nil, admin)
	decodeBody(t, rr, &res)
	if !res.TableReleased || len(res.Archived) != 1 {
		t.Errorf("table clear: %+v", res)
	}
}

func TestBilling_RequestErrors(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		token  string
		want   int
	}{
		{"invalid scope", "POST", "/billing/room/5/pay", nil, admin, http.StatusBadRequest},
		{"invalid table id", "POST", "/billing/table/abc/pay", nil, admin, http.StatusBadRequest},
		{"unknown group", "GET", "/billing/group/nope/statement", nil, admin, http.StatusNotFound},
		{"negative history limit", "GET", "/history?limit=-1", nil, admin, http.StatusBadRequest},
		{"non-numeric limit", "GET", "/history?limit=ten", nil, admin, http.StatusBadRequest},
		{"vat out of range", "PUT", "/settings/vat", map[string]interface{}{"enabled": true, "rate": "101"}, admin, http.StatusBadRequest},
		{"kitchen cannot pay", "POST", "/billing/table/5/pay", nil, tokenFor(t, enum.RoleKitchen, 0), http.StatusForbidden},
		{"customer cannot read vat", "GET", "/settings/vat", nil, tokenFor(t, enum.RoleCustomer, 5), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := doRequest(t, r, tt.method, tt.path, tt.body, tt.token); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestBilling_ServiceErrorMapping(t *testing.T) {
	admin := tokenFor(t, enum.RoleAdmin, 0)

	tests := []struct {
		name     string
		err      error
		want     int
		code     string
		logLevel zapcore.Level
		logged   bool
	}{
		{"store down", fmt.Errorf("list orders: %w: %w", service.ErrUnavailable, errors.New("dial tcp")), http.StatusServiceUnavailable, "unavailable", zapcore.WarnLevel, true},
		{"conflict", service.ErrConflict, http.StatusConflict, "conflict", 0, false},
		{"paid regression", service.ErrPaidRegression, http.StatusConflict, "rejected", 0, false},
		{"stale", fmt.Errorf("get order: %w", service.ErrAlreadyHandled), http.StatusGone, "already_handled", 0, false},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "", zapcore.ErrorLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			svc := &mockBillingService{
				markPaidFn: func(ctx context.Context, scope service.Scope, id string) ([]order.Order, error) {
					if scope != service.ScopeTable || id != "5" {
						t.Errorf("scope: got %s/%s", scope, id)
					}
					return nil, tt.err
				},
			}
			r := authedRouter(func(r chi.Router) {
				handler.NewBillingHandler(svc, "", zap.New(core)).RegisterRoutes(r)
			})

			rr := doRequest(t, r, "POST", "/billing/table/5/pay", nil, admin)
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if code := errorCode(t, rr); code != tt.code {
				t.Errorf("code: got %q, want %q", code, tt.code)
			}
			if !tt.logged {
				if logs.Len() != 0 {
					t.Errorf("expected no logs, got %d", logs.Len())
				}
				return
			}
			entries := logs.All()
			if len(entries) != 1 || entries[0].Level != tt.logLevel || entries[0].Message != "mark paid" {
				t.Errorf("expected one %s log for mark paid, got %+v", tt.logLevel, entries)
			}
		})
	}
}

func TestBilling_PDFRenderedFromStatement(t *testing.T) {
	svc := &mockBillingService{
		statementFn: func(ctx context.Context, scope service.Scope, id string) (service.Statement, error) {
			return service.Statement{Scope: scope, ID: id, TableNumber: 3, Lines: []service.StatementLine{}}, nil
		},
	}
	r := authedRouter(func(r chi.Router) {
		handler.NewBillingHandler(svc, "Test Bistro", nil).RegisterRoutes(r)
	})

	rr := doRequest(t, r, "GET", "/billing/table/3/statement.pdf", nil, tokenFor(t, enum.RoleAdmin, 0))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("cache-control: got %q", rr.Header().Get("Cache-Control"))
	}
}
