package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/handler"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/store"
)

// setupFloor wires every handler to a real service over the memory store.
func setupFloor(t *testing.T) (*service.FloorService, *chi.Mux) {
	t.Helper()
	svc := service.NewFloorService(store.NewMemory(), service.Options{Policy: order.DefaultCancelPolicy})
	r := authedRouter(func(r chi.Router) {
		handler.NewOrderHandler(svc, nil).RegisterRoutes(r)
		handler.NewStationHandler(svc, nil).RegisterRoutes(r)
		handler.NewTableHandler(svc, nil).RegisterRoutes(r)
		handler.NewBillingHandler(svc, "Test Bistro", nil).RegisterRoutes(r)
		handler.NewSnapshotHandler(svc, nil).RegisterRoutes(r)
	})
	return svc, r
}

// mixedOrder has a kitchen dish at raw 0, a drink at raw 1 and a kitchen dish at raw 2.
func mixedOrder(tableNumber int, sessionID string) map[string]interface{} {
	return map[string]interface{}{
		"table_number": tableNumber,
		"session_id":   sessionID,
		"items": []map[string]interface{}{
			{"name": "Momo", "price": "300", "quantity": 1},
			{"name": "Lemonade", "price": "150", "quantity": 2, "requires_preparation": false},
			{"name": "Chowmein", "price": "250", "quantity": 1},
		},
	}
}

func placeViaAPI(t *testing.T, r http.Handler, token string, body map[string]interface{}) order.Order {
	t.Helper()
	rr := doRequest(t, r, "POST", "/orders", body, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("place order: status %d, body %s", rr.Code, rr.Body.String())
	}
	var o order.Order
	decodeBody(t, rr, &o)
	return o
}

func itemPath(o order.Order, index int, action string) string {
	return fmt.Sprintf("/orders/%s/items/%d/%s", o.ID, index, action)
}

func TestPlaceOrder_CustomerBoundToTable(t *testing.T) {
	_, r := setupFloor(t)
	customer := tokenFor(t, enum.RoleCustomer, 3)

	body := mixedOrder(0, "")
	o := placeViaAPI(t, r, customer, body)
	if o.TableNumber != 3 {
		t.Errorf("table: got %d, want 3 from the token", o.TableNumber)
	}
	if o.Status != order.StatusPending || o.PaymentStatus != order.PaymentUnpaid {
		t.Errorf("new order: got status %s payment %s", o.Status, o.PaymentStatus)
	}

	rr := doRequest(t, r, "POST", "/orders", mixedOrder(4, ""), customer)
	if rr.Code != http.StatusForbidden {
		t.Errorf("other table: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	admin := tokenFor(t, enum.RoleAdmin, 0)
	if o := placeViaAPI(t, r, admin, mixedOrder(4, "")); o.TableNumber != 4 {
		t.Errorf("staff order table: got %d, want 4", o.TableNumber)
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	_, r := setupFloor(t)
	customer := tokenFor(t, enum.RoleCustomer, 3)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"no items", map[string]interface{}{"items": []interface{}{}}},
		{"zero quantity", map[string]interface{}{"items": []map[string]interface{}{{"name": "Momo", "price": "300", "quantity": 0}}}},
		{"negative price", map[string]interface{}{"items": []map[string]interface{}{{"name": "Momo", "price": "-1", "quantity": 1}}}},
		{"missing name", map[string]interface{}{"items": []map[string]interface{}{{"name": " ", "price": "300", "quantity": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/orders", tt.body, customer)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d (body %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestGetOrder_TableScoped(t *testing.T) {
	_, r := setupFloor(t)
	o := placeViaAPI(t, r, tokenFor(t, enum.RoleCustomer, 3), mixedOrder(0, ""))

	if rr := doRequest(t, r, "GET", "/orders/"+o.ID.String(), nil, tokenFor(t, enum.RoleCustomer, 3)); rr.Code != http.StatusOK {
		t.Errorf("own order: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := doRequest(t, r, "GET", "/orders/"+o.ID.String(), nil, tokenFor(t, enum.RoleCustomer, 4)); rr.Code != http.StatusForbidden {
		t.Errorf("other table: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if rr := doRequest(t, r, "GET", "/orders/not-a-uuid", nil, tokenFor(t, enum.RoleAdmin, 0)); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListOrders_StaffOnly(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)
	placeViaAPI(t, r, admin, mixedOrder(1, ""))
	placeViaAPI(t, r, admin, mixedOrder(2, ""))

	rr := doRequest(t, r, "GET", "/orders?table=2", nil, tokenFor(t, enum.RoleKitchen, 0))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var orders []order.Order
	decodeBody(t, rr, &orders)
	if len(orders) != 1 || orders[0].TableNumber != 2 {
		t.Errorf("expected one order for table 2, got %+v", orders)
	}

	if rr := doRequest(t, r, "GET", "/orders", nil, tokenFor(t, enum.RoleCustomer, 1)); rr.Code != http.StatusForbidden {
		t.Errorf("customer list: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestToggle_StationRules(t *testing.T) {
	_, r := setupFloor(t)
	o := placeViaAPI(t, r, tokenFor(t, enum.RoleAdmin, 0), mixedOrder(1, ""))
	kitchen := tokenFor(t, enum.RoleKitchen, 0)
	bar := tokenFor(t, enum.RoleBar, 0)

	rr := doRequest(t, r, "POST", itemPath(o, 0, "toggle"), map[string]string{"seen": "pending"}, kitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("kitchen toggle: status %d, body %s", rr.Code, rr.Body.String())
	}
	var got order.Order
	decodeBody(t, rr, &got)
	if got.Items[0].Status != order.ItemCooking || got.Status != order.StatusCooking {
		t.Errorf("after toggle: item %s order %s", got.Items[0].Status, got.Status)
	}

	// A second screen still showing pending acts on stale data.
	rr = doRequest(t, r, "POST", itemPath(o, 0, "toggle"), map[string]string{"seen": "pending"}, kitchen)
	if rr.Code != http.StatusGone || errorCode(t, rr) != "already_handled" {
		t.Errorf("stale toggle: got %d, want %d already_handled", rr.Code, http.StatusGone)
	}

	if rr := doRequest(t, r, "POST", itemPath(o, 0, "toggle"), nil, bar); rr.Code != http.StatusForbidden {
		t.Errorf("bar on kitchen item: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if rr := doRequest(t, r, "POST", itemPath(o, 9, "toggle"), nil, kitchen); rr.Code != http.StatusNotFound {
		t.Errorf("missing item: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if rr := doRequest(t, r, "POST", itemPath(o, 1, "toggle"), nil, bar); rr.Code != http.StatusOK {
		t.Errorf("bar on drink: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestTransition(t *testing.T) {
	_, r := setupFloor(t)
	o := placeViaAPI(t, r, tokenFor(t, enum.RoleAdmin, 0), mixedOrder(1, ""))
	bar := tokenFor(t, enum.RoleBar, 0)
	kitchen := tokenFor(t, enum.RoleKitchen, 0)

	// Drinks may skip cooking.
	rr := doRequest(t, r, "POST", itemPath(o, 1, "transition"), map[string]interface{}{"to": "served", "from": []string{"pending"}}, bar)
	if rr.Code != http.StatusOK {
		t.Fatalf("bar shortcut: status %d, body %s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"unknown status", map[string]interface{}{"to": "burnt"}, http.StatusBadRequest},
		{"kitchen cannot skip cooking", map[string]interface{}{"to": "ready"}, http.StatusBadRequest},
		{"guard no longer matches", map[string]interface{}{"to": "cooking", "from": []string{"queue"}}, http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", itemPath(o, 0, "transition"), tt.body, kitchen)
			if rr.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestCancelAndRecoverItem(t *testing.T) {
	_, r := setupFloor(t)
	o := placeViaAPI(t, r, tokenFor(t, enum.RoleAdmin, 0), mixedOrder(1, ""))
	kitchen := tokenFor(t, enum.RoleKitchen, 0)

	rr := doRequest(t, r, "POST", itemPath(o, 0, "cancel"), nil, kitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: status %d, body %s", rr.Code, rr.Body.String())
	}
	var got order.Order
	decodeBody(t, rr, &got)
	if got.Items[0].Status != order.ItemCancelled {
		t.Errorf("item: got %s, want cancelled", got.Items[0].Status)
	}

	rr = doRequest(t, r, "POST", itemPath(o, 0, "recover"), nil, kitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("recover: status %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &got)
	if got.Items[0].Status != order.ItemPending {
		t.Errorf("item: got %s, want pending", got.Items[0].Status)
	}
}

func TestClearStation(t *testing.T) {
	_, r := setupFloor(t)
	o := placeViaAPI(t, r, tokenFor(t, enum.RoleAdmin, 0), mixedOrder(1, ""))
	kitchen := tokenFor(t, enum.RoleKitchen, 0)
	bar := tokenFor(t, enum.RoleBar, 0)
	clear := fmt.Sprintf("/orders/%s/stations/kitchen/clear", o.ID)

	rr := doRequest(t, r, "POST", clear, nil, kitchen)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "rejected" {
		t.Errorf("unfinished kitchen: got %d, want %d rejected", rr.Code, http.StatusConflict)
	}
	if rr := doRequest(t, r, "POST", clear, nil, bar); rr.Code != http.StatusForbidden {
		t.Errorf("bar clearing kitchen: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	for _, idx := range []int{0, 2} {
		for i := 0; i < 2; i++ { // pending -> cooking -> ready
			if rr := doRequest(t, r, "POST", itemPath(o, idx, "toggle"), nil, kitchen); rr.Code != http.StatusOK {
				t.Fatalf("toggle %d: status %d", idx, rr.Code)
			}
		}
	}

	rr = doRequest(t, r, "POST", clear, nil, kitchen)
	if rr.Code != http.StatusOK {
		t.Fatalf("clear: status %d, body %s", rr.Code, rr.Body.String())
	}
	var got order.Order
	decodeBody(t, rr, &got)
	if !got.IsKitchenArchived || got.IsBarArchived {
		t.Errorf("flags: kitchen %v bar %v", got.IsKitchenArchived, got.IsBarArchived)
	}
	if got.Status == order.StatusCompleted {
		t.Error("order must stay open while the bar is unfinished")
	}

	rr = doRequest(t, r, "POST", clear, nil, kitchen)
	if rr.Code != http.StatusGone {
		t.Errorf("second clear: got %d, want %d", rr.Code, http.StatusGone)
	}
}

func TestPaymentRequestAndReject(t *testing.T) {
	_, r := setupFloor(t)
	customer := tokenFor(t, enum.RoleCustomer, 3)
	admin := tokenFor(t, enum.RoleAdmin, 0)
	o := placeViaAPI(t, r, customer, mixedOrder(0, ""))
	request := fmt.Sprintf("/orders/%s/payment-request", o.ID)
	reject := fmt.Sprintf("/orders/%s/payment-reject", o.ID)

	rr := doRequest(t, r, "POST", request, nil, customer)
	if rr.Code != http.StatusOK {
		t.Fatalf("request: status %d, body %s", rr.Code, rr.Body.String())
	}
	var got order.Order
	decodeBody(t, rr, &got)
	if got.PaymentStatus != order.PaymentPendingVerification {
		t.Errorf("payment: got %s", got.PaymentStatus)
	}

	if rr := doRequest(t, r, "POST", request, nil, customer); rr.Code != http.StatusGone {
		t.Errorf("repeat request: got %d, want %d", rr.Code, http.StatusGone)
	}
	if rr := doRequest(t, r, "POST", request, nil, tokenFor(t, enum.RoleCustomer, 4)); rr.Code != http.StatusForbidden {
		t.Errorf("other table: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if rr := doRequest(t, r, "POST", reject, nil, customer); rr.Code != http.StatusForbidden {
		t.Errorf("customer reject: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doRequest(t, r, "POST", reject, nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("reject: status %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &got)
	if got.PaymentStatus != order.PaymentUnpaid {
		t.Errorf("payment: got %s, want unpaid", got.PaymentStatus)
	}
}

func TestDiscountAndCancelOrder(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)
	o := placeViaAPI(t, r, admin, mixedOrder(1, ""))
	discount := fmt.Sprintf("/orders/%s/discount", o.ID)

	if rr := doRequest(t, r, "PATCH", discount, map[string]string{"amount": "-5"}, admin); rr.Code != http.StatusBadRequest {
		t.Errorf("negative discount: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	rr := doRequest(t, r, "PATCH", discount, map[string]string{"amount": "50"}, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("discount: status %d, body %s", rr.Code, rr.Body.String())
	}
	var got order.Order
	decodeBody(t, rr, &got)
	if got.DiscountAmount.String() != "50" {
		t.Errorf("discount: got %s", got.DiscountAmount)
	}

	if rr := doRequest(t, r, "DELETE", "/orders/"+o.ID.String(), nil, tokenFor(t, enum.RoleKitchen, 0)); rr.Code != http.StatusForbidden {
		t.Errorf("kitchen cancel: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	rr = doRequest(t, r, "DELETE", "/orders/"+o.ID.String(), nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: status %d, body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &got)
	if got.Status != order.StatusCancelled {
		t.Errorf("status: got %s, want cancelled", got.Status)
	}
	if rr := doRequest(t, r, "DELETE", "/orders/"+o.ID.String(), nil, admin); rr.Code != http.StatusGone {
		t.Errorf("repeat cancel: got %d, want %d", rr.Code, http.StatusGone)
	}
}
