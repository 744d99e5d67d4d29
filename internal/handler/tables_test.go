package handler_test

import (
	"net/http"
	"testing"

	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/table"
)

func TestTableSession_GroupsAndCapacity(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)

	if rr := doRequest(t, r, "POST", "/tables/5", map[string]int{"capacity": 4}, admin); rr.Code != http.StatusOK {
		t.Fatalf("set capacity: status %d, body %s", rr.Code, rr.Body.String())
	}

	rr := doRequest(t, r, "POST", "/tables/5/groups", map[string]interface{}{"guests": 3, "name": "Window"}, admin)
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: status %d, body %s", rr.Code, rr.Body.String())
	}
	var g table.Group
	decodeBody(t, rr, &g)
	if g.ID == "" || g.Guests != 3 {
		t.Fatalf("unexpected group: %+v", g)
	}

	rr = doRequest(t, r, "POST", "/tables/5/groups", map[string]interface{}{"guests": 2}, admin)
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "capacity" {
		t.Errorf("over capacity: got %d, want %d capacity", rr.Code, http.StatusConflict)
	}
	if rr := doRequest(t, r, "POST", "/tables/5/groups", map[string]interface{}{"guests": 0}, admin); rr.Code != http.StatusBadRequest {
		t.Errorf("zero guests: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if rr := doRequest(t, r, "POST", "/tables/5", map[string]int{"capacity": 2}, admin); rr.Code != http.StatusConflict {
		t.Errorf("shrink below seated: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if rr := doRequest(t, r, "POST", "/tables/5", map[string]interface{}{}, admin); rr.Code != http.StatusBadRequest {
		t.Errorf("empty update: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	customer := tokenFor(t, enum.RoleCustomer, 5)
	placeViaAPI(t, r, customer, mixedOrder(0, g.ID))

	rr = doRequest(t, r, "GET", "/tables/5/session", nil, customer)
	if rr.Code != http.StatusOK {
		t.Fatalf("session: status %d, body %s", rr.Code, rr.Body.String())
	}
	var sess table.Session
	decodeBody(t, rr, &sess)
	if sess.Status != table.StatusOccupied || sess.Guests != 3 || sess.Capacity != 4 {
		t.Errorf("session: status %s guests %d capacity %d", sess.Status, sess.Guests, sess.Capacity)
	}
	if len(sess.Groups) != 1 || len(sess.Groups[0].Orders) != 1 {
		t.Fatalf("expected the order under the group, got %+v", sess.Groups)
	}
	if sess.TotalAmount.String() != "850" {
		t.Errorf("total: got %s, want 850", sess.TotalAmount)
	}

	rr = doRequest(t, r, "GET", "/tables/5/orders", nil, customer)
	var orders []order.Order
	decodeBody(t, rr, &orders)
	if len(orders) != 1 {
		t.Errorf("table orders: got %d, want 1", len(orders))
	}
}

func TestTableRoutes_Access(t *testing.T) {
	_, r := setupFloor(t)
	customer := tokenFor(t, enum.RoleCustomer, 5)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		token  string
		want   int
	}{
		{"other table session", "GET", "/tables/6/session", nil, customer, http.StatusForbidden},
		{"customer books group", "POST", "/tables/5/groups", map[string]int{"guests": 1}, customer, http.StatusForbidden},
		{"customer lists tables", "GET", "/tables", nil, customer, http.StatusForbidden},
		{"invalid table", "GET", "/tables/zero/session", nil, tokenFor(t, enum.RoleAdmin, 0), http.StatusBadRequest},
		{"unknown table is free", "GET", "/tables/9/session", nil, tokenFor(t, enum.RoleAdmin, 0), http.StatusOK},
		{"no token", "GET", "/tables", nil, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := doRequest(t, r, tt.method, tt.path, tt.body, tt.token); rr.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestListTables(t *testing.T) {
	_, r := setupFloor(t)
	admin := tokenFor(t, enum.RoleAdmin, 0)
	doRequest(t, r, "POST", "/tables/2/groups", map[string]int{"guests": 2}, admin)
	placeViaAPI(t, r, admin, mixedOrder(7, ""))

	rr := doRequest(t, r, "GET", "/tables", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var sessions []table.Session
	decodeBody(t, rr, &sessions)
	if len(sessions) != 2 || sessions[0].TableNumber != 2 || sessions[1].TableNumber != 7 {
		t.Fatalf("expected tables 2 and 7, got %+v", sessions)
	}
	if sessions[1].Status != table.StatusOccupied || len(sessions[1].Groups) != 1 || !sessions[1].Groups[0].Legacy {
		t.Errorf("session-less orders occupy the table under a legacy group, got %+v", sessions[1])
	}
}
