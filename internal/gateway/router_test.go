package gateway

import (
	"context"
	"strings"
	"testing"

	"ordergate/internal/apperr"
	"ordergate/internal/backend"
)

type fakeOrders struct {
	order backend.Order
	err   error
	calls []string
}

func (f *fakeOrders) FetchOrder(_ context.Context, orderID string) (backend.Order, error) {
	f.calls = append(f.calls, orderID)
	if f.err != nil {
		return backend.Order{}, f.err
	}
	return f.order, nil
}

func TestRouteHelpIncludesUsername(t *testing.T) {
	r := NewRouter(&fakeOrders{})
	reply, err := r.Route(context.Background(), "alice", "/HELP")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(reply, "alice") {
		t.Fatalf("help should name the user, got %q", reply)
	}
}

func TestRouteOrderMissingID(t *testing.T) {
	orders := &fakeOrders{}
	r := NewRouter(orders)
	reply, err := r.Route(context.Background(), "alice", "/order")
	if !apperr.HasCode(err, apperr.CodeInvalidInput) {
		t.Fatalf("want InvalidInput, got %v", err)
	}
	if reply != MsgOrderUsage {
		t.Fatalf("reply = %q", reply)
	}
	if len(orders.calls) != 0 {
		t.Fatal("backend must not be called without an id")
	}
}

func TestRouteOrderCard(t *testing.T) {
	orders := &fakeOrders{order: backend.Order{
		ID:          42,
		ServiceName: "Widget polishing",
		Status:      "Completed",
		Quantity:    100,
		Remains:     0,
		Created:     "2026-08-01 10:00:00",
	}}
	r := NewRouter(orders)

	reply, err := r.Route(context.Background(), "alice", "/Order 42 trailing junk")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	for _, want := range []string{"Order #42", "Widget polishing", "Completed", "Quantity: 100", "Remaining: 0", "2026-08-01 10:00:00", "Link: n/a"} {
		if !strings.Contains(reply, want) {
			t.Errorf("card missing %q:\n%s", want, reply)
		}
	}
	if len(orders.calls) != 1 || orders.calls[0] != "42" {
		t.Fatalf("calls = %v", orders.calls)
	}
}

func TestRouteOrderBackendFailure(t *testing.T) {
	orders := &fakeOrders{err: apperr.New(apperr.CodeRemoteFailure, "application error")}
	r := NewRouter(orders)

	reply, err := r.Route(context.Background(), "alice", "/order 999")
	if err == nil {
		t.Fatal("expected an error for logging")
	}
	if reply != MsgOrderFailed {
		t.Fatalf("reply = %q", reply)
	}

	// Not-found renders exactly the same generic failure.
	orders.err = apperr.New(apperr.CodeNotFound, "resource not found")
	reply, _ = r.Route(context.Background(), "alice", "/order 999")
	if reply != MsgOrderFailed {
		t.Fatalf("not-found reply = %q", reply)
	}
}

func TestRouteDefaultGreeting(t *testing.T) {
	r := NewRouter(&fakeOrders{})
	reply, err := r.Route(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(reply, "alice") {
		t.Fatalf("greeting should name the user, got %q", reply)
	}
}
