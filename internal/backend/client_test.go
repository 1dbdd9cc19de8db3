package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ordergate/internal/apperr"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k-123"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestFindUserByIdentifierMatchesUsernameOrEmail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "k-123" {
			t.Errorf("X-Api-Key = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": 0,
			"data": map[string]any{
				"list": []map[string]string{
					{"username": "alice", "email": "alice@example.com"},
					{"username": "bob", "email": "bob@example.com"},
				},
			},
		})
	}))

	user, err := client.FindUserByIdentifier(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if user.Username != "bob" {
		t.Fatalf("username = %q, want bob", user.Username)
	}

	if _, err := client.FindUserByIdentifier(context.Background(), "Alice"); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("case-sensitive match should miss, got %v", err)
	}
}

func TestCreateVerificationTicketErrorCode(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tickets/add" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" {
			t.Errorf("username = %q", body["username"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code":    7,
			"error_message": "quota exceeded",
		})
	}))

	_, err := client.CreateVerificationTicket(context.Background(), "alice")
	if !apperr.HasCode(err, apperr.CodeRemoteFailure) {
		t.Fatalf("want RemoteFailure, got %v", err)
	}
}

func TestCreateVerificationTicketReturnsID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": 0,
			"data":       map[string]string{"ticket_id": "T1"},
		})
	}))

	id, err := client.CreateVerificationTicket(context.Background(), "alice")
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if id != "T1" {
		t.Fatalf("ticket id = %q, want T1", id)
	}
}

func TestFetchOrderDecodesCard(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": 0,
			"data": map[string]any{
				"id":           42,
				"service_name": "Widget polishing",
				"status":       "In progress",
				"quantity":     100,
				"remains":      40,
				"created":      "2026-08-01 10:00:00",
				"link":         "",
			},
		})
	}))

	order, err := client.FetchOrder(context.Background(), "42")
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if order.ID != 42 || order.ServiceName != "Widget polishing" || order.Remains != 40 {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestFetchOrderNotFoundStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.FetchOrder(context.Background(), "999")
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestResolveTicketHTTPFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.ResolveTicket(context.Background(), "T1", "resolved", "done")
	if !apperr.HasCode(err, apperr.CodeRemoteFailure) {
		t.Fatalf("want RemoteFailure, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "", APIKey: "k"}); err == nil {
		t.Fatal("empty url should fail")
	}
	if _, err := NewClient(Config{BaseURL: "http://api.example.com", APIKey: " "}); err == nil {
		t.Fatal("empty key should fail")
	}
	if _, err := NewClient(Config{BaseURL: "not a url", APIKey: "k"}); err == nil {
		t.Fatal("invalid url should fail")
	}
}
