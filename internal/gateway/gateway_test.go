package gateway

import (
	"context"
	"strings"
	"sync"
	"testing"

	"ordergate/internal/apperr"
	"ordergate/internal/backend"
	"ordergate/internal/verify"
)

type stubBackend struct {
	mu      sync.Mutex
	users   []backend.User
	tickets int
}

func (s *stubBackend) FindUserByIdentifier(_ context.Context, identifier string) (backend.User, error) {
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return backend.User{}, apperr.New(apperr.CodeNotFound, "user not found")
}

func (s *stubBackend) CreateVerificationTicket(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets++
	return "T1", nil
}

func (s *stubBackend) ResolveTicket(_ context.Context, _, _, _ string) error { return nil }

func newTestGateway(users ...backend.User) (*Gateway, *verify.Service) {
	store := verify.NewStore()
	svc := verify.NewService(store, &stubBackend{users: users}, verify.Options{})
	gw := New(svc, NewRouter(&fakeOrders{order: backend.Order{ID: 1}}))
	return gw, svc
}

func TestHandleIgnoresGroupAndEmptyMessages(t *testing.T) {
	gw, _ := newTestGateway()

	reply, err := gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "alice", IsGroup: true})
	if err != nil || reply.Text != "" {
		t.Fatalf("group message: reply=%+v err=%v", reply, err)
	}
	reply, err = gw.Handle(context.Background(), Inbound{SenderID: "555", Text: ""})
	if err != nil || reply.Text != "" {
		t.Fatalf("empty message: reply=%+v err=%v", reply, err)
	}
}

func TestHandleFullVerificationFlow(t *testing.T) {
	gw, svc := newTestGateway(backend.User{Username: "alice", Email: "alice@example.com"})

	reply, err := gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "alice"})
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	code := extractCode(t, reply.Text)

	reply, err = gw.Handle(context.Background(), Inbound{SenderID: "555", Text: code})
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if !reply.ShowMenu {
		t.Fatal("verification success should request the menu keyboard")
	}
	if username, ok := svc.VerifiedUsername("555"); !ok || username != "alice" {
		t.Fatalf("verified = %q, %v", username, ok)
	}

	// Once verified, plain text goes to the command router.
	reply, err = gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "hi"})
	if err != nil {
		t.Fatalf("routed text: %v", err)
	}
	if !strings.Contains(reply.Text, "alice") {
		t.Fatalf("greeting = %q", reply.Text)
	}
}

func TestHandleNonCodeTextWhilePendingRestartsVerification(t *testing.T) {
	gw, svc := newTestGateway(
		backend.User{Username: "alice"},
		backend.User{Username: "carol"},
	)

	if _, err := gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "alice"}); err != nil {
		t.Fatalf("first identifier: %v", err)
	}
	// A non-6-digit message while pending is a fresh identifier submission.
	reply, err := gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "carol"})
	if err != nil {
		t.Fatalf("second identifier: %v", err)
	}
	if !strings.Contains(reply.Text, "verification code") {
		t.Fatalf("reply = %q", reply.Text)
	}
	if !svc.HasPending("555") {
		t.Fatal("phone should still be pending")
	}
}

func TestHandleCodeShapedTextWithoutPending(t *testing.T) {
	// With no pending entry a 6-digit string is identifier-shaped input and
	// goes through the lookup, which misses.
	gw, _ := newTestGateway()

	reply, err := gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "482913"})
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
	if !strings.Contains(strings.ToLower(reply.Text), "not found") {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestHandleSerializesSameSender(t *testing.T) {
	gw, _ := newTestGateway(backend.User{Username: "alice"})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = gw.Handle(context.Background(), Inbound{SenderID: "555", Text: "alice"})
		}()
	}
	wg.Wait()
	// The race detector is the real assertion here; the store must also
	// still hold exactly one pending entry for the sender.
	if !gw.verifier.HasPending("555") {
		t.Fatal("sender should be pending after concurrent submissions")
	}
}

func extractCode(t *testing.T, text string) string {
	t.Helper()
	for _, field := range strings.Fields(text) {
		if verify.IsCodeShaped(field) {
			return field
		}
	}
	t.Fatalf("no code found in reply %q", text)
	return ""
}
