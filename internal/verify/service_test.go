package verify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ordergate/internal/apperr"
	"ordergate/internal/backend"
)

type ticketUpdate struct {
	TicketID string
	Status   string
}

type fakeBackend struct {
	mu      sync.Mutex
	users   []backend.User
	nextID  string
	addErr  error
	findErr error

	created []string
	updates []ticketUpdate
}

func (f *fakeBackend) FindUserByIdentifier(_ context.Context, identifier string) (backend.User, error) {
	if f.findErr != nil {
		return backend.User{}, f.findErr
	}
	for _, u := range f.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return backend.User{}, apperr.New(apperr.CodeNotFound, "user not found")
}

func (f *fakeBackend) CreateVerificationTicket(_ context.Context, username string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, username)
	return f.nextID, nil
}

func (f *fakeBackend) ResolveTicket(_ context.Context, ticketID, status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, ticketUpdate{TicketID: ticketID, Status: status})
	return nil
}

func (f *fakeBackend) updatesSnapshot() []ticketUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ticketUpdate(nil), f.updates...)
}

func newTestService(b Backend) (*Service, *Store) {
	store := NewStore()
	svc := NewService(store, b, Options{})
	svc.newCode = func() (string, error) { return "482913", nil }
	return svc, store
}

func TestVerificationHappyPath(t *testing.T) {
	fb := &fakeBackend{
		users:  []backend.User{{Username: "alice", Email: "alice@example.com"}},
		nextID: "T1",
	}
	svc, store := newTestService(fb)
	issued := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	reply, err := svc.SubmitIdentifier(context.Background(), "555", "alice")
	if err != nil {
		t.Fatalf("submit identifier: %v", err)
	}
	if !strings.Contains(reply, "482913") {
		t.Fatalf("reply should carry the code, got %q", reply)
	}
	if !svc.HasPending("555") {
		t.Fatal("phone should be pending")
	}

	// Nine minutes later the code is still inside the window.
	svc.now = func() time.Time { return issued.Add(9 * time.Minute) }
	reply, verified, err := svc.SubmitCode(context.Background(), "555", "482913")
	if err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if !verified {
		t.Fatal("code match should verify the phone")
	}
	if !strings.Contains(reply, "alice") {
		t.Fatalf("success reply should name the user, got %q", reply)
	}
	username, ok := store.VerifiedUsername("555")
	if !ok || username != "alice" {
		t.Fatalf("verified username = %q, %v", username, ok)
	}

	svc.Close()
	updates := fb.updatesSnapshot()
	if len(updates) != 1 || updates[0].TicketID != "T1" || updates[0].Status != TicketStatusResolved {
		t.Fatalf("ticket updates = %+v", updates)
	}
}

func TestSubmitIdentifierNotFoundLeavesUnknown(t *testing.T) {
	fb := &fakeBackend{nextID: "T1"}
	svc, _ := newTestService(fb)

	reply, err := svc.SubmitIdentifier(context.Background(), "555", "bob")
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
	if !strings.Contains(strings.ToLower(reply), "not found") {
		t.Fatalf("reply = %q", reply)
	}
	if svc.HasPending("555") {
		t.Fatal("no pending entry may exist after a failed lookup")
	}
	if len(fb.created) != 0 {
		t.Fatalf("no ticket should be created, got %v", fb.created)
	}
}

func TestSubmitIdentifierTicketFailureLeavesUnknown(t *testing.T) {
	fb := &fakeBackend{
		users:  []backend.User{{Username: "alice"}},
		addErr: apperr.Wrap(apperr.CodeRemoteFailure, "application error", errors.New("error_code=3")),
	}
	svc, _ := newTestService(fb)

	reply, err := svc.SubmitIdentifier(context.Background(), "555", "alice")
	if !apperr.HasCode(err, apperr.CodeRemoteFailure) {
		t.Fatalf("want RemoteFailure, got %v", err)
	}
	if reply != MsgTryLater {
		t.Fatalf("reply = %q", reply)
	}
	if svc.HasPending("555") {
		t.Fatal("no partial pending state may be stored on failure")
	}
}

func TestSubmitCodeMismatchKeepsPendingEntry(t *testing.T) {
	fb := &fakeBackend{users: []backend.User{{Username: "alice"}}, nextID: "T1"}
	svc, store := newTestService(fb)

	if _, err := svc.SubmitIdentifier(context.Background(), "555", "alice"); err != nil {
		t.Fatalf("submit identifier: %v", err)
	}
	reply, verified, err := svc.SubmitCode(context.Background(), "555", "000000")
	if err != nil || verified {
		t.Fatalf("mismatch: verified=%v err=%v", verified, err)
	}
	if reply != MsgInvalidCode {
		t.Fatalf("reply = %q", reply)
	}
	if _, ok := store.Pending("555"); !ok {
		t.Fatal("pending entry must survive a mismatch")
	}

	// Retry with the right code still succeeds.
	if _, verified, err := svc.SubmitCode(context.Background(), "555", "482913"); err != nil || !verified {
		t.Fatalf("retry: verified=%v err=%v", verified, err)
	}
}

func TestSubmitCodeExpiryBoundary(t *testing.T) {
	fb := &fakeBackend{users: []backend.User{{Username: "alice"}}, nextID: "T1"}
	svc, store := newTestService(fb)
	issued := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if _, err := svc.SubmitIdentifier(context.Background(), "555", "alice"); err != nil {
		t.Fatalf("submit identifier: %v", err)
	}

	// Exactly at the TTL the code must already be rejected.
	svc.now = func() time.Time { return issued.Add(10 * time.Minute) }
	reply, verified, err := svc.SubmitCode(context.Background(), "555", "482913")
	if !apperr.HasCode(err, apperr.CodeExpiredState) {
		t.Fatalf("want ExpiredState, got %v", err)
	}
	if verified || reply != MsgExpired {
		t.Fatalf("verified=%v reply=%q", verified, reply)
	}
	if _, ok := store.Pending("555"); ok {
		t.Fatal("expired entry must be removed")
	}
	if _, ok := store.VerifiedUsername("555"); ok {
		t.Fatal("expiry must not verify the phone")
	}

	svc.Close()
	updates := fb.updatesSnapshot()
	if len(updates) != 1 || updates[0].Status != TicketStatusCancelled {
		t.Fatalf("expired ticket should be cancelled, got %+v", updates)
	}
}

func TestSubmitCodeWithoutPendingEntry(t *testing.T) {
	svc, _ := newTestService(&fakeBackend{})

	reply, verified, err := svc.SubmitCode(context.Background(), "555", "482913")
	if !apperr.HasCode(err, apperr.CodeNoActiveSession) {
		t.Fatalf("want NoActiveSession, got %v", err)
	}
	if verified || reply != MsgNoActive {
		t.Fatalf("verified=%v reply=%q", verified, reply)
	}
}

func TestResubmissionCancelsSupersededTicket(t *testing.T) {
	fb := &fakeBackend{
		users:  []backend.User{{Username: "alice"}, {Username: "carol"}},
		nextID: "T1",
	}
	svc, store := newTestService(fb)

	if _, err := svc.SubmitIdentifier(context.Background(), "555", "alice"); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	fb.nextID = "T2"
	if _, err := svc.SubmitIdentifier(context.Background(), "555", "carol"); err != nil {
		t.Fatalf("second submission: %v", err)
	}

	p, ok := store.Pending("555")
	if !ok || p.Username != "carol" {
		t.Fatalf("pending = %+v, %v", p, ok)
	}

	svc.Close()
	updates := fb.updatesSnapshot()
	if len(updates) != 1 || updates[0].TicketID != "T1" || updates[0].Status != TicketStatusCancelled {
		t.Fatalf("superseded ticket should be cancelled, got %+v", updates)
	}

	ticketID, ok := store.TakePendingTicket("carol")
	if !ok || ticketID != "T2" {
		t.Fatalf("current ticket = %q, %v", ticketID, ok)
	}
}

func TestSweepExpiredCancelsTickets(t *testing.T) {
	fb := &fakeBackend{users: []backend.User{{Username: "alice"}}, nextID: "T1"}
	svc, store := newTestService(fb)
	issued := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if _, err := svc.SubmitIdentifier(context.Background(), "555", "alice"); err != nil {
		t.Fatalf("submit identifier: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(11 * time.Minute) }
	if n := svc.SweepExpired(context.Background()); n != 1 {
		t.Fatalf("swept %d entries, want 1", n)
	}
	if _, ok := store.Pending("555"); ok {
		t.Fatal("swept entry must be gone")
	}

	svc.Close()
	updates := fb.updatesSnapshot()
	if len(updates) != 1 || updates[0].Status != TicketStatusCancelled {
		t.Fatalf("sweep should cancel the ticket, got %+v", updates)
	}
}

func TestSubmitCodeRacingSweepDoesNotVerify(t *testing.T) {
	fb := &fakeBackend{users: []backend.User{{Username: "alice"}}, nextID: "T1"}
	svc, store := newTestService(fb)
	issued := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	if _, err := svc.SubmitIdentifier(context.Background(), "555", "alice"); err != nil {
		t.Fatalf("submit identifier: %v", err)
	}

	// The expiry check reads the clock after the pending entry is loaded.
	// Piggyback on that call to remove the entry the way a concurrent sweep
	// tick would, then report a time still inside the window so only the
	// commit can notice the entry is gone.
	svc.now = func() time.Time {
		store.ExpireOlderThan(issued.Add(time.Minute))
		return issued.Add(9 * time.Minute)
	}

	reply, verified, err := svc.SubmitCode(context.Background(), "555", "482913")
	if verified {
		t.Fatal("a submission losing to the sweep must not verify")
	}
	if !apperr.HasCode(err, apperr.CodeExpiredState) {
		t.Fatalf("want ExpiredState, got %v", err)
	}
	if reply != MsgExpired {
		t.Fatalf("reply = %q", reply)
	}
	if _, ok := store.VerifiedUsername("555"); ok {
		t.Fatal("no verified entry may exist")
	}

	svc.Close()
	for _, u := range fb.updatesSnapshot() {
		if u.Status == TicketStatusResolved {
			t.Fatalf("ticket must not be resolved, got %+v", u)
		}
	}
}
