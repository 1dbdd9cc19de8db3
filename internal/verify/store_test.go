package verify

import (
	"testing"
	"time"
)

func TestStoreExactlyOneStatePerPhone(t *testing.T) {
	s := NewStore()
	issued := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := s.VerifiedUsername("555"); ok {
		t.Fatal("fresh store should hold no verified entry")
	}
	if _, ok := s.Pending("555"); ok {
		t.Fatal("fresh store should hold no pending entry")
	}

	s.BeginPending("555", "alice", "482913", issued)
	if _, ok := s.Pending("555"); !ok {
		t.Fatal("pending entry missing after BeginPending")
	}
	if _, ok := s.VerifiedUsername("555"); ok {
		t.Fatal("phone must not be pending and verified at once")
	}

	p, ok := s.CompletePending("555")
	if !ok || p.Username != "alice" {
		t.Fatalf("CompletePending = %+v, %v", p, ok)
	}
	if _, ok := s.Pending("555"); ok {
		t.Fatal("pending entry must be gone after completion")
	}
	username, ok := s.VerifiedUsername("555")
	if !ok || username != "alice" {
		t.Fatalf("VerifiedUsername = %q, %v", username, ok)
	}
}

func TestBeginPendingOverwritesAndReturnsPrev(t *testing.T) {
	s := NewStore()
	issued := time.Now()

	if _, had := s.BeginPending("555", "alice", "111111", issued); had {
		t.Fatal("no prior entry expected")
	}
	prev, had := s.BeginPending("555", "bob", "222222", issued.Add(time.Minute))
	if !had {
		t.Fatal("prior entry should be reported")
	}
	if prev.Username != "alice" || prev.Code != "111111" {
		t.Fatalf("prev = %+v", prev)
	}
	p, _ := s.Pending("555")
	if p.Username != "bob" || p.Code != "222222" {
		t.Fatalf("current = %+v", p)
	}
}

func TestExpirePendingLeavesNoVerifiedEntry(t *testing.T) {
	s := NewStore()
	s.BeginPending("555", "alice", "482913", time.Now())

	p, ok := s.ExpirePending("555")
	if !ok || p.Username != "alice" {
		t.Fatalf("ExpirePending = %+v, %v", p, ok)
	}
	if _, ok := s.Pending("555"); ok {
		t.Fatal("pending entry should be removed")
	}
	if _, ok := s.VerifiedUsername("555"); ok {
		t.Fatal("expiry must not create a verified entry")
	}
	if _, ok := s.ExpirePending("555"); ok {
		t.Fatal("second expire should report absence")
	}
}

func TestExpireOlderThanSweepsOnlyStaleEntries(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
	s.BeginPending("old", "alice", "111111", now.Add(-11*time.Minute))
	s.BeginPending("fresh", "bob", "222222", now.Add(-2*time.Minute))

	expired := s.ExpireOlderThan(now.Add(-10 * time.Minute))
	if len(expired) != 1 || expired[0].Phone != "old" {
		t.Fatalf("expired = %+v", expired)
	}
	if _, ok := s.Pending("fresh"); !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestTakePendingTicketReadsThenRemoves(t *testing.T) {
	s := NewStore()
	s.SetPendingTicket("alice", "T1")

	ticketID, ok := s.TakePendingTicket("alice")
	if !ok || ticketID != "T1" {
		t.Fatalf("TakePendingTicket = %q, %v", ticketID, ok)
	}
	if _, ok := s.TakePendingTicket("alice"); ok {
		t.Fatal("second take should report absence")
	}
}
