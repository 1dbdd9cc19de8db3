package verify

import (
	"sync"
	"time"
)

// PendingVerification holds the state between identifier acceptance and code
// confirmation for one phone.
type PendingVerification struct {
	Phone    string
	Code     string
	Username string
	IssuedAt time.Time
}

// Store is the single source of truth for verification state. It owns three
// mappings: pending verifications and verified sessions keyed by phone, and
// outstanding verification tickets keyed by username. At any instant a phone
// holds at most one of pending or verified; verified is terminal.
type Store struct {
	mu       sync.Mutex
	pending  map[string]PendingVerification
	verified map[string]string
	tickets  map[string]string
}

// NewStore returns an empty in-memory Store.
func NewStore() *Store {
	return &Store{
		pending:  make(map[string]PendingVerification),
		verified: make(map[string]string),
		tickets:  make(map[string]string),
	}
}

// VerifiedUsername returns the confirmed username for a phone, if any.
func (s *Store) VerifiedUsername(phone string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.verified[phone]
	return username, ok
}

// BeginPending records a fresh pending verification for the phone,
// unconditionally overwriting any prior entry (last writer wins). The
// superseded entry, when present, is returned so its ticket can be cancelled.
func (s *Store) BeginPending(phone, username, code string, issuedAt time.Time) (PendingVerification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.pending[phone]
	s.pending[phone] = PendingVerification{
		Phone:    phone,
		Code:     code,
		Username: username,
		IssuedAt: issuedAt,
	}
	return prev, had
}

// Pending returns the pending verification for a phone, if any.
func (s *Store) Pending(phone string) (PendingVerification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[phone]
	return p, ok
}

// CompletePending removes the pending entry and inserts the verified entry
// under one lock so the phone is never observed in neither state.
func (s *Store) CompletePending(phone string) (PendingVerification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[phone]
	if !ok {
		return PendingVerification{}, false
	}
	delete(s.pending, phone)
	s.verified[phone] = p.Username
	return p, true
}

// ExpirePending removes the pending entry without creating a verified one.
func (s *Store) ExpirePending(phone string) (PendingVerification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[phone]
	if !ok {
		return PendingVerification{}, false
	}
	delete(s.pending, phone)
	return p, true
}

// ExpireOlderThan removes every pending entry issued before cutoff and
// returns them. Verified entries are never touched.
func (s *Store) ExpireOlderThan(cutoff time.Time) []PendingVerification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []PendingVerification
	for phone, p := range s.pending {
		if p.IssuedAt.Before(cutoff) {
			expired = append(expired, p)
			delete(s.pending, phone)
		}
	}
	return expired
}

// SetPendingTicket records the outstanding verification ticket for a
// username, overwriting any prior entry.
func (s *Store) SetPendingTicket(username, ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[username] = ticketID
}

// TakePendingTicket reads and removes the outstanding ticket for a username.
func (s *Store) TakePendingTicket(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticketID, ok := s.tickets[username]
	if ok {
		delete(s.tickets, username)
	}
	return ticketID, ok
}
