// Package verify implements the verification state machine: it drives each
// phone through unknown -> pending -> verified, owns the session store and
// one-time codes, and interlocks with the backend ticket lifecycle.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ordergate/core/logger"
	"ordergate/internal/apperr"
	"ordergate/internal/backend"
)

const (
	// DefaultCodeTTL bounds how long a one-time code stays valid.
	DefaultCodeTTL = 10 * time.Minute

	defaultResolveTimeout = 10 * time.Second

	// TicketStatusResolved marks tickets of completed verifications.
	TicketStatusResolved = "resolved"
	// TicketStatusCancelled marks tickets orphaned by expiry or re-submission.
	TicketStatusCancelled = "cancelled"
)

// User-facing replies. One outbound message per inbound message; backend
// failure details stay in logs.
const (
	MsgNotFound    = "Account not found. Please check your username or email and try again."
	MsgTryLater    = "Something went wrong on our side. Please try again later."
	MsgInvalidCode = "Invalid code, try again."
	MsgExpired     = "Your code has expired. Please send your username or email to start over."
	MsgNoActive    = "You have no active verification request. Please send your username or email to start over."
)

// Backend is the slice of the API client the state machine depends on.
type Backend interface {
	FindUserByIdentifier(ctx context.Context, identifier string) (backend.User, error)
	CreateVerificationTicket(ctx context.Context, username string) (string, error)
	ResolveTicket(ctx context.Context, ticketID, status, message string) error
}

// Options tune the state machine.
type Options struct {
	// CodeTTL is the validity window of a one-time code; 0 means DefaultCodeTTL.
	CodeTTL time.Duration
	// ResolveTimeout bounds each asynchronous ticket update call.
	ResolveTimeout time.Duration
}

// Service orchestrates the session store, code generator, and backend client.
type Service struct {
	store          *Store
	backend        Backend
	codeTTL        time.Duration
	resolveTimeout time.Duration

	// Injection points for tests.
	now     func() time.Time
	newCode func() (string, error)

	wg sync.WaitGroup
}

// NewService wires a state machine around the given store and backend.
func NewService(store *Store, b Backend, opts Options) *Service {
	ttl := opts.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	resolveTimeout := opts.ResolveTimeout
	if resolveTimeout <= 0 {
		resolveTimeout = defaultResolveTimeout
	}
	return &Service{
		store:          store,
		backend:        b,
		codeTTL:        ttl,
		resolveTimeout: resolveTimeout,
		now:            time.Now,
		newCode:        GenerateCode,
	}
}

// CodeTTL returns the configured code validity window.
func (s *Service) CodeTTL() time.Duration {
	return s.codeTTL
}

// VerifiedUsername returns the confirmed username for a phone, if any.
func (s *Service) VerifiedUsername(phone string) (string, bool) {
	return s.store.VerifiedUsername(phone)
}

// HasPending reports whether the phone has an in-flight verification.
func (s *Service) HasPending(phone string) bool {
	_, ok := s.store.Pending(phone)
	return ok
}

// SubmitIdentifier handles an identifier submission from an unverified phone.
// On success the phone moves to pending and the reply carries the one-time
// code. Any lookup or ticket failure leaves the phone unchanged; no partial
// pending state is ever stored.
func (s *Service) SubmitIdentifier(ctx context.Context, phone, identifier string) (string, error) {
	user, err := s.backend.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return MsgNotFound, fmt.Errorf("submit identifier: %w", err)
		}
		return MsgTryLater, fmt.Errorf("submit identifier: %w", err)
	}

	ticketID, err := s.backend.CreateVerificationTicket(ctx, user.Username)
	if err != nil {
		return MsgTryLater, fmt.Errorf("create verification ticket: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		// The ticket is already open but no pending entry exists; close it
		// so it does not linger.
		s.finishTicketAsync(ctx, ticketID, TicketStatusCancelled, "Verification aborted.")
		return MsgTryLater, fmt.Errorf("generate code: %w", err)
	}

	prev, superseded := s.store.BeginPending(phone, user.Username, code, s.now())
	if superseded {
		if prevTicket, ok := s.store.TakePendingTicket(prev.Username); ok {
			s.finishTicketAsync(ctx, prevTicket, TicketStatusCancelled, "Superseded by a new verification request.")
		}
	}
	s.store.SetPendingTicket(user.Username, ticketID)

	logger.Info(ctx, "verify", "pending.begin",
		slog.String("status", "ok"),
		slog.String("ticket_id", ticketID),
		slog.Bool("superseded", superseded),
	)

	minutes := int(s.codeTTL / time.Minute)
	return fmt.Sprintf("Your verification code: %s\n\nReply with this code within %d minutes to confirm your account.", code, minutes), nil
}

// SubmitCode handles a 6-digit code submission for a pending phone. verified
// reports whether the phone just reached the terminal state. The verification
// commit is authoritative the moment the code matches; ticket resolution runs
// asynchronously and its failure never downgrades the outcome.
func (s *Service) SubmitCode(ctx context.Context, phone, code string) (reply string, verified bool, err error) {
	p, ok := s.store.Pending(phone)
	if !ok {
		return MsgNoActive, false, apperr.New(apperr.CodeNoActiveSession, "no pending verification")
	}

	if s.now().Sub(p.IssuedAt) >= s.codeTTL {
		s.store.ExpirePending(phone)
		if ticketID, ok := s.store.TakePendingTicket(p.Username); ok {
			s.finishTicketAsync(ctx, ticketID, TicketStatusCancelled, "Verification code expired.")
		}
		return MsgExpired, false, apperr.New(apperr.CodeExpiredState, "verification code expired")
	}

	if code != p.Code {
		// Entry stays; the user may retry until expiry.
		return MsgInvalidCode, false, nil
	}

	// The sweep may remove the entry between the read above and the commit;
	// the commit result is authoritative, not the earlier read.
	committed, ok := s.store.CompletePending(phone)
	if !ok {
		return MsgExpired, false, apperr.New(apperr.CodeExpiredState, "verification code expired")
	}
	if ticketID, ok := s.store.TakePendingTicket(committed.Username); ok {
		s.finishTicketAsync(ctx, ticketID, TicketStatusResolved, "Account verified successfully.")
	}

	logger.Info(ctx, "verify", "verified",
		slog.String("status", "ok"),
	)

	return fmt.Sprintf("You are verified as %s.\n\nCommands:\n/order <id> - check an order\n/help - show help", committed.Username), true, nil
}

// SweepExpired removes every pending entry older than the code TTL and
// cancels the orphaned tickets. Correctness never depends on it; expiry is
// always re-checked on submission.
func (s *Service) SweepExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.codeTTL)
	expired := s.store.ExpireOlderThan(cutoff)
	for _, p := range expired {
		if ticketID, ok := s.store.TakePendingTicket(p.Username); ok {
			s.finishTicketAsync(ctx, ticketID, TicketStatusCancelled, "Verification code expired.")
		}
	}
	if len(expired) > 0 {
		logger.Info(ctx, "verify", "sweep.done",
			slog.String("status", "ok"),
			slog.Int("count", len(expired)),
		)
	}
	return len(expired)
}

// Close waits for in-flight asynchronous ticket updates to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// finishTicketAsync updates a ticket status in the background. The call is
// best-effort: failures are logged and never surfaced to the user.
func (s *Service) finishTicketAsync(parent context.Context, ticketID, status, message string) {
	ctx := logger.WithRID(context.Background(), logger.RIDFrom(parent))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
		if err := s.backend.ResolveTicket(callCtx, ticketID, status, message); err != nil {
			logger.Warn(ctx, "verify", "ticket.update.fail",
				slog.String("status", "fail"),
				slog.String("ticket_id", ticketID),
				slog.String("ticket_status", status),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			return
		}
		logger.Debug(ctx, "verify", "ticket.update.done",
			slog.String("status", "ok"),
			slog.String("ticket_id", ticketID),
			slog.String("ticket_status", status),
		)
	}()
}
