// Package gateway dispatches inbound channel messages: unverified senders go
// to the verification state machine, verified ones to the command router.
// Transport and backend stay behind narrow interfaces.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"ordergate/core/logger"
	"ordergate/internal/verify"
)

// Inbound is one received channel message as the core sees it.
type Inbound struct {
	SenderID string
	Text     string
	IsGroup  bool
}

// Reply is the single outbound message produced for an inbound one. An empty
// Text means no reply at all. ShowMenu asks the transport to attach the
// post-verification menu.
type Reply struct {
	Text     string
	ShowMenu bool
}

// MsgInternal is the catch-all reply when message handling panics.
const MsgInternal = "Something went wrong. Please try again."

// Gateway serializes message handling per sender and applies the dispatch
// rule: verified -> command router; pending entry plus 6-digit text -> code
// submission; other non-empty text -> identifier submission.
type Gateway struct {
	verifier *verify.Service
	router   *Router
	locks    *keyedMutex
}

// New wires a gateway around the verification service and command router.
func New(verifier *verify.Service, router *Router) *Gateway {
	return &Gateway{
		verifier: verifier,
		router:   router,
		locks:    newKeyedMutex(),
	}
}

// Handle processes one inbound message and returns the reply. Group messages
// and empty texts produce no reply. Messages from the same sender never
// interleave; a panic anywhere below is converted into a generic reply so a
// single malformed message cannot take down the handling loop.
func (g *Gateway) Handle(ctx context.Context, msg Inbound) (reply Reply, err error) {
	if msg.IsGroup || msg.Text == "" || msg.SenderID == "" {
		return Reply{}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			reply = Reply{Text: MsgInternal}
			err = fmt.Errorf("gateway: panic handling message: %v", r)
			logger.Error(ctx, "gateway", "handle.panic",
				slog.String("status", "fail"),
				slog.Any("err", r),
			)
		}
	}()

	g.locks.Lock(msg.SenderID)
	defer g.locks.Unlock(msg.SenderID)

	if username, ok := g.verifier.VerifiedUsername(msg.SenderID); ok {
		text, err := g.router.Route(ctx, username, msg.Text)
		return Reply{Text: text}, err
	}

	if g.verifier.HasPending(msg.SenderID) && verify.IsCodeShaped(msg.Text) {
		text, verified, err := g.verifier.SubmitCode(ctx, msg.SenderID, msg.Text)
		return Reply{Text: text, ShowMenu: verified}, err
	}

	text, err := g.verifier.SubmitIdentifier(ctx, msg.SenderID, msg.Text)
	return Reply{Text: text}, err
}
