package gateway

import (
	"context"
	"fmt"
	"strings"

	"ordergate/internal/apperr"
	"ordergate/internal/backend"
)

// OrderFetcher is the slice of the API client the command router depends on.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (backend.Order, error)
}

// MsgOrderUsage is the reply to /order without an order id.
const MsgOrderUsage = "Usage: /order <id>"

// MsgOrderFailed covers every backend failure while fetching an order,
// including unknown order ids.
const MsgOrderFailed = "Could not fetch that order right now. Please check the id and try again later."

// Router parses the post-verification command grammar and dispatches to the
// backend. It is only reachable once the sender is verified.
type Router struct {
	orders OrderFetcher
}

// NewRouter returns a command router backed by the given order fetcher.
func NewRouter(orders OrderFetcher) *Router {
	return &Router{orders: orders}
}

// Route handles one message from a verified sender and returns the reply.
// Commands are matched case-insensitively on the first whitespace-delimited
// token; anything unrecognized gets the default greeting.
func (r *Router) Route(ctx context.Context, username, text string) (string, error) {
	fields := strings.Fields(text)
	command := ""
	if len(fields) > 0 {
		command = strings.ToLower(fields[0])
	}

	switch command {
	case "/help":
		return r.helpText(username), nil
	case "/order":
		if len(fields) < 2 {
			return MsgOrderUsage, apperr.New(apperr.CodeInvalidInput, "missing order id")
		}
		return r.orderCard(ctx, fields[1])
	default:
		return fmt.Sprintf("Hi %s! Send /order <id> to check an order or /help for help.", username), nil
	}
}

func (r *Router) helpText(username string) string {
	return fmt.Sprintf(
		"Help for %s:\n/order <id> - show the status of an order\n/help - show this message\n\nAnything else shows the menu.",
		username,
	)
}

func (r *Router) orderCard(ctx context.Context, orderID string) (string, error) {
	order, err := r.orders.FetchOrder(ctx, orderID)
	if err != nil {
		return MsgOrderFailed, fmt.Errorf("fetch order %s: %w", orderID, err)
	}

	link := order.Link
	if link == "" {
		link = "n/a"
	}
	card := fmt.Sprintf(
		"Order #%d\nService: %s\nStatus: %s\nQuantity: %d\nRemaining: %d\nCreated: %s\nLink: %s",
		order.ID, order.ServiceName, order.Status, order.Quantity, order.Remains, order.Created, link,
	)
	return card, nil
}
