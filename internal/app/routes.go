package app

import (
	"fmt"
	"strconv"
	"time"

	"ordergate/core/logger"
	"ordergate/core/telegram/helpers"
	"ordergate/core/telegram/keyboard"
	"ordergate/core/telegram/middleware"
	"ordergate/internal/apperr"
	"ordergate/internal/gateway"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const (
	msgWelcome = "Welcome! Please send your username or email to verify your account."

	msgVerifyFirst = "Please verify your account first. Send your username or email to begin."
)

func menuMarkup() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{"/help", "/order"})
}

func senderID(c tele.Context) string {
	if c.Sender() == nil {
		return ""
	}
	return strconv.FormatInt(c.Sender().ID, 10)
}

func isGroup(c tele.Context) bool {
	return c.Chat() != nil && c.Chat().Type != tele.ChatPrivate
}

// handleStart greets the sender. Verified senders get the command menu,
// everyone else is asked for an identifier.
func (a *App) handleStart(c tele.Context) error {
	if isGroup(c) {
		return nil
	}
	helpers.WithHandler(c, "start")
	start := time.Now()

	var err error
	if username, ok := a.verifier.VerifiedUsername(senderID(c)); ok {
		text := fmt.Sprintf("Hi %s! Use /order <id> to check an order or /help for the command list.", username)
		err = helpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: menuMarkup()})
	} else {
		err = helpers.SendText(c, msgWelcome)
	}
	a.logDone(c, "start", start, err)
	return err
}

// handleCommand covers registered commands from verified senders by routing
// the full message through the gateway; unverified senders are told to
// verify first instead of having the command text treated as an identifier.
func (a *App) handleCommand(c tele.Context) error {
	if isGroup(c) {
		return nil
	}
	if _, ok := a.verifier.VerifiedUsername(senderID(c)); !ok {
		helpers.WithHandler(c, "command")
		start := time.Now()
		err := helpers.SendText(c, msgVerifyFirst)
		a.logDone(c, "command", start, err)
		return err
	}
	return a.dispatch(c, "command")
}

// handleText is the catch-all route for plain text: identifier submissions,
// one-time codes, and anything a verified sender types outside the menu.
func (a *App) handleText(c tele.Context) error {
	return a.dispatch(c, "text")
}

func (a *App) dispatch(c tele.Context, handler string) error {
	ctx := helpers.WithHandler(c, handler)
	start := time.Now()

	reply, err := a.gateway.Handle(ctx, gateway.Inbound{
		SenderID: senderID(c),
		Text:     c.Text(),
		IsGroup:  isGroup(c),
	})

	var sendErr error
	if reply.Text != "" {
		if reply.ShowMenu {
			sendErr = helpers.SendText(c, reply.Text, &tele.SendOptions{ReplyMarkup: menuMarkup()})
		} else {
			sendErr = helpers.SendText(c, reply.Text)
		}
	}
	if err == nil {
		err = sendErr
	}
	a.logDone(c, handler, start, err)
	return sendErr
}

// logDone emits the single per-update handler summary line.
func (a *App) logDone(c tele.Context, handler string, start time.Time, err error) {
	msgs, kb := middleware.GetCounters(c)
	attrs := []slog.Attr{
		slog.String("handler", handler),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
		slog.Int("messages", msgs),
	}
	if kb {
		attrs = append(attrs, slog.Bool("kb", true))
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err_code", apperr.CodeOf(err)),
			slog.String("err", err.Error()),
		)
	}
	ctx := helpers.BuildContext(c)
	logger.LogEvent(ctx, logger.Component("tg.handler"), level, "handler.done", attrs...)
}
