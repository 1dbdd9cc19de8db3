package telegram

import (
	"os"
	"testing"

	"ordergate/core/logger"
	"ordergate/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func noopHandler(tele.Context) error { return nil }

func TestRegisterCommandValidation(t *testing.T) {
	reg := NewRegistry()

	reg.RegisterCommand("", commands.Command{Handler: noopHandler, Description: "x"})
	reg.RegisterCommand("/nil", commands.Command{Description: "x"})
	reg.RegisterCommand("/nodesc", commands.Command{Handler: noopHandler})
	reg.RegisterCommand("noslash", commands.Command{Handler: noopHandler, Description: "x"})
	if len(reg.Commands()) != 0 {
		t.Fatalf("invalid registrations accepted: %v", reg.Commands())
	}

	reg.RegisterCommand("/ok", commands.Command{Handler: noopHandler, Description: "first"})
	reg.RegisterCommand("/ok", commands.Command{Handler: noopHandler, Description: "second"})
	got := reg.Commands()
	if len(got) != 1 {
		t.Fatalf("commands = %v, want single /ok entry", got)
	}
	if got["/ok"].Description != "first" {
		t.Fatalf("duplicate registration overwrote the original: %q", got["/ok"].Description)
	}
}

func TestListCommandsSortedAndFiltered(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/order", commands.Command{Handler: noopHandler, Description: "Check order status"})
	reg.RegisterCommand("/help", commands.Command{Handler: noopHandler, Description: "Show help"})
	reg.RegisterCommand("/debug", commands.Command{Handler: noopHandler, Description: "Internal", Hidden: true})

	visible := reg.ListCommands(true)
	if len(visible) != 2 {
		t.Fatalf("visible commands = %v, want 2", visible)
	}
	if visible[0].Text != "/help" || visible[1].Text != "/order" {
		t.Fatalf("commands not sorted: %v", visible)
	}

	all := reg.ListCommands(false)
	if len(all) != 3 {
		t.Fatalf("all commands = %v, want 3", all)
	}
}
