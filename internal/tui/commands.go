package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Actions is the orchestrator surface driven by the TUI.
type Actions interface {
	Connect(ctx context.Context)
	Disconnect()
	SendMessage(ctx context.Context, text string)
	AbortRun(ctx context.Context)
	StartNewSession(ctx context.Context)
	ChangeSessionKey(ctx context.Context, key string)
	SelectModel(ctx context.Context, ref string)
	RefreshHistory(ctx context.Context)
	ApplySetupCode(ctx context.Context, code string)
	SetCamera(ctx context.Context, enabled bool)
	SetLocation(ctx context.Context, enabled bool)
	SetVoiceWake(ctx context.Context, enabled bool)
	SetTalk(ctx context.Context, enabled bool)
}

var errUsage = errors.New("usage")

// command is one parsed line of input. A zero-name command is a chat message.
type command struct {
	name string
	arg  string
	on   bool
}

const helpText = "/abort /new /session <key> /model <provider/id> /camera|/location|/voicewake|/talk on|off /refresh /connect /disconnect /setup <code> /quit"

// parseCommand interprets a line of input. Lines that do not name a local
// command are sent as chat messages, so gateway-side slash commands still
// work.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "abort", "new", "refresh", "connect", "disconnect", "quit", "help":
		return command{name: name}, nil
	case "session", "model", "setup":
		if arg == "" {
			return command{}, fmt.Errorf("%w: /%s <value>", errUsage, name)
		}
		return command{name: name, arg: arg}, nil
	case "camera", "location", "voicewake", "talk":
		switch strings.ToLower(arg) {
		case "on", "true", "1":
			return command{name: name, on: true}, nil
		case "off", "false", "0":
			return command{name: name}, nil
		}
		return command{}, fmt.Errorf("%w: /%s on|off", errUsage, name)
	}
	return command{arg: line}, nil
}

// run executes c against a. quit and help are handled by the model.
func (c command) run(ctx context.Context, a Actions) {
	switch c.name {
	case "":
		a.SendMessage(ctx, c.arg)
	case "abort":
		a.AbortRun(ctx)
	case "new":
		a.StartNewSession(ctx)
	case "refresh":
		a.RefreshHistory(ctx)
	case "connect":
		a.Connect(ctx)
	case "disconnect":
		a.Disconnect()
	case "session":
		a.ChangeSessionKey(ctx, c.arg)
	case "model":
		a.SelectModel(ctx, c.arg)
	case "setup":
		a.ApplySetupCode(ctx, c.arg)
	case "camera":
		a.SetCamera(ctx, c.on)
	case "location":
		a.SetLocation(ctx, c.on)
	case "voicewake":
		a.SetVoiceWake(ctx, c.on)
	case "talk":
		a.SetTalk(ctx, c.on)
	}
}
