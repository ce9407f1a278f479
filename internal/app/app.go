// Package app is the operator client's composition root. It owns the state
// container, consumes gateway events on a single loop and exposes the actions
// used by the presentation layer.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/liteclaw/clawsync/internal/capability"
	"github.com/liteclaw/clawsync/internal/chatrun"
	"github.com/liteclaw/clawsync/internal/credentials"
	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/sessionkey"
	"github.com/liteclaw/clawsync/internal/state"
	"github.com/liteclaw/clawsync/pkg/utils"
)

// Request timeouts.
const (
	DefaultRequestTimeout = 15 * time.Second
	ChatSendTimeout       = 35 * time.Second
	// ChatSendServerTimeoutMs is the run timeout requested from the gateway.
	ChatSendServerTimeoutMs = 30000
)

// Transport is the gateway session driven by the app.
type Transport interface {
	Connect(ctx context.Context, opts gateway.ConnectOptions) error
	Disconnect()
	ReconnectWithCapabilities(ctx context.Context, caps []string) error
	Operator() gateway.Requester
	Events() <-chan gateway.Event
}

// Options configures an App.
type Options struct {
	Transport   Transport
	Credentials *credentials.Persistence
	Clock       clockwork.Clock
	Logger      zerolog.Logger

	// Gateway seeds the connection config before hydration.
	Gateway       state.GatewayConfig
	InstanceID    string
	DisplayName   string
	Version       string
	HistoryLimit  int
	SessionsLimit int
}

// App is the session orchestrator.
type App struct {
	store     *state.Container
	transport Transport
	creds     *credentials.Persistence
	caps      *capability.Controller
	clock     clockwork.Clock
	logger    zerolog.Logger
	opts      Options

	// configMu orders config patches against hydration. pending holds the
	// patches made before hydration completed.
	configMu sync.Mutex
	pending  []GatewayConfigPatch

	// sends counts send-like requests awaiting their acknowledgment. Only
	// touched inside store updates.
	sends int
	bg    sync.WaitGroup
}

// New creates an App. Call Start to hydrate and Run to consume events.
func New(opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 200
	}
	if opts.SessionsLimit <= 0 {
		opts.SessionsLimit = 200
	}

	logger := opts.Logger.With().Str("component", "app").Logger()
	store := state.NewContainer(state.Initial(opts.Gateway))
	return &App{
		store:     store,
		transport: opts.Transport,
		creds:     opts.Credentials,
		caps:      capability.New(store, opts.Transport, opts.Logger),
		clock:     opts.Clock,
		logger:    logger,
		opts:      opts,
	}
}

// State returns a snapshot of the current state.
func (a *App) State() state.AppState {
	return a.store.Snapshot()
}

// Subscribe returns a channel notified after every state change.
func (a *App) Subscribe() (<-chan struct{}, func()) {
	return a.store.Subscribe()
}

// NowID returns a locally unique token for send-like actions.
func (a *App) NowID(prefix string) string {
	return utils.NowID(a.clock.Now(), prefix)
}

func (a *App) nowMs() int64 {
	return a.clock.Now().UnixMilli()
}

// Run consumes gateway events until ctx is done. Background refreshes it
// started are waited for before it returns.
func (a *App) Run(ctx context.Context) {
	defer a.bg.Wait()

	events := a.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, ev gateway.Event) {
	switch e := ev.(type) {
	case gateway.PhaseEvent:
		a.applyPhase(e)
	case gateway.HelloEvent:
		a.applyHello(e)
	case gateway.ChatEvent:
		a.applyChat(ctx, e.Payload)
	case gateway.AgentEvent:
		a.applyAgent(e.Payload)
	case gateway.RawEvent:
		a.store.Update(func(s *state.AppState) {
			s.PushRawEvent(e.Role + ":" + e.Event)
			if e.Role == protocol.RoleOperator && e.Event == protocol.EventShutdown {
				s.StatusText = "Gateway shutting down"
			}
		})
	}
}

func (a *App) applyPhase(e gateway.PhaseEvent) {
	a.store.Update(func(s *state.AppState) {
		s.Phase = state.Phase(e.Phase)
		switch e.Phase {
		case gateway.PhaseConnecting:
			s.StatusText = "Connecting..."
		case gateway.PhaseConnected:
			s.StatusText = "Connected"
		case gateway.PhaseReconnecting:
			s.StatusText = "Reconnecting..."
		case gateway.PhaseDisconnected:
			s.StatusText = "Offline"
			if e.Detail != "" {
				s.StatusText = "Disconnected: " + e.Detail
			}
			// No further chat events can arrive for the tracked run.
			s.ChatStream = ""
			s.ChatRunID = ""
		case gateway.PhaseError:
			s.StatusText = "Connection error"
			if e.Detail != "" {
				s.StatusText = e.Detail
			}
		}
	})
}

func (a *App) applyHello(e gateway.HelloEvent) {
	if e.Role != protocol.RoleOperator {
		return
	}
	var d *sessionkey.Defaults
	if e.Hello != nil && e.Hello.Snapshot != nil && e.Hello.Snapshot.SessionDefaults != nil {
		sd := e.Hello.Snapshot.SessionDefaults
		d = &sessionkey.Defaults{
			DefaultAgentID: sd.DefaultAgentID,
			MainKey:        sd.MainKey,
			MainSessionKey: sd.MainSessionKey,
			Scope:          sd.Scope,
		}
	}

	a.store.Update(func(s *state.AppState) {
		s.SessionDefaults = d
		s.SessionKey = sessionkey.Normalize(s.SessionKey, d)
		s.SessionOptions = sessionkey.EnsureOption(sessionkey.DedupeOptions(s.SessionOptions, d), s.SessionKey, d)
	})
}

func (a *App) applyChat(ctx context.Context, ev protocol.ChatEvent) {
	var eff chatrun.Effect
	a.store.Update(func(s *state.AppState) {
		var next state.AppState
		next, eff = chatrun.Reduce(*s, ev)
		*s = next
	})

	if eff.Ignored {
		a.logger.Debug().Str("sessionKey", ev.SessionKey).Str("state", ev.State).Msg("chat event for another session")
		return
	}
	if eff.RefreshHistory {
		a.background(ctx, func(ctx context.Context) { a.refreshHistory(ctx, true) })
	}
}

// applyAgent turns agent notifications for the current session into system
// messages. Assistant output arrives through chat events instead.
func (a *App) applyAgent(ev protocol.AgentEvent) {
	if ev.Stream == "assistant" {
		return
	}

	a.store.Update(func(s *state.AppState) {
		if ev.SessionKey != "" {
			if !sessionkey.Match(ev.SessionKey, s.SessionKey, s.SessionDefaults) {
				return
			}
		} else if ev.RunID == "" || ev.RunID != s.ChatRunID {
			return
		}

		if ev.Stream == "lifecycle" {
			if phase, _ := ev.Data["phase"].(string); phase == "error" {
				if ev.RunID != "" && s.ChatRunID != "" && ev.RunID != s.ChatRunID {
					return
				}
				msg, _ := ev.Data["error"].(string)
				if strings.TrimSpace(msg) == "" {
					msg = chatrun.DefaultErrorMessage
				}
				s.ChatError = msg
			}
			return
		}

		text := agentText(ev.Data)
		if text == "" {
			return
		}
		ts := ev.Ts
		if ts == 0 {
			ts = a.nowMs()
		}
		s.AppendMessage(state.ChatMessage{
			ID:        a.NowID("agent"),
			Role:      state.RoleSystem,
			Text:      "[" + ev.Stream + "] " + text,
			Timestamp: ts,
		})
	})
}

func agentText(data map[string]interface{}) string {
	for _, k := range []string{"text", "message"} {
		if v, ok := data[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// background runs fn on its own goroutine, tracked so Run can wait for it.
func (a *App) background(ctx context.Context, fn func(context.Context)) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn(ctx)
	}()
}

func (a *App) status(text string) {
	a.store.Update(func(s *state.AppState) { s.StatusText = text })
}
