package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/history"
	"github.com/liteclaw/clawsync/internal/sessionkey"
	"github.com/liteclaw/clawsync/internal/setupcode"
	"github.com/liteclaw/clawsync/internal/state"
)

const statusNotConnected = "Not connected"

// GatewayConfigPatch changes selected GatewayConfig fields. Nil fields are
// left alone.
type GatewayConfigPatch struct {
	Host      *string
	Port      *int
	TLS       *bool
	Token     *string
	Password  *string
	SetupCode *string
}

func (p GatewayConfigPatch) apply(cfg *state.GatewayConfig) {
	if p.Host != nil {
		cfg.Host = strings.TrimSpace(*p.Host)
	}
	if p.Port != nil {
		cfg.Port = *p.Port
	}
	if p.TLS != nil {
		cfg.TLS = *p.TLS
	}
	if p.Token != nil {
		cfg.Token = strings.TrimSpace(*p.Token)
	}
	if p.Password != nil {
		cfg.Password = *p.Password
	}
	if p.SetupCode != nil {
		cfg.SetupCode = strings.TrimSpace(*p.SetupCode)
	}
}

// Start restores the persisted gateway config. Patches made before it
// completes are applied over the restored values, and only then are config
// writes enabled.
func (a *App) Start(ctx context.Context) {
	if a.creds == nil {
		a.store.Update(func(s *state.AppState) { s.Hydrated = true })
		return
	}

	cfg, err := a.creds.Hydrate(ctx, a.store.Snapshot().Gateway)
	if err != nil {
		a.logger.Debug().Err(err).Msg("hydration abandoned")
		return
	}

	a.configMu.Lock()
	defer a.configMu.Unlock()

	pending := a.pending
	a.pending = nil
	next := a.store.Update(func(s *state.AppState) {
		for _, p := range pending {
			p.apply(&cfg)
		}
		s.Gateway = cfg
		s.Hydrated = true
	})
	a.creds.MarkHydrated()
	if len(pending) > 0 {
		a.creds.Persist(next.Gateway)
	}
}

// PatchConfig updates the gateway config and persists it once hydrated.
func (a *App) PatchConfig(patch GatewayConfigPatch) {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	next := a.store.Update(func(s *state.AppState) { patch.apply(&s.Gateway) })
	if a.creds == nil {
		return
	}
	if !a.creds.Hydrated() {
		a.pending = append(a.pending, patch)
		return
	}
	a.creds.Persist(next.Gateway)
}

// ApplySetupCode applies a setup code to the config and connects.
func (a *App) ApplySetupCode(ctx context.Context, code string) {
	p, err := setupcode.Decode(code)
	if err != nil {
		a.logger.Debug().Err(err).Msg("rejected setup code")
		a.status("Invalid setup code")
		return
	}
	trimmed := strings.TrimSpace(code)
	a.PatchConfig(GatewayConfigPatch{
		Host:      &p.Host,
		Port:      &p.Port,
		TLS:       &p.TLS,
		Token:     &p.Token,
		Password:  &p.Password,
		SetupCode: &trimmed,
	})
	a.Connect(ctx)
}

// Connect opens the gateway session and loads history, sessions and models.
func (a *App) Connect(ctx context.Context) {
	snap := a.store.Snapshot()
	cfg := snap.Gateway
	if err := gateway.ValidateEndpoint(cfg.Host, cfg.Port); err != nil {
		a.status(gateway.FormatError(err))
		return
	}

	a.status("Connecting...")
	err := a.transport.Connect(ctx, gateway.ConnectOptions{
		URL:         gateway.BuildURL(strings.TrimSpace(cfg.Host), cfg.Port, cfg.TLS),
		Token:       cfg.Token,
		Password:    cfg.Password,
		InstanceID:  a.opts.InstanceID,
		DisplayName: a.opts.DisplayName,
		Version:     a.opts.Version,
		Caps:        snap.Capabilities.Names(),
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("host", cfg.Host).Int("port", cfg.Port).Msg("connect failed")
		a.status("Connect failed: " + gateway.FormatError(err))
		return
	}

	a.RefreshHistory(ctx)
	a.RefreshSessions(ctx)
	a.RefreshModels(ctx)
}

// Disconnect closes the gateway session.
func (a *App) Disconnect() {
	a.transport.Disconnect()
}

// SendMessage sends text to the current session.
func (a *App) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	op := a.transport.Operator()
	if op == nil {
		a.status(statusNotConnected)
		return
	}

	runID := a.NowID("run")
	snap := a.store.Update(func(s *state.AppState) {
		s.AppendMessage(state.ChatMessage{
			ID:        a.NowID("msg"),
			Role:      state.RoleUser,
			Text:      text,
			Timestamp: a.nowMs(),
		})
		a.beginSend(s)
		s.ChatRunID = runID
		s.ChatStream = ""
		s.ChatError = ""
	})
	defer a.endSend()

	a.sendRun(ctx, op, snap.SessionKey, text, runID)
}

// StartNewSession clears the transcript and asks the gateway for a fresh
// session.
func (a *App) StartNewSession(ctx context.Context) {
	op := a.transport.Operator()
	if op == nil {
		a.status(statusNotConnected)
		return
	}

	runID := a.NowID("run")
	snap := a.store.Update(func(s *state.AppState) {
		s.ChatMessages = nil
		a.beginSend(s)
		s.ChatRunID = runID
		s.ChatStream = ""
		s.ChatError = ""
	})
	defer a.endSend()

	a.sendRun(ctx, op, snap.SessionKey, "/new", runID)
}

// SelectModel switches the current session to model ref ("provider/id").
// The selection is kept optimistically; the next sessions refresh re-derives
// it from the gateway.
func (a *App) SelectModel(ctx context.Context, ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}
	op := a.transport.Operator()
	if op == nil {
		a.status(statusNotConnected)
		return
	}

	var previous string
	snap := a.store.Update(func(s *state.AppState) {
		previous = s.ModelSelection
		s.ModelSelection = ref
		a.beginSend(s)
	})
	defer a.endSend()

	if _, err := a.chatSend(ctx, op, snap.SessionKey, "/model "+ref, a.NowID("model")); err != nil {
		msg := gateway.FormatError(err)
		a.store.Update(func(s *state.AppState) {
			if s.ModelSelection == ref {
				s.ModelSelection = previous
			}
			s.StatusText = "Model change failed: " + msg
		})
		return
	}
	a.status("Model set to " + ref)
}

// beginSend marks a send-like request in flight. Call inside a store update.
func (a *App) beginSend(s *state.AppState) {
	a.sends++
	s.ChatSending = true
}

// endSend settles one send-like request. ChatSending stays set while another
// is still awaiting its acknowledgment.
func (a *App) endSend() {
	a.store.Update(func(s *state.AppState) {
		a.sends--
		s.ChatSending = a.sends > 0
	})
}

// sendRun sends message as run runID and settles the run state with the
// acknowledgment.
func (a *App) sendRun(ctx context.Context, op gateway.Requester, key, message, runID string) {
	res, err := a.chatSend(ctx, op, key, message, runID)
	if err != nil {
		msg := gateway.FormatError(err)
		a.logger.Warn().Err(err).Str("runId", runID).Msg("chat.send failed")
		a.store.Update(func(s *state.AppState) {
			if s.ChatRunID == runID {
				s.ChatRunID = ""
				s.ChatStream = ""
			}
			s.ChatError = msg
			s.StatusText = msg
			s.AppendMessage(state.ChatMessage{
				ID:        a.NowID("err"),
				Role:      state.RoleSystem,
				Text:      history.FormatErrorText(msg),
				Timestamp: a.nowMs(),
			})
		})
		return
	}

	if res.RunID != "" && res.RunID != runID {
		a.store.Update(func(s *state.AppState) {
			if s.ChatRunID == runID {
				s.ChatRunID = res.RunID
			}
		})
	}
}

func (a *App) chatSend(ctx context.Context, op gateway.Requester, key, message, idempotencyKey string) (protocol.ChatSendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ChatSendTimeout)
	defer cancel()

	var res protocol.ChatSendResult
	raw, err := op.Request(ctx, protocol.MethodChatSend, protocol.ChatSendParams{
		SessionKey:     key,
		Message:        message,
		Deliver:        false,
		TimeoutMs:      ChatSendServerTimeoutMs,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return res, err
	}
	if err := decode(raw, &res); err != nil {
		return res, fmt.Errorf("chat.send: %w", err)
	}
	return res, nil
}

// AbortRun asks the gateway to abort the tracked run. Local run state is
// cleared only once the gateway acknowledges.
func (a *App) AbortRun(ctx context.Context) {
	snap := a.store.Snapshot()
	if snap.ChatRunID == "" {
		return
	}
	op := a.transport.Operator()
	if op == nil {
		a.status(statusNotConnected)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()
	_, err := op.Request(ctx, protocol.MethodChatAbort, protocol.ChatAbortParams{
		SessionKey: snap.SessionKey,
		RunID:      snap.ChatRunID,
	})
	if err != nil {
		a.status("Abort failed: " + gateway.FormatError(err))
		return
	}

	a.store.Update(func(s *state.AppState) {
		if s.ChatRunID == snap.ChatRunID {
			s.ChatRunID = ""
			s.ChatStream = ""
			s.ChatSending = false
		}
		s.StatusText = "Aborted"
	})
}

// SetCamera toggles the camera capability.
func (a *App) SetCamera(ctx context.Context, enabled bool) { a.caps.SetCamera(ctx, enabled) }

// SetLocation toggles the location capability.
func (a *App) SetLocation(ctx context.Context, enabled bool) { a.caps.SetLocation(ctx, enabled) }

// SetVoiceWake toggles the voice wake capability.
func (a *App) SetVoiceWake(ctx context.Context, enabled bool) { a.caps.SetVoiceWake(ctx, enabled) }

// SetTalk toggles talk mode.
func (a *App) SetTalk(ctx context.Context, enabled bool) { a.caps.SetTalk(ctx, enabled) }

// ChangeSessionKey switches to another session and loads its history.
func (a *App) ChangeSessionKey(ctx context.Context, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	changed := false
	a.store.Update(func(s *state.AppState) {
		next := sessionkey.Normalize(key, s.SessionDefaults)
		if sessionkey.Match(next, s.SessionKey, s.SessionDefaults) {
			return
		}
		changed = true
		s.SessionKey = next
		s.SessionOptions = sessionkey.EnsureOption(s.SessionOptions, next, s.SessionDefaults)
		s.ChatMessages = nil
		s.ChatStream = ""
		s.ChatRunID = ""
		s.ChatError = ""
	})
	if changed {
		a.RefreshHistory(ctx)
	}
}

// RefreshHistory reloads the current session's history, showing progress.
func (a *App) RefreshHistory(ctx context.Context) {
	a.refreshHistory(ctx, false)
}

// refreshHistory loads history for the current session. A quiet refresh
// swallows failures and never touches the loading flag.
func (a *App) refreshHistory(ctx context.Context, quiet bool) {
	op := a.transport.Operator()
	if op == nil {
		return
	}

	setLoading := false
	snap := a.store.Update(func(s *state.AppState) {
		if !quiet && !s.ChatLoading {
			s.ChatLoading = true
			setLoading = true
		}
	})
	if setLoading {
		defer a.store.Update(func(s *state.AppState) { s.ChatLoading = false })
	}

	key := snap.SessionKey
	var res protocol.ChatHistoryResult
	if err := a.request(ctx, op, protocol.MethodChatHistory, protocol.ChatHistoryParams{
		SessionKey: key,
		Limit:      a.opts.HistoryLimit,
	}, &res); err != nil {
		if quiet {
			a.logger.Debug().Err(err).Msg("quiet history refresh failed")
			return
		}
		a.status("History failed: " + gateway.FormatError(err))
		return
	}

	msgs := history.Reconcile(res.Messages, a.clock.Now())
	a.store.Update(func(s *state.AppState) {
		if !sessionkey.Match(s.SessionKey, key, s.SessionDefaults) {
			return
		}
		if len(msgs) > 0 {
			s.ChatMessages = msgs
		}
	})
}

// RefreshSessions reloads the session list. Failures are logged only.
func (a *App) RefreshSessions(ctx context.Context) {
	op := a.transport.Operator()
	if op == nil {
		return
	}

	var res protocol.SessionsListResult
	if err := a.request(ctx, op, protocol.MethodSessionsList, protocol.SessionsListParams{
		IncludeGlobal:  true,
		IncludeUnknown: true,
		Limit:          a.opts.SessionsLimit,
	}, &res); err != nil {
		a.logger.Warn().Err(err).Msg("sessions refresh failed")
		return
	}

	a.store.Update(func(s *state.AppState) {
		d := s.SessionDefaults
		keys := make([]string, 0, len(res.Sessions))
		for _, e := range res.Sessions {
			keys = append(keys, e.Key)
		}
		s.SessionOptions = sessionkey.EnsureOption(sessionkey.DedupeOptions(keys, d), s.SessionKey, d)

		for _, e := range res.Sessions {
			if e.Model == "" || !sessionkey.Match(e.Key, s.SessionKey, d) {
				continue
			}
			s.ModelSelection = state.ModelOption{Provider: e.ModelProvider, ID: e.Model}.Ref()
			break
		}
	})
}

// RefreshModels reloads the model catalog. Failures are logged only.
func (a *App) RefreshModels(ctx context.Context) {
	op := a.transport.Operator()
	if op == nil {
		return
	}

	var res protocol.ModelsListResult
	if err := a.request(ctx, op, protocol.MethodModelsList, struct{}{}, &res); err != nil {
		a.logger.Warn().Err(err).Msg("models refresh failed")
		return
	}

	models := make([]state.ModelOption, 0, len(res.Models))
	for _, m := range res.Models {
		if m.ID == "" {
			continue
		}
		models = append(models, state.ModelOption{Provider: m.Provider, ID: m.ID})
	}
	a.store.Update(func(s *state.AppState) { s.ModelOptions = models })
}

// request issues method with the default timeout and decodes the payload
// into out.
func (a *App) request(ctx context.Context, op gateway.Requester, method string, params, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	raw, err := op.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if err := decode(raw, out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}
