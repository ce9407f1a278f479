// Package capability applies capability toggles by reconnecting the node
// connection with the updated capability set.
package capability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/state"
)

// TalkModeTimeout bounds the talk.mode request.
const TalkModeTimeout = 8 * time.Second

// Transport is the part of the gateway session the controller drives.
type Transport interface {
	ReconnectWithCapabilities(ctx context.Context, caps []string) error
	Operator() gateway.Requester
}

// Controller turns capability toggles into reconnects.
type Controller struct {
	store     *state.Container
	transport Transport
	logger    zerolog.Logger
}

// New creates a controller writing to store.
func New(store *state.Container, transport Transport, logger zerolog.Logger) *Controller {
	return &Controller{
		store:     store,
		transport: transport,
		logger:    logger.With().Str("component", "capability").Logger(),
	}
}

// SetCamera toggles the camera capability.
func (c *Controller) SetCamera(ctx context.Context, enabled bool) {
	c.set(ctx, func(caps *state.Capabilities) { caps.Camera = enabled })
}

// SetLocation toggles the location capability.
func (c *Controller) SetLocation(ctx context.Context, enabled bool) {
	c.set(ctx, func(caps *state.Capabilities) { caps.Location = enabled })
}

// SetVoiceWake toggles the voice wake capability.
func (c *Controller) SetVoiceWake(ctx context.Context, enabled bool) {
	c.set(ctx, func(caps *state.Capabilities) { caps.VoiceWake = enabled })
}

// SetTalk toggles talk mode. The gateway is told about the mode change
// before the reconnect; a failed mode change is reported but the reconnect
// still runs with the latest flags.
func (c *Controller) SetTalk(ctx context.Context, enabled bool) {
	c.store.Update(func(s *state.AppState) { s.Capabilities.Talk = enabled })

	if op := c.transport.Operator(); op != nil {
		tctx, cancel := context.WithTimeout(ctx, TalkModeTimeout)
		_, err := op.Request(tctx, protocol.MethodTalkMode, protocol.TalkModeParams{Enabled: enabled})
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Bool("enabled", enabled).Msg("talk mode request failed")
			c.status("Talk mode failed: " + gateway.FormatError(err))
		}
	}

	c.reconnect(ctx, c.store.Snapshot().Capabilities)
}

// set applies fn and reconnects with the capabilities it produced.
func (c *Controller) set(ctx context.Context, fn func(*state.Capabilities)) {
	next := c.store.Update(func(s *state.AppState) { fn(&s.Capabilities) })
	c.reconnect(ctx, next.Capabilities)
}

func (c *Controller) reconnect(ctx context.Context, caps state.Capabilities) {
	if err := c.transport.ReconnectWithCapabilities(ctx, caps.Names()); err != nil {
		c.logger.Warn().Err(err).Strs("caps", caps.Names()).Msg("capability reconnect failed")
		c.status("Reconnect failed: " + gateway.FormatError(err))
	}
}

func (c *Controller) status(text string) {
	c.store.Update(func(s *state.AppState) { s.StatusText = text })
}
