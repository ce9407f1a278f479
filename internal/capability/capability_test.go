package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/state"
)

type mockTransport struct{ mock.Mock }

func (m *mockTransport) ReconnectWithCapabilities(ctx context.Context, caps []string) error {
	args := m.Called(ctx, caps)
	return args.Error(0)
}

func (m *mockTransport) Operator() gateway.Requester {
	args := m.Called()
	if r := args.Get(0); r != nil {
		return r.(gateway.Requester)
	}
	return nil
}

type mockRequester struct{ mock.Mock }

func (m *mockRequester) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, method, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func newController(initial state.Capabilities) (*Controller, *state.Container, *mockTransport) {
	s := state.Initial(state.GatewayConfig{})
	s.Capabilities = initial
	store := state.NewContainer(s)
	tr := &mockTransport{}
	return New(store, tr, zerolog.Nop()), store, tr
}

func TestToggleFoldsFlagIntoReconnect(t *testing.T) {
	c, store, tr := newController(state.Capabilities{Location: true})
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapCamera, protocol.CapLocation}).Return(nil).Once()

	c.SetCamera(context.Background(), true)

	tr.AssertExpectations(t)
	tr.AssertNumberOfCalls(t, "ReconnectWithCapabilities", 1)
	assert.True(t, store.Snapshot().Capabilities.Camera)
}

func TestSequentialTogglesAccumulate(t *testing.T) {
	c, _, tr := newController(state.Capabilities{})
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapVoiceWake}).Return(nil).Once()
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapLocation, protocol.CapVoiceWake}).Return(nil).Once()
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapLocation}).Return(nil).Once()

	ctx := context.Background()
	c.SetVoiceWake(ctx, true)
	c.SetLocation(ctx, true)
	c.SetVoiceWake(ctx, false)

	tr.AssertExpectations(t)
}

func TestSetTalkRequestsModeBeforeReconnect(t *testing.T) {
	c, store, tr := newController(state.Capabilities{Camera: true})
	op := &mockRequester{}
	var order []string

	withDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		dl, ok := ctx.Deadline()
		return ok && time.Until(dl) <= TalkModeTimeout
	})
	op.On("Request", withDeadline, protocol.MethodTalkMode, protocol.TalkModeParams{Enabled: true}).
		Run(func(mock.Arguments) { order = append(order, "talk.mode") }).
		Return(json.RawMessage(`{}`), nil).Once()
	tr.On("Operator").Return(op)
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapCamera, protocol.CapTalk}).
		Run(func(mock.Arguments) { order = append(order, "reconnect") }).
		Return(nil).Once()

	c.SetTalk(context.Background(), true)

	op.AssertExpectations(t)
	tr.AssertExpectations(t)
	assert.Equal(t, []string{"talk.mode", "reconnect"}, order)
	assert.True(t, store.Snapshot().Capabilities.Talk)
}

func TestSetTalkFailureStillReconnects(t *testing.T) {
	c, store, tr := newController(state.Capabilities{})
	op := &mockRequester{}
	op.On("Request", mock.Anything, protocol.MethodTalkMode, protocol.TalkModeParams{Enabled: true}).
		Return(nil, &gateway.RequestError{Code: "UNAVAILABLE", Message: "talk disabled"}).Once()
	tr.On("Operator").Return(op)
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapTalk}).Return(nil).Once()

	c.SetTalk(context.Background(), true)

	tr.AssertExpectations(t)
	snap := store.Snapshot()
	assert.True(t, snap.Capabilities.Talk)
	assert.Equal(t, "Talk mode failed: UNAVAILABLE: talk disabled", snap.StatusText)
}

func TestSetTalkWithoutOperator(t *testing.T) {
	c, _, tr := newController(state.Capabilities{})
	tr.On("Operator").Return(nil)
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapTalk}).Return(nil).Once()

	c.SetTalk(context.Background(), true)

	tr.AssertExpectations(t)
}

func TestReconnectFailureSurfacesStatus(t *testing.T) {
	c, store, tr := newController(state.Capabilities{})
	tr.On("ReconnectWithCapabilities", mock.Anything, []string{protocol.CapCamera}).Return(context.DeadlineExceeded).Once()

	assert.NotPanics(t, func() { c.SetCamera(context.Background(), true) })

	snap := store.Snapshot()
	assert.Equal(t, "Reconnect failed: request timed out", snap.StatusText)
	assert.True(t, snap.Capabilities.Camera)
}
