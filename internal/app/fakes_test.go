package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"go.uber.org/goleak"

	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.UnixMilli(1700000000000)

type mockTransport struct {
	mock.Mock
	events chan gateway.Event

	mu sync.Mutex
	op gateway.Requester
}

func (m *mockTransport) Connect(ctx context.Context, opts gateway.ConnectOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockTransport) Disconnect() { m.Called() }

func (m *mockTransport) ReconnectWithCapabilities(ctx context.Context, caps []string) error {
	return m.Called(ctx, caps).Error(0)
}

func (m *mockTransport) Operator() gateway.Requester {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.op == nil {
		return nil
	}
	return m.op
}

func (m *mockTransport) Events() <-chan gateway.Event { return m.events }

func (m *mockTransport) setOperator(op gateway.Requester) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.op = op
}

type handler func(params interface{}) (interface{}, error)

type call struct {
	method string
	params interface{}
}

// fakeOperator answers requests from per-method handlers.
type fakeOperator struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]handler
}

func newFakeOperator() *fakeOperator {
	return &fakeOperator{handlers: make(map[string]handler)}
}

func (f *fakeOperator) on(method string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeOperator) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, params: params})
	h := f.handlers[method]
	f.mu.Unlock()

	if h == nil {
		return nil, &gateway.RequestError{Code: "UNKNOWN_METHOD", Message: method}
	}
	v, err := h(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (f *fakeOperator) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeOperator) lastParams(method string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i].params
		}
	}
	return nil
}

type fixture struct {
	app       *App
	transport *mockTransport
	op        *fakeOperator
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg state.GatewayConfig) *fixture {
	t.Helper()
	tr := &mockTransport{events: make(chan gateway.Event, 16)}
	op := newFakeOperator()
	tr.setOperator(op)
	clock := clockwork.NewFakeClockAt(epoch)

	a := New(Options{
		Transport: tr,
		Clock:     clock,
		Logger:    zerolog.Nop(),
		Gateway:   cfg,
		Version:   "test",
	})
	return &fixture{app: a, transport: tr, op: op, clock: clock}
}

// settle waits for background refreshes started by event handling.
func (f *fixture) settle() {
	f.app.bg.Wait()
}
