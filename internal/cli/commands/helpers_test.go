package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liteclaw/clawsync/internal/app"
	"github.com/liteclaw/clawsync/internal/config"
	"github.com/liteclaw/clawsync/internal/credentials"
	"github.com/liteclaw/clawsync/internal/gateway"
	"github.com/liteclaw/clawsync/internal/infra"
	"github.com/liteclaw/clawsync/internal/kvstore"
	"github.com/liteclaw/clawsync/internal/state"
)

// fakeGateway answers operator requests with canned payloads.
type fakeGateway struct {
	responses map[string]string
}

func (g *fakeGateway) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	payload, ok := g.responses[method]
	if !ok {
		return nil, fmt.Errorf("unexpected method %s", method)
	}
	return json.RawMessage(payload), nil
}

type fakeTransport struct {
	mu         sync.Mutex
	gateway    *fakeGateway
	op         gateway.Requester
	connectErr error
	connected  gateway.ConnectOptions
	events     chan gateway.Event
}

func newFakeTransport(responses map[string]string) *fakeTransport {
	return &fakeTransport{
		gateway: &fakeGateway{responses: responses},
		events:  make(chan gateway.Event),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, opts gateway.ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = opts
	f.op = f.gateway
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.op = nil
}

func (f *fakeTransport) ReconnectWithCapabilities(ctx context.Context, caps []string) error {
	return nil
}

func (f *fakeTransport) Operator() gateway.Requester {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.op
}

func (f *fakeTransport) Events() <-chan gateway.Event { return f.events }

type fakeStores struct {
	plain  *kvstore.Memory
	secure *kvstore.Memory
}

// useFakeRuntime swaps newRuntime for one backed by transport and in-memory
// stores. The stores survive across commands within a test.
func useFakeRuntime(t *testing.T, transport *fakeTransport) fakeStores {
	t.Helper()
	stores := fakeStores{plain: kvstore.NewMemory(), secure: kvstore.NewMemory()}
	paths := infra.PathsAt(t.TempDir())

	prev := newRuntime
	newRuntime = func(cmd *cobra.Command, opts runtimeOptions) (*runtime, error) {
		cfg := &config.Config{
			Gateway:  config.GatewayConfig{Host: "127.0.0.1", Port: 18789},
			Client:   config.ClientConfig{InstanceID: "instance-1"},
			History:  config.HistoryConfig{Limit: 200},
			Sessions: config.SessionsConfig{Limit: 200},
		}
		logger := zerolog.Nop()
		rt := &runtime{
			cfg:       cfg,
			paths:     paths,
			deviceID:  "device-1",
			transport: transport,
			logger:    logger,
		}
		rt.app = app.New(app.Options{
			Transport:     transport,
			Credentials:   credentials.New(stores.plain, stores.secure, logger),
			Logger:        logger,
			Gateway:       state.GatewayConfig{Host: cfg.Gateway.Host, Port: cfg.Gateway.Port},
			InstanceID:    cfg.Client.InstanceID,
			SessionsLimit: opts.sessionsLimit,
		})
		return rt, nil
	}
	t.Cleanup(func() { newRuntime = prev })
	return stores
}

var errRefused = errors.New("connection refused")

const (
	historyPayload  = `{"sessionKey":"main","messages":[]}`
	sessionsPayload = `{"sessions":[
		{"key":"main","modelProvider":"openai","model":"gpt-4o"},
		{"key":"discord:group:42"}
	]}`
	modelsPayload = `{"models":[
		{"provider":"openai","id":"gpt-4o"},
		{"provider":"anthropic","id":"claude-sonnet"},
		{"provider":"openai","id":""}
	]}`
)

func gatewayResponses() map[string]string {
	return map[string]string{
		"chat.history":  historyPayload,
		"sessions.list": sessionsPayload,
		"models.list":   modelsPayload,
	}
}
