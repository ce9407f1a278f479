package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/liteclaw/clawsync/internal/gateway/protocol"
)

// Phase is a connection phase reported on the event channel.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseError        Phase = "error"
)

const eventBuffer = 256

// Event is one item on the session's event channel. It is one of
// PhaseEvent, HelloEvent, ChatEvent, AgentEvent or RawEvent.
type Event interface {
	gatewayEvent()
}

// PhaseEvent reports a connection phase change.
type PhaseEvent struct {
	Phase  Phase
	Detail string
}

// HelloEvent carries the hello-ok of a connection.
type HelloEvent struct {
	Role  string
	Hello *protocol.HelloOk
}

// ChatEvent is a decoded "chat" event from the operator connection.
type ChatEvent struct {
	Payload protocol.ChatEvent
}

// AgentEvent is a decoded "agent" event from the operator connection.
type AgentEvent struct {
	Payload protocol.AgentEvent
}

// RawEvent names every event received on either connection.
type RawEvent struct {
	Role  string
	Event string
}

func (PhaseEvent) gatewayEvent() {}
func (HelloEvent) gatewayEvent() {}
func (ChatEvent) gatewayEvent()  {}
func (AgentEvent) gatewayEvent() {}
func (RawEvent) gatewayEvent()   {}

// ConnectOptions are the parameters of a Session connection.
type ConnectOptions struct {
	URL         string
	Token       string
	Password    string
	InstanceID  string
	DisplayName string
	Version     string
	Caps        []string
}

// BuildURL returns the WebSocket URL of a gateway endpoint.
func BuildURL(host string, port int, tls bool) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Session owns the operator and node connections to one gateway and fans
// their events into a single channel.
type Session struct {
	identity *DeviceIdentity
	logger   zerolog.Logger
	events   chan Event
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	opts     ConnectOptions
	gen      uint64
	operator *Client
	node     *Client
}

// NewSession creates a disconnected session signing with identity.
func NewSession(identity *DeviceIdentity, logger zerolog.Logger) *Session {
	return &Session{
		identity: identity,
		logger:   logger.With().Str("component", "gateway").Logger(),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Events returns the channel of connection and gateway events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Operator returns the operator connection, or nil when disconnected.
func (s *Session) Operator() Requester {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.operator == nil {
		return nil
	}
	return s.operator
}

// Connect replaces any existing connections with new operator and node
// connections. A node connection failure is logged and does not fail the
// session.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	gen := s.reset(opts)
	s.emit(PhaseEvent{Phase: PhaseConnecting})

	op := s.newClient(gen, opts, protocol.RoleOperator, nil)
	hello, err := op.Connect(ctx)
	if err != nil {
		s.emit(PhaseEvent{Phase: PhaseError, Detail: FormatError(err)})
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = op.Close()
		return errClosed
	}
	s.operator = op
	s.mu.Unlock()

	s.emit(HelloEvent{Role: protocol.RoleOperator, Hello: hello})

	if err := s.connectNode(ctx, gen, opts.Caps); err != nil {
		s.logger.Warn().Err(err).Msg("node connection failed")
	}

	s.emit(PhaseEvent{Phase: PhaseConnected})
	return nil
}

// ReconnectWithCapabilities cycles the node connection so the gateway sees
// caps. Without an operator connection the caps are only remembered for the
// next Connect.
func (s *Session) ReconnectWithCapabilities(ctx context.Context, caps []string) error {
	s.mu.Lock()
	s.opts.Caps = caps
	if s.operator == nil {
		s.mu.Unlock()
		return nil
	}
	old := s.node
	s.node = nil
	gen := s.gen
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	s.emit(PhaseEvent{Phase: PhaseReconnecting})
	if err := s.connectNode(ctx, gen, caps); err != nil {
		s.emit(PhaseEvent{Phase: PhaseError, Detail: FormatError(err)})
		return err
	}
	s.emit(PhaseEvent{Phase: PhaseConnected})
	return nil
}

// Disconnect closes both connections.
func (s *Session) Disconnect() {
	s.reset(s.currentOpts())
	s.emit(PhaseEvent{Phase: PhaseDisconnected})
}

// Close disconnects and releases any blocked event senders.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
	s.reset(s.currentOpts())
}

func (s *Session) currentOpts() ConnectOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// reset bumps the connection generation and closes the current clients.
func (s *Session) reset(opts ConnectOptions) uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.opts = opts
	op, node := s.operator, s.node
	s.operator, s.node = nil, nil
	s.mu.Unlock()

	if node != nil {
		_ = node.Close()
	}
	if op != nil {
		_ = op.Close()
	}
	return gen
}

func (s *Session) connectNode(ctx context.Context, gen uint64, caps []string) error {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	node := s.newClient(gen, opts, protocol.RoleNode, caps)
	hello, err := node.Connect(ctx)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = node.Close()
		return errClosed
	}
	s.node = node
	s.mu.Unlock()

	s.emit(HelloEvent{Role: protocol.RoleNode, Hello: hello})
	return nil
}

func (s *Session) newClient(gen uint64, opts ConnectOptions, role string, caps []string) *Client {
	copts := ClientOptions{
		URL:         opts.URL,
		Token:       opts.Token,
		Password:    opts.Password,
		InstanceID:  opts.InstanceID,
		DisplayName: opts.DisplayName,
		Version:     opts.Version,
		Role:        role,
		Identity:    s.identity,
		Logger:      s.logger,
		OnEvent:     s.onEvent(role),
	}
	if role == protocol.RoleNode {
		copts.ClientID = protocol.ClientIDNode
		copts.Mode = protocol.ClientModeNode
		copts.Caps = caps
	}

	var client *Client
	copts.OnClose = func(code int, reason string) {
		s.onClose(gen, role, client, code, reason)
	}
	client = NewClient(copts)
	return client
}

func (s *Session) onClose(gen uint64, role string, client *Client, code int, reason string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if role == protocol.RoleNode {
		if s.node == client {
			s.node = nil
		}
		s.mu.Unlock()
		return
	}
	if s.operator != client {
		s.mu.Unlock()
		return
	}
	s.operator = nil
	node := s.node
	s.node = nil
	s.mu.Unlock()

	if node != nil {
		_ = node.Close()
	}
	detail := reason
	if detail == "" {
		detail = fmt.Sprintf("closed (%d)", code)
	}
	s.emit(PhaseEvent{Phase: PhaseDisconnected, Detail: detail})
}

func (s *Session) onEvent(role string) func(*protocol.EventFrame) {
	return func(evt *protocol.EventFrame) {
		if evt.Event == protocol.EventTick {
			return
		}
		s.emit(RawEvent{Role: role, Event: evt.Event})
		if role != protocol.RoleOperator {
			return
		}

		switch evt.Event {
		case protocol.EventChat:
			var p protocol.ChatEvent
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				s.logger.Debug().Err(err).Msg("malformed chat event")
				return
			}
			s.emit(ChatEvent{Payload: p})
		case protocol.EventAgent:
			var p protocol.AgentEvent
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				s.logger.Debug().Err(err).Msg("malformed agent event")
				return
			}
			s.emit(AgentEvent{Payload: p})
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
