// Package gateway provides the operator client's connection to an OpenClaw
// gateway over its WebSocket protocol.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/liteclaw/clawsync/internal/gateway/protocol"
)

// DefaultChallengeWait bounds how long Connect waits for a connect.challenge
// nonce before signing without one.
const DefaultChallengeWait = 750 * time.Millisecond

var errClosed = errors.New("connection closed")

// Requester issues request/response calls on a gateway connection.
type Requester interface {
	Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

// ClientOptions configures the gateway client.
type ClientOptions struct {
	URL           string
	Token         string
	Password      string
	InstanceID    string
	ClientID      string
	DisplayName   string
	Version       string
	Platform      string
	Mode          string
	Role          string
	Scopes        []string
	Caps          []string
	Identity      *DeviceIdentity
	ChallengeWait time.Duration
	Logger        zerolog.Logger

	OnEvent func(evt *protocol.EventFrame)
	OnClose func(code int, reason string)
}

// Client is a single WebSocket connection to the gateway.
type Client struct {
	opts      ClientOptions
	logger    zerolog.Logger
	ws        *websocket.Conn
	writeMu   sync.Mutex
	mu        sync.RWMutex
	pending   map[string]chan *protocol.ResponseFrame
	closed    bool
	lastSeq   int
	hello     *protocol.HelloOk
	wg        sync.WaitGroup
	closeCh   chan struct{}
	challenge chan string
}

// NewClient creates a new gateway client.
func NewClient(opts ClientOptions) *Client {
	if opts.URL == "" {
		opts.URL = "ws://127.0.0.1:18789"
	}
	if opts.ClientID == "" {
		opts.ClientID = protocol.ClientIDOperator
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}
	if opts.Mode == "" {
		opts.Mode = protocol.ClientModeCLI
	}
	if opts.Role == "" {
		opts.Role = protocol.RoleOperator
	}
	if len(opts.Scopes) == 0 && opts.Role == protocol.RoleOperator {
		opts.Scopes = []string{"operator.admin"}
	}
	if opts.ChallengeWait == 0 {
		opts.ChallengeWait = DefaultChallengeWait
	}

	return &Client{
		opts:      opts,
		logger:    opts.Logger.With().Str("role", opts.Role).Logger(),
		pending:   make(map[string]chan *protocol.ResponseFrame),
		closeCh:   make(chan struct{}),
		challenge: make(chan string, 1),
	}
}

// Connect dials the gateway and performs the connect handshake.
func (c *Client) Connect(ctx context.Context) (*protocol.HelloOk, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClosed
	}
	c.mu.Unlock()

	if c.opts.Identity == nil {
		return nil, errors.New("device identity is required")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	// The token also rides on the upgrade request for gateways that
	// authenticate at the HTTP layer.
	targetURL := c.opts.URL
	if c.opts.Token != "" {
		if strings.Contains(targetURL, "?") {
			targetURL += "&token=" + url.QueryEscape(c.opts.Token)
		} else {
			targetURL += "?token=" + url.QueryEscape(c.opts.Token)
		}
	}

	ws, _, err := dialer.DialContext(ctx, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(ws)

	nonce := c.awaitChallenge(ctx)

	caps := c.opts.Caps
	if caps == nil {
		caps = []string{}
	}
	params := protocol.ConnectParams{
		MinProtocol: protocol.ProtocolVersion,
		MaxProtocol: protocol.ProtocolVersion,
		Client: protocol.ClientInfo{
			ID:          c.opts.ClientID,
			DisplayName: c.opts.DisplayName,
			Version:     c.opts.Version,
			Platform:    c.opts.Platform,
			Mode:        c.opts.Mode,
			InstanceID:  c.opts.InstanceID,
		},
		Caps:   caps,
		Role:   c.opts.Role,
		Scopes: c.opts.Scopes,
	}

	id := c.opts.Identity
	signedAt := time.Now().UnixMilli()
	payload := BuildDeviceAuthPayload(
		id.ID,
		c.opts.ClientID,
		c.opts.Mode,
		c.opts.Role,
		c.opts.Scopes,
		signedAt,
		c.opts.Token,
		nonce,
	)
	params.Device = &protocol.DeviceInfo{
		ID:        id.ID,
		PublicKey: PublicKeyToBase64Url(id.PublicKey),
		Signature: SignDevicePayload(id.PrivateKey, payload),
		SignedAt:  signedAt,
		Nonce:     nonce,
	}

	if c.opts.Token != "" || c.opts.Password != "" {
		params.Auth = &protocol.AuthInfo{
			Token:    c.opts.Token,
			Password: c.opts.Password,
		}
	}

	result, err := c.Request(ctx, protocol.MethodConnect, params)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	var hello protocol.HelloOk
	if err := json.Unmarshal(result, &hello); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to parse hello: %w", err)
	}

	c.mu.Lock()
	c.hello = &hello
	c.mu.Unlock()

	c.logger.Debug().Str("connId", hello.Server.ConnID).Int("protocol", hello.Protocol).Msg("gateway hello")
	return &hello, nil
}

func (c *Client) awaitChallenge(ctx context.Context) string {
	timer := time.NewTimer(c.opts.ChallengeWait)
	defer timer.Stop()

	select {
	case nonce := <-c.challenge:
		return nonce
	case <-timer.C:
	case <-ctx.Done():
	case <-c.closeCh:
	}
	return ""
}

// Close closes the connection and waits for the read loop to exit.
func (c *Client) Close() error {
	if ws := c.markClosed(); ws != nil {
		_ = ws.Close()
	}
	c.wg.Wait()
	return nil
}

// markClosed flips the client to closed and returns the socket to close, or
// nil when the client was already closed.
func (c *Client) markClosed() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	ws := c.ws
	c.ws = nil
	return ws
}

// Request sends a request and waits for its response.
func (c *Client) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	ws := c.ws
	c.mu.RUnlock()

	if ws == nil {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	frame := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: params,
	}

	ch := make(chan *protocol.ResponseFrame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, errClosed
	case resp := <-ch:
		if !resp.OK {
			return nil, newRequestError(method, resp.Error)
		}
		return resp.Payload, nil
	}
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.markClosed() == nil {
				return
			}
			_ = ws.Close()

			code, reason := websocket.CloseAbnormalClosure, err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
			}
			c.logger.Warn().Int("code", code).Str("reason", reason).Msg("gateway connection closed")
			if c.opts.OnClose != nil {
				c.opts.OnClose(code, reason)
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	switch base.Type {
	case protocol.FrameTypeResponse:
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			return
		}
		c.mu.RLock()
		ch, ok := c.pending[resp.ID]
		c.mu.RUnlock()
		if ok {
			select {
			case ch <- &resp:
			default:
			}
		}

	case protocol.FrameTypeEvent:
		var evt protocol.EventFrame
		if err := json.Unmarshal(data, &evt); err != nil {
			return
		}

		if evt.Event == protocol.EventConnectChallenge {
			var p struct {
				Nonce string `json:"nonce"`
			}
			if json.Unmarshal(evt.Payload, &p) == nil && p.Nonce != "" {
				select {
				case c.challenge <- p.Nonce:
				default:
				}
			}
			return
		}

		if evt.Seq > 0 {
			c.mu.Lock()
			c.lastSeq = evt.Seq
			c.mu.Unlock()
		}

		if c.opts.OnEvent != nil {
			c.opts.OnEvent(&evt)
		}
	}
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws != nil && !c.closed
}

// Hello returns the hello response.
func (c *Client) Hello() *protocol.HelloOk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

// LastSeq returns the sequence number of the last event received.
func (c *Client) LastSeq() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq
}
