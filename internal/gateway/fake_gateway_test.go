package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liteclaw/clawsync/internal/gateway/protocol"
)

type handlerFunc func(params json.RawMessage) (interface{}, *protocol.ErrorShape)

type fakeConn struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	role string
}

func (c *fakeConn) write(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteJSON(v)
}

func (c *fakeConn) reply(id string, payload interface{}, errShape *protocol.ErrorShape) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	c.write(protocol.ResponseFrame{
		Type:    protocol.FrameTypeResponse,
		ID:      id,
		OK:      errShape == nil,
		Payload: raw,
		Error:   errShape,
	})
}

// fakeGateway speaks just enough of the gateway protocol for client tests.
type fakeGateway struct {
	srv *httptest.Server
	wg  sync.WaitGroup

	mu       sync.Mutex
	connects []protocol.ConnectParams
	conns    []*fakeConn
	handlers map[string]handlerFunc
	defaults *protocol.SessionDefaults
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{handlers: make(map[string]handlerFunc)}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.wg.Add(1)
		defer g.wg.Done()
		g.serve(&fakeConn{ws: ws})
	}))
	t.Cleanup(g.close)
	return g
}

func (g *fakeGateway) URL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *fakeGateway) handle(method string, h handlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[method] = h
}

func (g *fakeGateway) serve(c *fakeConn) {
	defer c.ws.Close()

	c.write(protocol.EventFrame{
		Type:    protocol.FrameTypeEvent,
		Event:   protocol.EventConnectChallenge,
		Payload: json.RawMessage(`{"nonce":"nonce-1"}`),
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		if req.Method == protocol.MethodConnect {
			var p protocol.ConnectParams
			_ = json.Unmarshal(req.Params, &p)
			g.mu.Lock()
			c.role = p.Role
			g.connects = append(g.connects, p)
			g.conns = append(g.conns, c)
			defaults := g.defaults
			g.mu.Unlock()

			c.reply(req.ID, protocol.HelloOk{
				Type:     "hello-ok",
				Protocol: protocol.ProtocolVersion,
				Server:   protocol.ServerInfo{Version: "test", ConnID: p.Role},
				Snapshot: &protocol.Snapshot{SessionDefaults: defaults},
			}, nil)
			continue
		}

		g.mu.Lock()
		h := g.handlers[req.Method]
		g.mu.Unlock()
		if h == nil {
			c.reply(req.ID, nil, &protocol.ErrorShape{Code: "UNKNOWN_METHOD", Message: "unknown method " + req.Method})
			continue
		}
		payload, errShape := h(req.Params)
		c.reply(req.ID, payload, errShape)
	}
}

// push sends an event to every live connection with role.
func (g *fakeGateway) push(role, event string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	for _, c := range g.connsFor(role) {
		c.write(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: event, Payload: raw})
	}
}

// drop closes every connection with role using a close frame.
func (g *fakeGateway) drop(role string, code int, reason string) {
	for _, c := range g.connsFor(role) {
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.ws.Close()
	}
}

func (g *fakeGateway) connsFor(role string) []*fakeConn {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*fakeConn
	for _, c := range g.conns {
		if c.role == role {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) connectParams(role string) []protocol.ConnectParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []protocol.ConnectParams
	for _, p := range g.connects {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

func (g *fakeGateway) close() {
	g.srv.Close()
	g.mu.Lock()
	for _, c := range g.conns {
		_ = c.ws.Close()
	}
	g.mu.Unlock()
	g.wg.Wait()
}
