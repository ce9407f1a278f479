// Package state holds the operator client's single application state.
package state

import (
	"slices"

	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/sessionkey"
)

// MaxRawEvents caps the raw event ring.
const MaxRawEvents = 20

// Phase is the connection phase reported by the transport.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseError        Phase = "error"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of the local transcript. Messages are never
// mutated after creation.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// GatewayConfig holds the connection parameters. Token and Password are
// secrets.
type GatewayConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TLS       bool   `json:"tls"`
	Token     string `json:"token"`
	Password  string `json:"password"`
	SetupCode string `json:"setupCode"`
}

// HasSecrets reports whether a token or password is set.
func (c GatewayConfig) HasSecrets() bool {
	return c.Token != "" || c.Password != ""
}

// Capabilities are the feature flags advertised by the node connection.
type Capabilities struct {
	Camera    bool `json:"camera"`
	Location  bool `json:"location"`
	VoiceWake bool `json:"voiceWake"`
	Talk      bool `json:"talk"`
}

// Names returns the enabled capabilities as advertised on the wire.
func (c Capabilities) Names() []string {
	names := make([]string, 0, 4)
	if c.Camera {
		names = append(names, protocol.CapCamera)
	}
	if c.Location {
		names = append(names, protocol.CapLocation)
	}
	if c.VoiceWake {
		names = append(names, protocol.CapVoiceWake)
	}
	if c.Talk {
		names = append(names, protocol.CapTalk)
	}
	return names
}

// ModelOption is a model offered by the gateway.
type ModelOption struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// Ref returns the "provider/id" reference used for model selection.
func (m ModelOption) Ref() string {
	if m.Provider == "" {
		return m.ID
	}
	return m.Provider + "/" + m.ID
}

// AppState is the aggregate state of the operator client.
//
// ChatRunID is empty when no run is believed to be in flight.
type AppState struct {
	Phase      Phase
	StatusText string
	ChatError  string

	Gateway  GatewayConfig
	Hydrated bool

	SessionDefaults *sessionkey.Defaults
	SessionKey      string
	SessionOptions  []string

	ModelOptions   []ModelOption
	ModelSelection string

	ChatMessages []ChatMessage
	ChatStream   string
	ChatSending  bool
	ChatLoading  bool
	ChatRunID    string

	Capabilities Capabilities
	RawEvents    []string
}

// Initial returns the state of a fresh process.
func Initial(cfg GatewayConfig) AppState {
	return AppState{
		Phase:          PhaseDisconnected,
		StatusText:     "Offline",
		Gateway:        cfg,
		SessionKey:     sessionkey.Main,
		SessionOptions: []string{sessionkey.Main},
	}
}

// Clone returns a deep copy of s.
func (s AppState) Clone() AppState {
	out := s
	if s.SessionDefaults != nil {
		d := *s.SessionDefaults
		out.SessionDefaults = &d
	}
	out.SessionOptions = slices.Clone(s.SessionOptions)
	out.ModelOptions = slices.Clone(s.ModelOptions)
	out.ChatMessages = slices.Clone(s.ChatMessages)
	out.RawEvents = slices.Clone(s.RawEvents)
	return out
}

// PushRawEvent records label as the most recent raw event.
func (s *AppState) PushRawEvent(label string) {
	events := make([]string, 0, MaxRawEvents)
	events = append(events, label)
	for _, e := range s.RawEvents {
		if len(events) == MaxRawEvents {
			break
		}
		events = append(events, e)
	}
	s.RawEvents = events
}

// AppendMessage appends m to the transcript.
func (s *AppState) AppendMessage(m ChatMessage) {
	msgs := make([]ChatMessage, 0, len(s.ChatMessages)+1)
	msgs = append(msgs, s.ChatMessages...)
	s.ChatMessages = append(msgs, m)
}
