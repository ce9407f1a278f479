// Package protocol defines the gateway WebSocket protocol types used by the
// operator client. Field names follow the gateway's JSON schema.
package protocol

import "encoding/json"

// ProtocolVersion is the current protocol version.
const ProtocolVersion = 3

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Client modes.
const (
	ClientModeCLI  = "cli" // gateway validation only accepts known modes
	ClientModeNode = "node"
)

// Client IDs.
const (
	ClientIDOperator = "cli"
	ClientIDNode     = "node-host"
)

// Connection roles.
const (
	RoleOperator = "operator"
	RoleNode     = "node"
)

// Event names.
const (
	EventTick             = "tick"
	EventShutdown         = "shutdown"
	EventConnectChallenge = "connect.challenge"
	EventChat             = "chat"
	EventAgent            = "agent"
	EventPresence         = "presence"
	EventHealth           = "health"
)

// Method names.
const (
	MethodConnect      = "connect"
	MethodChatSend     = "chat.send"
	MethodChatHistory  = "chat.history"
	MethodChatAbort    = "chat.abort"
	MethodSessionsList = "sessions.list"
	MethodModelsList   = "models.list"
	MethodTalkMode     = "talk.mode"
)

// Capability names advertised by the node connection.
const (
	CapCamera    = "camera"
	CapLocation  = "location"
	CapVoiceWake = "voiceWake"
	CapTalk      = "talk"
)

// Chat event states.
const (
	ChatStateDelta   = "delta"
	ChatStateFinal   = "final"
	ChatStateAborted = "aborted"
	ChatStateError   = "error"
)

// RequestFrame is a client request to the server.
type RequestFrame struct {
	Type   string      `json:"type"` // "req"
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// ResponseFrame is a server response to a request.
type ResponseFrame struct {
	Type    string          `json:"type"` // "res"
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// EventFrame is a server-pushed event.
type EventFrame struct {
	Type    string          `json:"type"` // "event"
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int             `json:"seq,omitempty"`
}

// ErrorShape represents an error from the server.
type ErrorShape struct {
	Code         string      `json:"code"`
	Message      string      `json:"message"`
	Details      interface{} `json:"details,omitempty"`
	Retryable    bool        `json:"retryable,omitempty"`
	RetryAfterMs int         `json:"retryAfterMs,omitempty"`
}

// ConnectParams represents the connect request parameters.
type ConnectParams struct {
	MinProtocol int             `json:"minProtocol"`
	MaxProtocol int             `json:"maxProtocol"`
	Client      ClientInfo      `json:"client"`
	Caps        []string        `json:"caps"`
	Commands    []string        `json:"commands,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	Role        string          `json:"role,omitempty"`
	Scopes      []string        `json:"scopes,omitempty"`
	Auth        *AuthInfo       `json:"auth,omitempty"`
	Device      *DeviceInfo     `json:"device,omitempty"`
}

// ClientInfo contains client identification.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// AuthInfo contains authentication credentials.
type AuthInfo struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// DeviceInfo contains device identity for device auth.
type DeviceInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce,omitempty"`
}

// HelloOk is the successful connect response.
type HelloOk struct {
	Type     string      `json:"type"` // "hello-ok"
	Protocol int         `json:"protocol"`
	Server   ServerInfo  `json:"server"`
	Features Features    `json:"features"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
	Auth     *AuthResult `json:"auth,omitempty"`
}

// ServerInfo contains server information.
type ServerInfo struct {
	Version string `json:"version"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists available methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// AuthResult contains authentication result.
type AuthResult struct {
	DeviceToken string   `json:"deviceToken,omitempty"`
	Role        string   `json:"role,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// Snapshot is the state snapshot attached to hello-ok.
type Snapshot struct {
	SessionDefaults *SessionDefaults `json:"sessionDefaults,omitempty"`
}

// SessionDefaults describes how the gateway names the main session.
type SessionDefaults struct {
	DefaultAgentID string `json:"defaultAgentId"`
	MainKey        string `json:"mainKey"`
	MainSessionKey string `json:"mainSessionKey"`
	Scope          string `json:"scope,omitempty"`
}

// ChatEvent is the payload of a "chat" event.
type ChatEvent struct {
	SessionKey   string      `json:"sessionKey"`
	RunID        string      `json:"runId,omitempty"`
	Seq          int         `json:"seq,omitempty"`
	State        string      `json:"state"`
	Message      interface{} `json:"message,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// AgentEvent is the payload of an "agent" event.
type AgentEvent struct {
	SessionKey string                 `json:"sessionKey,omitempty"`
	RunID      string                 `json:"runId"`
	Seq        int                    `json:"seq,omitempty"`
	Stream     string                 `json:"stream"`
	Ts         int64                  `json:"ts,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ChatHistoryParams are the chat.history request parameters.
type ChatHistoryParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit,omitempty"`
}

// ChatHistoryResult is the chat.history response payload. Messages are kept
// loosely typed; records vary between gateway versions.
type ChatHistoryResult struct {
	SessionKey string        `json:"sessionKey,omitempty"`
	Messages   []interface{} `json:"messages"`
}

// ChatSendParams are the chat.send request parameters.
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Deliver        bool   `json:"deliver"`
	TimeoutMs      int    `json:"timeoutMs,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ChatSendResult is the chat.send acknowledgment.
type ChatSendResult struct {
	RunID  string `json:"runId,omitempty"`
	Status string `json:"status,omitempty"`
}

// ChatAbortParams are the chat.abort request parameters.
type ChatAbortParams struct {
	SessionKey string `json:"sessionKey"`
	RunID      string `json:"runId,omitempty"`
}

// SessionsListParams are the sessions.list request parameters.
type SessionsListParams struct {
	IncludeGlobal  bool `json:"includeGlobal"`
	IncludeUnknown bool `json:"includeUnknown"`
	Limit          int  `json:"limit,omitempty"`
}

// SessionEntry represents a session in listings.
type SessionEntry struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	ModelProvider string `json:"modelProvider,omitempty"`
	Model         string `json:"model,omitempty"`
	UpdatedAt     int64  `json:"updatedAt,omitempty"`
}

// SessionsListResult is the sessions.list response payload.
type SessionsListResult struct {
	Sessions []SessionEntry `json:"sessions"`
}

// ModelEntry is one model offered by the gateway.
type ModelEntry struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
}

// ModelsListResult is the models.list response payload.
type ModelsListResult struct {
	Models []ModelEntry `json:"models"`
}

// TalkModeParams are the talk.mode request parameters.
type TalkModeParams struct {
	Enabled bool `json:"enabled"`
}
