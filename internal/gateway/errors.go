package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/liteclaw/clawsync/internal/gateway/protocol"
)

// ErrNotConnected is returned for requests without an open connection.
var ErrNotConnected = errors.New("not connected")

// RequestError is a request rejected by the gateway.
type RequestError struct {
	Method    string
	Code      string
	Message   string
	Details   interface{}
	RequestID string
}

func newRequestError(method string, shape *protocol.ErrorShape) *RequestError {
	if shape == nil {
		return &RequestError{Method: method, Message: "request failed"}
	}
	e := &RequestError{
		Method:  method,
		Code:    shape.Code,
		Message: shape.Message,
		Details: shape.Details,
	}
	if details, ok := shape.Details.(map[string]interface{}); ok {
		if id, ok := details["requestId"].(string); ok {
			e.RequestID = id
		}
	}
	return e
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (requestId: %s)", msg, e.RequestID)
	}
	return msg
}

// FormatError renders err as a single human-readable line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}
