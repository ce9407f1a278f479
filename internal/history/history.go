// Package history turns gateway chat history payloads into the local
// transcript.
package history

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liteclaw/clawsync/internal/state"
)

// DuplicateWindow is how close two identical non-user messages must be to be
// treated as a retransmission.
const DuplicateWindow = 30 * time.Second

const errorPrefix = "Error: "

// ExtractText returns the display text of a message payload. It accepts a
// bare string, or an object carrying string content, an array of content
// chunks, a text field, or an errorMessage field, in that order.
func ExtractText(message interface{}) string {
	switch m := message.(type) {
	case string:
		return m
	case map[string]interface{}:
		return extractFromRecord(m)
	}
	return ""
}

func extractFromRecord(m map[string]interface{}) string {
	switch content := m["content"].(type) {
	case string:
		if strings.TrimSpace(content) != "" {
			return content
		}
	case []interface{}:
		if text := joinChunks(content); text != "" {
			return text
		}
	}
	if text, ok := m["text"].(string); ok && strings.TrimSpace(text) != "" {
		return text
	}
	if msg, ok := m["errorMessage"].(string); ok && strings.TrimSpace(msg) != "" {
		return FormatErrorText(msg)
	}
	return ""
}

func joinChunks(chunks []interface{}) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		chunk, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		// {type:"text", text} and any other chunk with a string text field
		if text, ok := chunk["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// FormatErrorText prefixes msg with "Error: " unless it already carries it.
func FormatErrorText(msg string) string {
	msg = strings.TrimSpace(msg)
	if strings.HasPrefix(strings.ToLower(msg), strings.ToLower(errorPrefix)) {
		return msg
	}
	return errorPrefix + msg
}

// ParseRole maps a raw role to a known role, defaulting to assistant.
func ParseRole(raw interface{}) state.Role {
	s, _ := raw.(string)
	switch state.Role(strings.ToLower(strings.TrimSpace(s))) {
	case state.RoleUser:
		return state.RoleUser
	case state.RoleSystem:
		return state.RoleSystem
	default:
		return state.RoleAssistant
	}
}

func parseTimestamp(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// MessageFromRecord converts one raw history record. It returns false when
// the record has no displayable text.
func MessageFromRecord(record interface{}, now time.Time) (state.ChatMessage, bool) {
	m, ok := record.(map[string]interface{})
	if !ok {
		return state.ChatMessage{}, false
	}
	text := extractFromRecord(m)
	if strings.TrimSpace(text) == "" {
		return state.ChatMessage{}, false
	}
	ts, ok := parseTimestamp(m["timestamp"])
	if !ok {
		ts = now.UnixMilli()
	}
	return state.ChatMessage{
		ID:        uuid.NewString(),
		Role:      ParseRole(m["role"]),
		Text:      text,
		Timestamp: ts,
	}, true
}

// Reconcile converts records into a time-ordered transcript with
// retransmitted entries removed. An empty result means the gateway returned
// nothing usable; callers keep their current transcript in that case.
func Reconcile(records []interface{}, now time.Time) []state.ChatMessage {
	msgs := make([]state.ChatMessage, 0, len(records))
	for _, r := range records {
		if msg, ok := MessageFromRecord(r, now); ok {
			msgs = append(msgs, msg)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
	return Dedupe(msgs)
}

// Dedupe drops exact duplicates anywhere in msgs and non-user messages that
// repeat the previously kept message within DuplicateWindow.
func Dedupe(msgs []state.ChatMessage) []state.ChatMessage {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]state.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Text)
		key := fmt.Sprintf("%s|%d|%s", msg.Role, msg.Timestamp, text)
		if _, dup := seen[key]; dup {
			continue
		}
		if n := len(out); n > 0 && isNearDuplicate(out[n-1], msg, text) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, msg)
	}
	return out
}

func isNearDuplicate(prev, msg state.ChatMessage, text string) bool {
	if msg.Role == state.RoleUser || prev.Role != msg.Role {
		return false
	}
	if text == "" || strings.TrimSpace(prev.Text) != text {
		return false
	}
	delta := msg.Timestamp - prev.Timestamp
	if delta < 0 {
		delta = -delta
	}
	return delta <= DuplicateWindow.Milliseconds()
}
