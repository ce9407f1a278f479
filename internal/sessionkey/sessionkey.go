// Package sessionkey canonicalizes gateway session keys.
//
// The gateway refers to its main session by several spellings ("main", the
// configured main key, and agent-qualified forms). Until the gateway has told
// us its defaults every key maps to itself.
package sessionkey

import (
	"fmt"
	"strings"
)

// Main is the bootstrap alias for the main session.
const Main = "main"

// bootstrapMain is the agent-qualified spelling of Main used by gateways whose
// defaults are not known yet.
const bootstrapMain = "agent:main:main"

// Defaults are the per-connection session naming defaults reported by the
// gateway in its operator hello.
type Defaults struct {
	DefaultAgentID string
	MainKey        string
	MainSessionKey string
	Scope          string
}

// Known reports whether d carries usable defaults.
func Known(d *Defaults) bool {
	return d != nil && strings.TrimSpace(d.MainSessionKey) != ""
}

func (d *Defaults) aliases() []string {
	out := []string{Main}
	if d.MainKey != "" {
		out = append(out, d.MainKey)
	}
	if d.DefaultAgentID != "" {
		out = append(out, fmt.Sprintf("agent:%s:main", d.DefaultAgentID))
		if d.MainKey != "" {
			out = append(out, fmt.Sprintf("agent:%s:%s", d.DefaultAgentID, d.MainKey))
		}
	}
	return out
}

// Normalize returns the canonical form of key. A nil d, or defaults without a
// main session key, leave the trimmed key unchanged.
func Normalize(key string, d *Defaults) string {
	trimmed := strings.TrimSpace(key)
	if !Known(d) {
		return trimmed
	}
	for _, alias := range d.aliases() {
		if trimmed == alias {
			return d.MainSessionKey
		}
	}
	return trimmed
}

// Match reports whether a and b name the same session.
func Match(a, b string, d *Defaults) bool {
	na, nb := Normalize(a, d), Normalize(b, d)
	if na == nb {
		return true
	}
	if Known(d) {
		return false
	}
	// TODO: the bootstrap pair only covers the "main" agent; other agent ids
	// need a rule from the gateway before they can be aliased here.
	return (na == Main && nb == bootstrapMain) || (na == bootstrapMain && nb == Main)
}

// DedupeOptions normalizes options, dropping empty and repeated keys while
// keeping first-seen order.
func DedupeOptions(options []string, d *Defaults) []string {
	seen := make(map[string]struct{}, len(options))
	out := make([]string, 0, len(options))
	for _, opt := range options {
		key := Normalize(opt, d)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// EnsureOption returns options with key appended when no option matches it.
func EnsureOption(options []string, key string, d *Defaults) []string {
	key = Normalize(key, d)
	if key == "" {
		return options
	}
	for _, opt := range options {
		if Match(opt, key, d) {
			return options
		}
	}
	return append(options, key)
}
