// Package chatrun applies gateway chat events to the application state.
//
// Runs are identified opportunistically: a local provisional run id may be
// replaced by the gateway's id, and events for abandoned runs keep arriving
// after a new send. Events are therefore filtered by session and by run
// identity, never by arrival order.
package chatrun

import (
	"github.com/liteclaw/clawsync/internal/gateway/protocol"
	"github.com/liteclaw/clawsync/internal/history"
	"github.com/liteclaw/clawsync/internal/sessionkey"
	"github.com/liteclaw/clawsync/internal/state"
)

// DefaultErrorMessage is shown for error events without a message.
const DefaultErrorMessage = "Chat error"

// Effect describes follow-up work requested by a transition.
type Effect struct {
	// Ignored is set when the event belongs to another session.
	Ignored bool
	// Foreign is set when the event carries a run id other than the tracked one.
	Foreign bool
	// RefreshHistory asks for a quiet history reload.
	RefreshHistory bool
}

// IsForeign reports whether ev belongs to a run other than the tracked one.
func IsForeign(s state.AppState, ev protocol.ChatEvent) bool {
	return ev.RunID != "" && s.ChatRunID != "" && ev.RunID != s.ChatRunID
}

// Reduce returns the state after ev. s is not modified.
func Reduce(s state.AppState, ev protocol.ChatEvent) (state.AppState, Effect) {
	if !sessionkey.Match(ev.SessionKey, s.SessionKey, s.SessionDefaults) {
		return s, Effect{Ignored: true}
	}

	foreign := IsForeign(s, ev)
	eff := Effect{Foreign: foreign}
	next := s

	switch ev.State {
	case protocol.ChatStateDelta:
		if foreign {
			return s, eff
		}
		if text := history.ExtractText(ev.Message); text != "" {
			next.ChatStream = text
		}
		next.ChatError = ""

	case protocol.ChatStateFinal:
		eff.RefreshHistory = true
		next.ChatError = ""
		if !foreign {
			finishRun(&next)
		}

	case protocol.ChatStateAborted:
		eff.RefreshHistory = true
		if foreign {
			return s, eff
		}
		next.ChatError = ""
		finishRun(&next)

	case protocol.ChatStateError:
		if foreign {
			return s, eff
		}
		finishRun(&next)
		msg := ev.ErrorMessage
		if msg == "" {
			msg = DefaultErrorMessage
		}
		next.StatusText = msg
		next.ChatError = msg

	default:
		return s, eff
	}

	return next, eff
}

func finishRun(s *state.AppState) {
	s.ChatStream = ""
	s.ChatRunID = ""
	s.ChatSending = false
}
