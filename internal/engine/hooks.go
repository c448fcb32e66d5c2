package engine

import (
	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

// Hook is the presentation collaborator surface. Methods are invoked from
// the engine's dispatch loop, so implementations must return quickly and must
// not call back into the engine synchronously.
type Hook interface {
	OnSessionChanged(sessionID string)
	OnTranscriptChanged(msgs []chat.Message)
	OnStreamDelta(sessionID string, delta string)
	OnLoadingChanged(loading bool)
	OnTurnFinished(sessionID string)
	OnIntentModal(category string, options []chat.IntentOption)
	OnFirewallModal(templates []protocol.FirewallTemplate)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnSessionChanged(string)                             {}
func (NopHook) OnTranscriptChanged([]chat.Message)                  {}
func (NopHook) OnStreamDelta(string, string)                        {}
func (NopHook) OnLoadingChanged(bool)                               {}
func (NopHook) OnTurnFinished(string)                               {}
func (NopHook) OnIntentModal(string, []chat.IntentOption)           {}
func (NopHook) OnFirewallModal([]protocol.FirewallTemplate)         {}

// MultiHook fans every callback out to a list of hooks, in order.
type MultiHook []Hook

func (h MultiHook) OnSessionChanged(id string) {
	for _, hook := range h {
		hook.OnSessionChanged(id)
	}
}
func (h MultiHook) OnTranscriptChanged(msgs []chat.Message) {
	for _, hook := range h {
		hook.OnTranscriptChanged(msgs)
	}
}
func (h MultiHook) OnStreamDelta(id, delta string) {
	for _, hook := range h {
		hook.OnStreamDelta(id, delta)
	}
}
func (h MultiHook) OnLoadingChanged(loading bool) {
	for _, hook := range h {
		hook.OnLoadingChanged(loading)
	}
}
func (h MultiHook) OnTurnFinished(id string) {
	for _, hook := range h {
		hook.OnTurnFinished(id)
	}
}
func (h MultiHook) OnIntentModal(category string, options []chat.IntentOption) {
	for _, hook := range h {
		hook.OnIntentModal(category, options)
	}
}
func (h MultiHook) OnFirewallModal(templates []protocol.FirewallTemplate) {
	for _, hook := range h {
		hook.OnFirewallModal(templates)
	}
}

// Event bridges engine hooks to a channel consumer such as the REPL.
type Event struct {
	Kind string // "session", "transcript", "delta", "loading", "turn_finished", "intent_modal", "firewall_modal"
	Data any
}

// ChanHook forwards every hook invocation as an Event.
type ChanHook struct{ Ch chan<- Event }

func (h ChanHook) OnSessionChanged(id string) {
	h.Ch <- Event{Kind: "session", Data: id}
}
func (h ChanHook) OnTranscriptChanged(msgs []chat.Message) {
	h.Ch <- Event{Kind: "transcript", Data: msgs}
}
func (h ChanHook) OnStreamDelta(id, delta string) {
	h.Ch <- Event{Kind: "delta", Data: delta}
}
func (h ChanHook) OnLoadingChanged(loading bool) {
	h.Ch <- Event{Kind: "loading", Data: loading}
}
func (h ChanHook) OnTurnFinished(id string) {
	h.Ch <- Event{Kind: "turn_finished", Data: id}
}
func (h ChanHook) OnIntentModal(category string, options []chat.IntentOption) {
	h.Ch <- Event{Kind: "intent_modal", Data: map[string]any{"category": category, "options": options}}
}
func (h ChanHook) OnFirewallModal(templates []protocol.FirewallTemplate) {
	h.Ch <- Event{Kind: "firewall_modal", Data: templates}
}
