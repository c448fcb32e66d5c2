package engine

import "sync"

// IntentRef identifies a server-detected intent: the transaction code and the
// free-text contents the classifier matched.
type IntentRef struct {
	ID       string
	TCode    string
	Contents string
}

// OpenIntentChat asks the engine to open a session with a greeting tied to a
// previously detected intent. The sender (the login-time recent-intent
// lookup) is trusted to have just created the target session, so the engine
// adopts the session id unconditionally.
type OpenIntentChat struct {
	SessionID string
	Intent    IntentRef
	FirstName string
}

// IntentYesClicked reports that the user accepted a greeting's YES option.
type IntentYesClicked struct {
	TCode    string
	Contents string
}

// Bus is a typed in-process event bus with fire-and-forget delivery to any
// number of independent subscribers.
type Bus struct {
	mu         sync.RWMutex
	openIntent []func(OpenIntentChat)
	yesClicked []func(IntentYesClicked)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeOpenIntent registers a handler for open-intent-chat events.
func (b *Bus) SubscribeOpenIntent(fn func(OpenIntentChat)) {
	b.mu.Lock()
	b.openIntent = append(b.openIntent, fn)
	b.mu.Unlock()
}

// SubscribeYesClicked registers a handler for yes-clicked events.
func (b *Bus) SubscribeYesClicked(fn func(IntentYesClicked)) {
	b.mu.Lock()
	b.yesClicked = append(b.yesClicked, fn)
	b.mu.Unlock()
}

// PublishOpenIntent delivers an event to every subscriber. Each handler runs
// in its own goroutine; a slow listener cannot hold up the sender.
func (b *Bus) PublishOpenIntent(ev OpenIntentChat) {
	b.mu.RLock()
	handlers := append([]func(OpenIntentChat){}, b.openIntent...)
	b.mu.RUnlock()
	for _, fn := range handlers {
		go fn(ev)
	}
}

// PublishYesClicked delivers an event to every subscriber.
func (b *Bus) PublishYesClicked(ev IntentYesClicked) {
	b.mu.RLock()
	handlers := append([]func(IntentYesClicked){}, b.yesClicked...)
	b.mu.RUnlock()
	for _, fn := range handlers {
		go fn(ev)
	}
}
