// Package engine drives one assistant chat session end to end: it multiplexes
// user turns against the server's token stream and keeps a single coherent,
// correctly ordered transcript across session switches, history reloads,
// greeting injections, and mid-stream cancellation.
//
// All shared state (active session id, transcript, turn generation) is owned
// by a single dispatch loop; every mutation is a closure posted to that loop.
// Effects from a finished or cancelled stream carry the session id and
// generation they were opened for and are dropped when state has moved on.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/client"
	"github.com/yunseo-dev/esmchat/internal/prompts"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

var (
	// ErrEmptyMessage rejects blank outbound turns.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight rejects a second turn while one is streaming.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// Backend is the server collaborator consumed by the engine.
type Backend interface {
	OpenTurn(ctx context.Context, req client.TurnRequest) (*client.TurnResponse, error)
	History(ctx context.Context, sessionID string) ([]protocol.HistoryRow, error)
	SaveGreeting(ctx context.Context, rec client.GreetingRecord) error
	MarkGreeted(ctx context.Context, intentID string) error
}

// Options configures an Engine.
type Options struct {
	ModuleType string
	FirstName  string
	Prompts    *prompts.Set
	Hooks      Hook
	Bus        *Bus
}

// Engine is the conversational session engine.
type Engine struct {
	api        Backend
	hooks      Hook
	bus        *Bus
	prompts    *prompts.Set
	moduleType string
	firstName  string

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the dispatch loop. Never touched from other goroutines.
	sessionID  string
	transcript *chat.Transcript
	guard      StreamGuard
	gen        int
	loading    bool
	greetings  map[string]chat.Message
}

// New creates an engine. Nil options fall back to no-op hooks, the default
// prompt set, and a private bus.
func New(api Backend, opts Options) *Engine {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NopHook{}
	}
	set := opts.Prompts
	if set == nil {
		set = prompts.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = NewBus()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		api:        api,
		hooks:      hooks,
		bus:        bus,
		prompts:    set,
		moduleType: opts.ModuleType,
		firstName:  opts.FirstName,
		ops:        make(chan func(), 64),
		ctx:        ctx,
		cancel:     cancel,
		transcript: chat.NewTranscript(),
		greetings:  make(map[string]chat.Message),
	}
}

// Start launches the dispatch loop and subscribes to the event bus.
func (e *Engine) Start() {
	e.bus.SubscribeOpenIntent(e.handleOpenIntentChat)
	e.bus.SubscribeYesClicked(e.handleYesClicked)
	e.wg.Add(1)
	go e.loop()
}

// Close stops the dispatch loop and cancels any in-flight turn.
func (e *Engine) Close() {
	e.guard.Stop()
	e.cancel()
	e.wg.Wait()
}

// Bus returns the engine's event bus for external publishers.
func (e *Engine) Bus() *Bus { return e.bus }

func (e *Engine) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case op := <-e.ops:
			op()
		}
	}
}

// dispatch posts a mutation to the loop. After Close the op is dropped.
func (e *Engine) dispatch(op func()) {
	select {
	case e.ops <- op:
	case <-e.ctx.Done():
	}
}

// ActiveSession returns the current session id ("" while Fresh).
func (e *Engine) ActiveSession() string {
	ch := make(chan string, 1)
	e.dispatch(func() { ch <- e.sessionID })
	select {
	case id := <-ch:
		return id
	case <-e.ctx.Done():
		return ""
	}
}

// Messages returns a snapshot of the active transcript.
func (e *Engine) Messages() []chat.Message {
	ch := make(chan []chat.Message, 1)
	e.dispatch(func() { ch <- e.transcript.Messages() })
	select {
	case msgs := <-ch:
		return msgs
	case <-e.ctx.Done():
		return nil
	}
}

// Loading reports whether a turn is in flight.
func (e *Engine) Loading() bool {
	ch := make(chan bool, 1)
	e.dispatch(func() { ch <- e.loading })
	select {
	case v := <-ch:
		return v
	case <-e.ctx.Done():
		return false
	}
}

// stale reports whether an effect from an earlier stream no longer applies:
// the session changed, or the turn was stopped or superseded.
func (e *Engine) stale(sid string, gen int) bool {
	return e.sessionID != sid || e.gen != gen
}

func (e *Engine) setLoading(loading bool) {
	if e.loading == loading {
		return
	}
	e.loading = loading
	e.hooks.OnLoadingChanged(loading)
}

func (e *Engine) notifyTranscript() {
	e.hooks.OnTranscriptChanged(e.transcript.Messages())
}
