package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

var (
	sessionIDMu   sync.Mutex
	lastSessionID int64
)

// NewSessionID generates a local session identifier. Externally supplied ids
// (greeting events) use whatever the sender created. Ids are strictly
// increasing even within one millisecond, so back-to-back chats never share
// an id.
func NewSessionID() string {
	sessionIDMu.Lock()
	defer sessionIDMu.Unlock()
	now := time.Now().UnixMilli()
	if now <= lastSessionID {
		now = lastSessionID + 1
	}
	lastSessionID = now
	return fmt.Sprintf("session_%d", now)
}

// NewChat starts a fresh session: new id, empty transcript, per-session
// counters reset. An in-flight turn is stopped first.
func (e *Engine) NewChat() string {
	ch := make(chan string, 1)
	e.dispatch(func() {
		e.stopTurn()
		e.adoptSession(NewSessionID())
		e.transcript.Clear()
		e.notifyTranscript()
		ch <- e.sessionID
	})
	select {
	case id := <-ch:
		return id
	case <-e.ctx.Done():
		return ""
	}
}

// OpenSession switches to a session selected from the history list. The
// transcript is cleared immediately and repopulated asynchronously.
func (e *Engine) OpenSession(id string) {
	e.dispatch(func() {
		if id == "" || id == e.sessionID {
			return
		}
		e.stopTurn()
		e.adoptSession(id)
		e.transcript.Clear()
		e.notifyTranscript()
		go e.loadHistory(id)
	})
}

// adoptSession runs on the dispatch loop. Changing sessions also bumps the
// generation so effects from streams opened under the old session are stale.
func (e *Engine) adoptSession(id string) {
	if e.sessionID == id {
		return
	}
	e.sessionID = id
	e.gen++
	e.hooks.OnSessionChanged(id)
}

func (e *Engine) loadHistory(id string) {
	rows, err := e.api.History(e.ctx, id)
	e.dispatch(func() { e.applyHistory(id, rows, err) })
}

// applyHistory runs on the dispatch loop.
//
// Greeting injection and history loading are independent asynchronous paths
// that can interleave in either order; the merge below is commutative with
// respect to outcome. An empty fetch never clobbers an injected greeting,
// and a non-empty fetch re-appends the greeting if the server copy has not
// caught up yet.
func (e *Engine) applyHistory(id string, rows []protocol.HistoryRow, err error) {
	if e.sessionID != id {
		// User moved on while the fetch was in flight.
		return
	}
	if err != nil {
		log.Printf("history load failed for %s: %v", id, err)
		e.transcript.Clear()
		e.notifyTranscript()
		return
	}

	var msgs []chat.Message
	for _, row := range rows {
		msgs = append(msgs, row.Messages()...)
	}

	greeting, hasGreeting := e.greetings[id]
	isGreeting := func(m chat.Message) bool {
		return m.Role == chat.RoleAssistant && m.Content == greeting.Content
	}

	// An empty fetch keeps whatever is already on screen; only the greeting
	// is restored if missing (a reopened session whose greeting persistence
	// never made it server-side still shows it).
	if hasGreeting && len(msgs) == 0 {
		if !e.transcript.Contains(isGreeting) {
			e.transcript.Append(greeting)
			e.notifyTranscript()
		}
		return
	}

	e.transcript.ReplaceAll(msgs)
	if hasGreeting && !e.transcript.Contains(isGreeting) {
		e.transcript.Append(greeting)
	}
	e.notifyTranscript()
}
