package engine

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/client"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

// Send submits one user turn. It returns ErrEmptyMessage for blank input and
// ErrTurnInFlight while a previous turn is still streaming; the UI is
// expected to disable submission while loading.
func (e *Engine) Send(text string) error {
	return e.send(text, text)
}

// send runs a turn whose displayed user message and outbound payload differ,
// e.g. the greeting's YES option which shows "YES" but sends a templated
// follow-up prompt.
func (e *Engine) send(display, outbound string) error {
	errCh := make(chan error, 1)
	e.dispatch(func() { errCh <- e.startTurn(display, outbound) })
	select {
	case err := <-errCh:
		return err
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// Stop cancels the in-flight turn, if any. Idempotent: a second Stop, or a
// Stop racing a completion, is a no-op and the loser's effect is discarded.
func (e *Engine) Stop() {
	e.dispatch(func() { e.stopTurn() })
}

// startTurn runs on the dispatch loop.
func (e *Engine) startTurn(display, outbound string) error {
	if strings.TrimSpace(outbound) == "" {
		return ErrEmptyMessage
	}
	if e.guard.Streaming() {
		return ErrTurnInFlight
	}
	if e.sessionID == "" {
		e.adoptSession(NewSessionID())
	}

	sid := e.sessionID
	e.gen++
	gen := e.gen

	e.transcript.Append(chat.NewMessage(chat.RoleUser, display, time.Now()))
	// The placeholder timestamp is captured after the user insertion; the
	// ordering law keeps the pair in place even on equal clocks.
	placeholder := chat.NewMessage(chat.RoleAssistant, "", time.Now())
	e.transcript.Append(placeholder)
	e.notifyTranscript()

	ctx, err := e.guard.Begin(e.ctx)
	if err != nil {
		return err
	}
	e.setLoading(true)

	go e.runTurn(ctx, sid, gen, placeholder.ID, outbound)
	return nil
}

// stopTurn runs on the dispatch loop.
func (e *Engine) stopTurn() {
	if !e.guard.Streaming() {
		return
	}
	e.guard.Stop()
	// Late effects from the stopped stream carry the old generation and are
	// discarded by the staleness check.
	e.gen++
	e.setLoading(false)
}

// runTurn reads one turn off the loop. Every transcript effect goes back
// through dispatch with the (session, generation) it was opened under.
func (e *Engine) runTurn(ctx context.Context, sid string, gen int, msgID, outbound string) {
	defer e.dispatch(func() { e.finishTurn(sid, gen) })

	resp, err := e.api.OpenTurn(ctx, client.TurnRequest{
		Message:    outbound,
		SessionID:  sid,
		ModuleType: e.moduleType,
	})
	if err != nil {
		if isAbort(err) || ctx.Err() != nil {
			return
		}
		log.Printf("turn request failed: %v", err)
		e.dispatch(func() { e.failTurn(sid, gen, msgID) })
		return
	}

	// A JSON body is an intent-detection result; no stream is opened.
	if resp.Intent != nil {
		result := resp.Intent
		e.dispatch(func() { e.applyIntent(sid, gen, msgID, result) })
		return
	}

	e.guard.Attach(resp.Stream)
	defer resp.Stream.Close()

	dec := protocol.NewStreamDecoder(resp.Stream)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			// Stream ended without a done event; keep whatever arrived.
			return
		}
		if err != nil {
			if isAbort(err) || ctx.Err() != nil {
				return
			}
			log.Printf("stream read failed: %v", err)
			e.dispatch(func() { e.failTurn(sid, gen, msgID) })
			return
		}

		switch ev.Type {
		case protocol.EventChunk:
			delta := ev.Content
			e.dispatch(func() { e.applyChunk(sid, gen, msgID, delta) })
		case protocol.EventSources:
			sources := ev.Sources
			e.dispatch(func() { e.applySources(sid, gen, msgID, sources) })
		case protocol.EventDone:
			done := ev
			e.dispatch(func() { e.applyDone(sid, gen, msgID, done) })
			return
		case protocol.EventError:
			log.Printf("server signaled turn error: %s", ev.Error)
			e.dispatch(func() { e.failTurn(sid, gen, msgID) })
			return
		}
	}
}

// applyChunk runs on the dispatch loop.
func (e *Engine) applyChunk(sid string, gen int, msgID, delta string) {
	if e.stale(sid, gen) {
		return
	}
	e.transcript.Patch(msgID, func(m *chat.Message) { m.Content += delta })
	e.hooks.OnStreamDelta(sid, delta)
	e.notifyTranscript()
}

// applySources runs on the dispatch loop.
func (e *Engine) applySources(sid string, gen int, msgID string, sources []chat.Source) {
	if e.stale(sid, gen) {
		return
	}
	e.transcript.Patch(msgID, func(m *chat.Message) { m.Sources = sources })
	e.notifyTranscript()
}

// applyDone runs on the dispatch loop. The done payload is authoritative: it
// replaces the streamed partial state instead of merging with it.
func (e *Engine) applyDone(sid string, gen int, msgID string, ev protocol.StreamEvent) {
	if e.stale(sid, gen) {
		// A stop won the race against this completion; discard the write.
		return
	}
	e.transcript.Patch(msgID, func(m *chat.Message) {
		m.Content = ev.Response
		m.Sources = ev.Sources
	})
	e.notifyTranscript()
}

// failTurn runs on the dispatch loop. All turn failures collapse into one
// user-visible apology; the user resends, nothing retries automatically.
func (e *Engine) failTurn(sid string, gen int, msgID string) {
	if e.stale(sid, gen) {
		return
	}
	e.transcript.Patch(msgID, func(m *chat.Message) {
		m.Content = e.prompts.Apology
		m.Sources = nil
	})
	e.notifyTranscript()
}

// finishTurn runs on the dispatch loop after the turn goroutine exits for any
// reason. The turn-finished notification fires on success, failure, and
// cancellation so listeners can refresh derived state (history cache).
func (e *Engine) finishTurn(sid string, gen int) {
	if e.gen == gen {
		e.guard.Finish()
		e.setLoading(false)
	}
	e.hooks.OnTurnFinished(sid)
}
