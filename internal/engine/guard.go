package engine

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// StreamGuard serializes one in-flight turn. It is Idle or Streaming; Begin
// moves it to Streaming, Stop and Finish move it back. Stop closes the
// response body before cancelling the context so a blocked Read unblocks
// immediately instead of waiting for the transport to notice the cancel.
//
// The guard is safe for concurrent use; the engine calls Begin/Stop/Finish
// from its dispatch loop and Attach from the turn goroutine.
type StreamGuard struct {
	mu        sync.Mutex
	streaming bool
	cancel    context.CancelFunc
	body      io.Closer
}

// Begin transitions Idle -> Streaming and returns the turn context. It fails
// with ErrTurnInFlight while a previous turn is still active.
func (g *StreamGuard) Begin(parent context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.streaming {
		return nil, ErrTurnInFlight
	}
	ctx, cancel := context.WithCancel(parent)
	g.streaming = true
	g.cancel = cancel
	g.body = nil
	return ctx, nil
}

// Attach registers the response body so Stop can close it. If the turn was
// stopped between Begin and Attach, the body is closed on the spot.
func (g *StreamGuard) Attach(body io.Closer) {
	g.mu.Lock()
	if g.streaming {
		g.body = body
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	if body != nil {
		body.Close()
	}
}

// Stop aborts the in-flight turn. Calling Stop while Idle is a no-op, as is
// calling it twice.
func (g *StreamGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.streaming {
		return
	}
	g.streaming = false
	if g.body != nil {
		g.body.Close()
		g.body = nil
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// Finish releases the guard after a turn ran to completion.
func (g *StreamGuard) Finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.streaming {
		return
	}
	g.streaming = false
	g.body = nil
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// Streaming reports whether a turn is in flight.
func (g *StreamGuard) Streaming() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streaming
}

// isAbort classifies errors raised by tearing down an in-flight request:
// the context cancel, the transport noticing the closed connection, or a
// read on the closed response body. These are the expected fallout of Stop
// and never produce a user-visible error message.
func isAbort(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"request canceled",
		"context canceled",
		"use of closed network connection",
		"read on closed response body",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
