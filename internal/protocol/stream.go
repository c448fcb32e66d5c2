// Package protocol decodes the assistant server's wire formats: the
// line-delimited chat stream, intent-detection results, and history rows.
package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

// EventType discriminates stream events.
type EventType string

const (
	EventChunk   EventType = "chunk"
	EventSources EventType = "sources"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// StreamEvent is one decoded `data:` line from a chat stream.
type StreamEvent struct {
	Type     EventType     `json:"type"`
	Content  string        `json:"content,omitempty"`  // chunk
	Sources  []chat.Source `json:"sources,omitempty"`  // sources, done
	Response string        `json:"response,omitempty"` // done
	Error    string        `json:"error,omitempty"`    // error
}

const dataPrefix = "data: "

// StreamDecoder reads a chunked chat response line by line. Blank lines are
// skipped; lines that fail to parse are logged and skipped so a single
// corrupted chunk never discards an otherwise-good answer.
type StreamDecoder struct {
	scanner *bufio.Scanner
}

// NewStreamDecoder wraps a response body. The scanner buffer is sized for
// large `done` payloads.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &StreamDecoder{scanner: scanner}
}

// Next returns the next well-formed event. It returns io.EOF when the stream
// ends and the scanner's error for transport failures.
func (d *StreamDecoder) Next() (StreamEvent, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			log.Printf("stream: skipping unframed line: %q", truncate(line, 80))
			continue
		}
		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Printf("stream: skipping malformed chunk: %v", err)
			continue
		}
		switch ev.Type {
		case EventChunk, EventSources, EventDone, EventError:
			return ev, nil
		default:
			log.Printf("stream: skipping unknown event type %q", ev.Type)
		}
	}
	if err := d.scanner.Err(); err != nil {
		return StreamEvent{}, err
	}
	return StreamEvent{}, io.EOF
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
