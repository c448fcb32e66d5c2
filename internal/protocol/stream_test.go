package protocol

import (
	"io"
	"strings"
	"testing"
)

func collectEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()
	dec := NewStreamDecoder(strings.NewReader(body))
	var events []StreamEvent
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		events = append(events, ev)
	}
}

func TestDecodeChunkSequence(t *testing.T) {
	body := "data: {\"type\":\"chunk\",\"content\":\"Hi\"}\n" +
		"\n" +
		"data: {\"type\":\"chunk\",\"content\":\" there\"}\n" +
		"data: {\"type\":\"sources\",\"sources\":[{\"title\":\"KB-42\"}]}\n" +
		"data: {\"type\":\"done\",\"response\":\"Hi there\",\"sources\":[]}\n"

	events := collectEvents(t, body)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != EventChunk || events[0].Content != "Hi" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[2].Type != EventSources || len(events[2].Sources) != 1 {
		t.Fatalf("unexpected sources event: %+v", events[2])
	}
	if events[3].Type != EventDone || events[3].Response != "Hi there" {
		t.Fatalf("unexpected done event: %+v", events[3])
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	body := "data: {\"type\":\"chunk\",\"content\":\"a\"}\n" +
		"data: {not json at all\n" +
		"noise without prefix\n" +
		"data: {\"type\":\"wat\"}\n" +
		"data: {\"type\":\"chunk\",\"content\":\"b\"}\n"

	events := collectEvents(t, body)
	if len(events) != 2 {
		t.Fatalf("expected malformed lines to be skipped, got %d events", len(events))
	}
	if events[0].Content+events[1].Content != "ab" {
		t.Fatalf("lost good chunks around malformed line: %+v", events)
	}
}

func TestErrorEvent(t *testing.T) {
	events := collectEvents(t, "data: {\"type\":\"error\",\"error\":\"backend down\"}\n")
	if len(events) != 1 || events[0].Type != EventError || events[0].Error != "backend down" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEmptyStreamReturnsEOF(t *testing.T) {
	dec := NewStreamDecoder(strings.NewReader(""))
	if _, err := dec.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestLargeDonePayload(t *testing.T) {
	long := strings.Repeat("한", 100_000)
	body := "data: {\"type\":\"done\",\"response\":\"" + long + "\"}\n"
	events := collectEvents(t, body)
	if len(events) != 1 || events[0].Response != long {
		t.Fatal("large done payload was not decoded intact")
	}
}
