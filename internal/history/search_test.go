package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

func openTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	idx, err := OpenSearchIndex(filepath.Join(t.TempDir(), "search.bleve"))
	if err != nil {
		t.Fatalf("OpenSearchIndex failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchFindsIndexedMessage(t *testing.T) {
	idx := openTestIndex(t)
	base := time.Now()
	msgs := []chat.Message{
		chat.NewMessage(chat.RoleUser, "printer is broken again", base),
		chat.NewMessage(chat.RoleAssistant, "I filed a repair request for the printer", base.Add(time.Second)),
	}
	if err := idx.IndexMessages("session_1", msgs); err != nil {
		t.Fatalf("IndexMessages failed: %v", err)
	}

	hits, err := idx.Search("printer", "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].SessionID != "session_1" {
		t.Fatalf("hit missing session id: %+v", hits[0])
	}
}

func TestSearchSessionFilter(t *testing.T) {
	idx := openTestIndex(t)
	base := time.Now()
	if err := idx.IndexMessages("session_a", []chat.Message{
		chat.NewMessage(chat.RoleUser, "reset my password", base),
	}); err != nil {
		t.Fatalf("IndexMessages failed: %v", err)
	}
	if err := idx.IndexMessages("session_b", []chat.Message{
		chat.NewMessage(chat.RoleUser, "password policy question", base),
	}); err != nil {
		t.Fatalf("IndexMessages failed: %v", err)
	}

	hits, err := idx.Search("password", "session_b", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].SessionID != "session_b" {
		t.Fatalf("session filter not applied: %+v", hits)
	}
}

func TestIndexSkipsEmptyPlaceholder(t *testing.T) {
	idx := openTestIndex(t)
	msgs := []chat.Message{
		chat.NewMessage(chat.RoleAssistant, "", time.Now()),
	}
	if err := idx.IndexMessages("s", msgs); err != nil {
		t.Fatalf("IndexMessages failed: %v", err)
	}
	hits, err := idx.Search("anything", "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("empty placeholder should not be indexed: %+v", hits)
	}
}
