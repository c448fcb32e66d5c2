package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

func testMessages(base time.Time) []chat.Message {
	return []chat.Message{
		chat.NewMessage(chat.RoleUser, "VPN 접속이 안돼요", base),
		chat.NewMessage(chat.RoleAssistant, "클라이언트 재설치를 안내드릴게요", base.Add(2*time.Second)),
	}
}

func TestCacheReplaceAndRead(t *testing.T) {
	ctx := context.Background()
	cache, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := testMessages(base)
	if err := cache.ReplaceSession(ctx, "session_1", msgs); err != nil {
		t.Fatalf("ReplaceSession failed: %v", err)
	}

	got, err := cache.Messages(ctx, "session_1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != 2 || got[0].Content != msgs[0].Content || got[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected cached messages: %+v", got)
	}
}

func TestCacheReplaceIsWholesale(t *testing.T) {
	ctx := context.Background()
	cache, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	base := time.Now()
	if err := cache.ReplaceSession(ctx, "s", testMessages(base)); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}
	replacement := []chat.Message{chat.NewMessage(chat.RoleUser, "only one", base)}
	if err := cache.ReplaceSession(ctx, "s", replacement); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	got, err := cache.Messages(ctx, "s")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "only one" {
		t.Fatalf("replace must drop old rows, got %+v", got)
	}
}

func TestCacheSessionListing(t *testing.T) {
	ctx := context.Background()
	cache, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	base := time.Now()
	if err := cache.ReplaceSession(ctx, "session_a", testMessages(base)); err != nil {
		t.Fatalf("ReplaceSession failed: %v", err)
	}
	if err := cache.ReplaceSession(ctx, "session_b", testMessages(base)); err != nil {
		t.Fatalf("ReplaceSession failed: %v", err)
	}

	metas, err := cache.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(metas))
	}
	for _, meta := range metas {
		if meta.Messages != 2 {
			t.Errorf("session %s: expected 2 messages, got %d", meta.SessionID, meta.Messages)
		}
		if meta.Title != "VPN 접속이 안돼요" {
			t.Errorf("session %s: expected first user message as title, got %q", meta.SessionID, meta.Title)
		}
	}
}

func TestCacheSize(t *testing.T) {
	ctx := context.Background()
	cache, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cache.Close()

	size, err := cache.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size <= 0 {
		t.Fatalf("expected a positive db size, got %d", size)
	}
}
