package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTemplates(t *testing.T) {
	set := Default()
	greeting := set.GreetingText("지민", "노트북 교체")
	if !strings.Contains(greeting, "지민") || !strings.Contains(greeting, "노트북 교체") {
		t.Fatalf("greeting did not expand placeholders: %q", greeting)
	}
	prompt := set.YesPrompt("TC100", "노트북 교체")
	if !strings.Contains(prompt, "TC100") || !strings.Contains(prompt, "노트북 교체") {
		t.Fatalf("yes prompt did not expand placeholders: %q", prompt)
	}
	if set.OptionYes != "YES" || set.OptionAuto != "요청등록" {
		t.Fatalf("unexpected option labels: %q, %q", set.OptionYes, set.OptionAuto)
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if set.Apology != Default().Apology {
		t.Fatal("expected defaults for a missing file")
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "greeting: \"Hello {firstName}\"\noption_yes: \"OK\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := set.GreetingText("Sam", ""); got != "Hello Sam" {
		t.Fatalf("override not applied: %q", got)
	}
	if set.OptionYes != "OK" {
		t.Fatalf("option override not applied: %q", set.OptionYes)
	}
	if set.Apology != Default().Apology {
		t.Fatal("unset fields must keep defaults")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("greeting: [unclosed"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
