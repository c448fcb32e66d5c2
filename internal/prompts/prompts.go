// Package prompts holds the user-facing message templates: the intent
// greeting, the YES follow-up prompt sent to the server, and the failure
// apology. Defaults are built in; operators can override them with a YAML
// file.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is one complete template set. Placeholders: greeting uses {firstName}
// and {contents}; yes_followup uses {tcode} and {contents}.
type Set struct {
	Greeting    string `yaml:"greeting"`
	YesFollowup string `yaml:"yes_followup"`
	Apology     string `yaml:"apology"`
	OptionYes   string `yaml:"option_yes"`
	OptionAuto  string `yaml:"option_auto"`
}

// Default returns the built-in Korean portal templates.
func Default() *Set {
	return &Set{
		Greeting:    "{firstName}님, 안녕하세요. 최근 '{contents}' 관련 요청을 검토하고 계셨네요. 이어서 진행하시겠어요?",
		YesFollowup: "사용자가 이전 인텐트({tcode})를 이어서 진행하기로 했습니다. 요청 내용: {contents}. 다음 단계를 안내해 주세요.",
		Apology:     "죄송합니다. 요청을 처리하는 중 문제가 발생했어요. 잠시 후 다시 시도해 주세요.",
		OptionYes:   "YES",
		OptionAuto:  "요청등록",
	}
}

// Load reads a template override file. A missing file is not an error; the
// defaults are returned. Fields left empty in the file keep their defaults.
func Load(path string) (*Set, error) {
	set := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts yaml: %w", err)
	}
	if override.Greeting != "" {
		set.Greeting = override.Greeting
	}
	if override.YesFollowup != "" {
		set.YesFollowup = override.YesFollowup
	}
	if override.Apology != "" {
		set.Apology = override.Apology
	}
	if override.OptionYes != "" {
		set.OptionYes = override.OptionYes
	}
	if override.OptionAuto != "" {
		set.OptionAuto = override.OptionAuto
	}
	return set, nil
}

// GreetingText renders the greeting for a user and a detected intent.
func (s *Set) GreetingText(firstName, contents string) string {
	return expand(s.Greeting, map[string]string{
		"firstName": firstName,
		"contents":  contents,
	})
}

// YesPrompt renders the templated prompt for a "continue with LLM" turn.
func (s *Set) YesPrompt(tcode, contents string) string {
	return expand(s.YesFollowup, map[string]string{
		"tcode":    tcode,
		"contents": contents,
	})
}

func expand(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
