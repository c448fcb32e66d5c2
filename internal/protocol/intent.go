package protocol

import (
	"log"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

// Display types for intent results.
const (
	DisplayInline = "inline"
	DisplayModal  = "modal"
)

// Well-known intent action types.
const (
	ActionLLMContinue    = "llm_continue"
	ActionRequestAuto    = "esm_request_auto"
	ActionNavigate       = "navigate"
	ActionFirewallDetail = "firewall_detail"
)

// IntentResult is the JSON (non-streamed) response of POST /chat/stream when
// the server classified the turn as an intent instead of a free-form answer.
type IntentResult struct {
	IsIntentDetected  bool               `json:"isIntentDetected"`
	IsFirewallIntent  bool               `json:"isFirewallIntent"`
	DisplayType       string             `json:"displayType"`
	Response          string             `json:"response"`
	IntentCategory    string             `json:"intentCategory"`
	IntentOptions     []IntentOptionRow  `json:"intentOptions"`
	FirewallTemplates []FirewallTemplate `json:"firewallTemplates"`
}

// IntentOptionRow is the raw option shape before normalization.
type IntentOptionRow struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ActionType  string         `json:"actionType"`
	ActionData  map[string]any `json:"actionData"`
	IconName    string         `json:"iconName"`
}

// FirewallTemplate is a prefilled firewall-request template offered by the
// firewall intent branch.
type FirewallTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// actionDataSchemas validates actionData per action type at the system
// boundary. Unknown action types pass through unvalidated; the portal adds
// new ones without a client release.
var actionDataSchemas = map[string]gojsonschema.JSONLoader{
	ActionLLMContinue: gojsonschema.NewStringLoader(`{
		"type": "object",
		"properties": {
			"tcode":    {"type": "string"},
			"contents": {"type": "string"}
		},
		"required": ["tcode"]
	}`),
	ActionRequestAuto: gojsonschema.NewStringLoader(`{
		"type": "object",
		"properties": {
			"tcode":    {"type": "string"},
			"contents": {"type": "string"}
		},
		"required": ["tcode"]
	}`),
	ActionNavigate: gojsonschema.NewStringLoader(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "minLength": 1}
		},
		"required": ["url"]
	}`),
}

// NormalizeOptions converts raw option rows into the canonical message shape.
// Options whose actionData fails schema validation are dropped with a log
// line; a partially bad option set must not discard the whole result.
func NormalizeOptions(rows []IntentOptionRow) []chat.IntentOption {
	var out []chat.IntentOption
	for _, row := range rows {
		if row.Title == "" || row.ActionType == "" {
			log.Printf("intent: dropping option with missing title or actionType (id=%q)", row.ID)
			continue
		}
		if !validActionData(row.ActionType, row.ActionData) {
			log.Printf("intent: dropping option %q: actionData failed %s schema", row.Title, row.ActionType)
			continue
		}
		id := row.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, chat.IntentOption{
			ID:          id,
			Title:       row.Title,
			Description: row.Description,
			ActionType:  row.ActionType,
			ActionData:  row.ActionData,
			IconName:    row.IconName,
		})
	}
	return out
}

func validActionData(actionType string, data map[string]any) bool {
	schema, known := actionDataSchemas[actionType]
	if !known {
		return true
	}
	if data == nil {
		data = map[string]any{}
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(data))
	if err != nil {
		log.Printf("intent: schema validation error for %s: %v", actionType, err)
		return false
	}
	return result.Valid()
}
