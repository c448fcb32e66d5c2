package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

// HistoryRow is one persisted turn in canonical form. The server's origin
// systems disagree on field-name casing (user_message vs USER_MESSAGE), so
// decoding lowercases every key before mapping.
type HistoryRow struct {
	ID                string
	UserMessage       string
	AssistantResponse string
	Sources           []chat.Source
	IntentOptions     []IntentOptionRow
	CreatedAt         time.Time
}

// DecodeHistory parses the body of GET /chat/history/{sessionId}.
func DecodeHistory(data []byte) ([]HistoryRow, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse history envelope: %w", err)
	}
	raw, ok := lookupFold(envelope, "history")
	if !ok {
		return nil, fmt.Errorf("history envelope missing 'history' field")
	}

	var rawRows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawRows); err != nil {
		return nil, fmt.Errorf("failed to parse history rows: %w", err)
	}

	rows := make([]HistoryRow, 0, len(rawRows))
	for _, rawRow := range rawRows {
		row, err := decodeHistoryRow(rawRow)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeHistoryRow(raw map[string]json.RawMessage) (HistoryRow, error) {
	fields := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}

	var row HistoryRow
	row.ID = decodeFlexibleID(fields["id"])
	row.UserMessage = decodeString(fields["user_message"])
	row.AssistantResponse = decodeString(fields["assistant_response"])

	if raw, ok := fields["sources"]; ok {
		// Tolerate null and bad shapes the same way the stream path does.
		_ = json.Unmarshal(raw, &row.Sources)
	}
	if raw, ok := fields["intent_options"]; ok {
		_ = json.Unmarshal(raw, &row.IntentOptions)
	}

	ts, err := decodeTimestamp(fields["created_at"])
	if err != nil {
		return HistoryRow{}, fmt.Errorf("history row %q: %w", row.ID, err)
	}
	row.CreatedAt = ts
	return row, nil
}

// Messages expands a row into its user/assistant pair. Both carry the row's
// creation time; the transcript ordering law breaks the tie user-first.
func (r HistoryRow) Messages() []chat.Message {
	user := chat.Message{
		ID:            uuid.NewString(),
		Role:          chat.RoleUser,
		Content:       r.UserMessage,
		Timestamp:     r.CreatedAt,
		ChatHistoryID: r.ID,
	}
	assistant := chat.Message{
		ID:            uuid.NewString(),
		Role:          chat.RoleAssistant,
		Content:       r.AssistantResponse,
		Sources:       r.Sources,
		IntentOptions: NormalizeOptions(r.IntentOptions),
		Timestamp:     r.CreatedAt,
		ChatHistoryID: r.ID,
	}
	return []chat.Message{user, assistant}
}

func lookupFold(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func decodeString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// decodeFlexibleID accepts both string and numeric row IDs.
func decodeFlexibleID(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// decodeTimestamp accepts RFC3339 strings, zone-less strings, and unix
// second or millisecond numbers.
func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if raw == nil {
		return time.Time{}, fmt.Errorf("missing created_at")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized created_at format %q", s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid numeric created_at %q", n.String())
		}
		// Millisecond timestamps are 13 digits, seconds 10.
		if v > 1e12 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported created_at value")
}
