package engine

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/client"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

// applyIntent runs on the dispatch loop. It finalizes a turn whose response
// was a JSON intent result rather than a token stream.
//
// Every branch writes the narrative text into the transcript even when a
// modal takes over: the transcript is the durable record, and a decision
// surfaced only in a transient modal would be lost on reload.
func (e *Engine) applyIntent(sid string, gen int, msgID string, res *protocol.IntentResult) {
	if e.stale(sid, gen) {
		return
	}

	switch {
	case res.IsIntentDetected && res.DisplayType == protocol.DisplayInline:
		options := protocol.NormalizeOptions(res.IntentOptions)
		e.transcript.Patch(msgID, func(m *chat.Message) {
			m.Content = res.Response
			m.IntentOptions = options
			m.IntentCategory = res.IntentCategory
		})
	case res.IsIntentDetected:
		e.transcript.Patch(msgID, func(m *chat.Message) { m.Content = res.Response })
		e.hooks.OnIntentModal(res.IntentCategory, protocol.NormalizeOptions(res.IntentOptions))
	case res.IsFirewallIntent:
		e.transcript.Patch(msgID, func(m *chat.Message) { m.Content = res.Response })
		e.hooks.OnFirewallModal(res.FirewallTemplates)
	default:
		// Plain JSON answer without intent flags.
		e.transcript.Patch(msgID, func(m *chat.Message) { m.Content = res.Response })
	}
	e.notifyTranscript()
}

// handleOpenIntentChat reacts to the login-time recent-intent lookup. The
// session id is adopted unconditionally; the sender just created it.
func (e *Engine) handleOpenIntentChat(ev OpenIntentChat) {
	e.dispatch(func() {
		e.stopTurn()
		e.adoptSession(ev.SessionID)

		if _, ok := e.greetings[ev.SessionID]; ok {
			// Already greeted this session; the event is a duplicate.
			return
		}

		firstName := ev.FirstName
		if firstName == "" {
			firstName = e.firstName
		}

		greeting := chat.Message{
			ID:             uuid.NewString(),
			Role:           chat.RoleAssistant,
			Content:        e.prompts.GreetingText(firstName, ev.Intent.Contents),
			IntentCategory: "recent_intent",
			Timestamp:      time.Now(),
			IntentOptions: []chat.IntentOption{
				{
					ID:         uuid.NewString(),
					Title:      e.prompts.OptionYes,
					ActionType: protocol.ActionLLMContinue,
					ActionData: map[string]any{"tcode": ev.Intent.TCode, "contents": ev.Intent.Contents},
				},
				{
					ID:         uuid.NewString(),
					Title:      e.prompts.OptionAuto,
					ActionType: protocol.ActionRequestAuto,
					ActionData: map[string]any{"tcode": ev.Intent.TCode, "contents": ev.Intent.Contents},
				},
			},
		}

		e.transcript.Clear()
		e.transcript.Append(greeting)
		e.greetings[ev.SessionID] = greeting
		e.notifyTranscript()

		go e.persistGreeting(ev, greeting)
	})
}

// persistGreeting stores the greeting server-side and marks the intent as
// consumed so the lookup does not re-surface it on the next login. Failures
// are logged; the injected greeting stays visible either way.
func (e *Engine) persistGreeting(ev OpenIntentChat, greeting chat.Message) {
	if err := e.api.SaveGreeting(e.ctx, client.GreetingRecord{
		SessionID: ev.SessionID,
		Content:   greeting.Content,
		IntentID:  ev.Intent.ID,
	}); err != nil {
		log.Printf("failed to persist greeting for %s: %v", ev.SessionID, err)
	}
	if err := e.api.MarkGreeted(e.ctx, ev.Intent.ID); err != nil {
		log.Printf("failed to mark intent %s greeted: %v", ev.Intent.ID, err)
	}
}

// handleYesClicked turns the greeting's YES option into a synthetic user
// turn: the transcript shows "YES" while the server receives the templated
// follow-up prompt.
func (e *Engine) handleYesClicked(ev IntentYesClicked) {
	prompt := e.prompts.YesPrompt(ev.TCode, ev.Contents)
	if err := e.send(e.prompts.OptionYes, prompt); err != nil {
		log.Printf("yes follow-up turn rejected: %v", err)
	}
}
