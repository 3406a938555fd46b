package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"lead-agent/internal/domain"
)

// ParseWebhook decodes a webhook body into inbound events, one per message.
// Messages without answerable text (media, reactions) yield an event with
// empty Text so the caller can acknowledge them without replying.
func ParseWebhook(body []byte) ([]domain.InboundEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	var events []domain.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				// Unparsable timestamps stay 0, which keeps them out of
				// the dedup fingerprint.
				ts, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64)
				if err != nil {
					ts = 0
				}
				events = append(events, domain.InboundEvent{
					SenderID:  m.From,
					EventID:   m.ID,
					Timestamp: ts,
					Text:      messageText(m),
				})
			}
		}
	}
	return events, nil
}

func messageText(m Message) string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		return m.Interactive.ButtonReply.Title
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		return m.Interactive.ListReply.Title
	}
	return ""
}

// VerifyChallenge answers Meta's subscription handshake. It returns the
// challenge to echo and whether the request is valid.
func VerifyChallenge(mode, token, challenge, expectedToken string) (string, bool) {
	if mode != "subscribe" || expectedToken == "" || token != expectedToken {
		return "", false
	}
	return challenge, true
}
