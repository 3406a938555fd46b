package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"lead-agent/internal/domain"
)

type promptContext struct {
	pinnedPrompt string
	businessName string
}

func buildPromptMessages(pc promptContext, req domain.GenerationRequest) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: buildPolicyPrompt(pc.businessName)},
		{Role: "system", Content: buildLeadContextPrompt(pc.pinnedPrompt, req.Lead, req.Missing)},
	}

	history := req.RecentTurns
	if n := len(history); n > 0 && history[n-1].Role == domain.RoleUser &&
		strings.TrimSpace(history[n-1].Text) == strings.TrimSpace(req.LatestText) {
		history = history[:n-1]
	}
	for _, t := range history {
		if m, ok := turnToPromptMessage(t); ok {
			messages = append(messages, m)
		}
	}

	messages = append(messages, domain.ChatMessage{
		Role:    "user",
		Content: strings.TrimSpace(req.LatestText),
	})
	return messages
}

func buildPolicyPrompt(businessName string) string {
	return strings.Join([]string{
		"Role:",
		fmt.Sprintf("You are the chat assistant for %s, a design studio, replying on WhatsApp.", businessName),
		"",
		"Task:",
		"Answer the latest customer message, then move the conversation toward a project brief.",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func buildLeadContextPrompt(pinnedPrompt string, lead domain.Lead, missing []domain.Slot) string {
	known, _ := json.Marshal(lead)
	names := make([]string, 0, len(missing))
	for _, s := range missing {
		names = append(names, string(s))
	}
	still := "none"
	if len(names) > 0 {
		still = strings.Join(names, ", ")
	}
	return fmt.Sprintf(
		"%s\n\nLead Context:\n\nKnown details:\n%s\n\nStill missing (highest priority first):\n%s",
		strings.TrimSpace(pinnedPrompt),
		known,
		still,
	)
}

func turnToPromptMessage(t domain.Turn) (domain.ChatMessage, bool) {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	switch t.Role {
	case domain.RoleUser, domain.RoleAssistant:
		return domain.ChatMessage{Role: string(t.Role), Content: text}, true
	default:
		return domain.ChatMessage{}, false
	}
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Reply in the customer's language, in at most three short sentences.",
		"2) Ask for at most one missing detail per reply, taking the first item of the missing list.",
		"3) Never ask again for a detail listed under known details.",
		"4) When nothing is missing, thank the customer and say a designer will follow up.",
		"5) Do not quote prices or promise delivery dates.",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with a single key reply (string) holding the message to send."
}
