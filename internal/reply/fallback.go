package reply

import (
	"regexp"
	"strings"

	"lead-agent/internal/domain"
)

const (
	openingQuestion = "Hi! Thanks for reaching out. What can we design for you: a logo, branding, a website, social media content, a menu, or a pitch deck?"
	closingMessage  = "Thank you, that's everything we need for now. A designer from our team will follow up shortly."
)

var slotQuestions = map[domain.Slot]string{
	domain.SlotService:        "What do you need designed: a logo, branding, a website, social media content, a menu, or a pitch deck?",
	domain.SlotTimeline:       "When would you like this delivered? Do you have a deadline in mind?",
	domain.SlotBrandName:      "What's the name of your brand or business?",
	domain.SlotStyle:          "What style are you going for (modern, minimal, bold, luxury, vintage...)? Any references you like?",
	domain.SlotBudget:         "Do you have a budget range in mind for this project?",
	domain.SlotContactName:    "May I have your name, please?",
	domain.SlotContactChannel: "Would you like to continue here on WhatsApp or by email?",
}

// topicCues mark a topic as already covered when the sender's own recent
// messages mention it, even if the extractor could not fill the slot.
var topicCues = map[domain.Slot]*regexp.Regexp{
	domain.SlotService:     regexp.MustCompile(`\b(?:logos?|branding|identity|web ?sites?|landing|social|content|menus?|decks?|presentations?)\b`),
	domain.SlotTimeline:    regexp.MustCompile(`\b(?:deadline|asap|urgent|today|tomorrow|weeks?|months?|days?)\b`),
	domain.SlotBrandName:   regexp.MustCompile(`\b(?:brand|business|company) name\b|\bcalled\b`),
	domain.SlotStyle:       regexp.MustCompile(`\b(?:style|modern|minimal\w*|bold|luxury|vintage|classic|clean|playful|traditional)\b`),
	domain.SlotBudget:      regexp.MustCompile(`\b(?:budget|price|cost|usd|eur|dollars?)\b|[$€£]`),
	domain.SlotContactName: regexp.MustCompile(`\bmy name\b`),
}

// Fallback picks a deterministic next question. It never returns "".
func Fallback(l domain.Lead, missing []domain.Slot, turns []domain.Turn) string {
	if l.Empty() && priorUserTurns(turns) == 0 {
		return openingQuestion
	}
	if len(missing) == 0 {
		return closingMessage
	}
	said := strings.ToLower(userText(turns))
	for _, s := range missing {
		if cue, ok := topicCues[s]; ok && cue.MatchString(said) {
			continue
		}
		if q, ok := slotQuestions[s]; ok {
			return q
		}
	}
	return closingMessage
}

// priorUserTurns counts user turns before the latest one.
func priorUserTurns(turns []domain.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			n++
		}
	}
	if n > 0 {
		n--
	}
	return n
}

func userText(turns []domain.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role != domain.RoleUser {
			continue
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
