package lead

import (
	"regexp"
	"strings"

	"lead-agent/internal/domain"
)

// capture returns the value to store for utterance, or "" when the
// alternative does not fire. lower is the lower-cased utterance used for
// matching; captures come from the original text.
type capture func(text, lower string) string

type rule struct {
	slot         domain.Slot
	alternatives []capture
}

// Platform is the channel name recorded when the sender asks to continue in
// the current chat.
const Platform = "whatsapp"

var (
	logoRE     = regexp.MustCompile(`\blogo(type)?s?\b`)
	brandingRE = regexp.MustCompile(`\bbranding\b|\bidentity\b`)
	websiteRE  = regexp.MustCompile(`\bweb ?sites?\b|\blanding ?pages?\b`)
	socialRE   = regexp.MustCompile(`\bsocial media\b|\bsocial\b|\bcontent\b`)
	menuRE     = regexp.MustCompile(`\bmenus?\b`)
	deckRE     = regexp.MustCompile(`\bpitch ?decks?\b|\bpresentations?\b`)

	timelineInRE = regexp.MustCompile(`(?i)\bin\s+\d+\s+(?:days?|weeks?|months?)\b`)
	urgencyRE    = regexp.MustCompile(`\b(?:asap|urgent(?:ly)?|today|tomorrow|this week|next week)\b`)

	currencyRE    = regexp.MustCompile(`[$€£¥₹]|\b(?:usd|eur|gbp|aed|sar|egp|inr|dollars?|euros?|pounds?)\b|\bmillion\b|\b\d+(?:\.\d+)?\s?k\b`)
	numberRangeRE = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:-|–|to)\s*\d+(?:[.,]\d+)?\b`)

	hereRE     = regexp.MustCompile(`\bhere\b|\bwhats ?app\b`)
	emailRE    = regexp.MustCompile(`\be-?mail\b`)
	brandIsRE  = regexp.MustCompile(`(?i)\b(?:(?:brand|business|company)(?:'s)?\s*name|brand)\s*(?:is\b|:)\s*(.+)`)
	sentenceRE = regexp.MustCompile(`[.!?]`)
	nameIsRE   = regexp.MustCompile(`\b(?i:my name is|my name's)\s+(\p{L}[\p{L}'\-]*(?:\s+\p{Lu}[\p{L}'\-]*)?)`)

	styleRE = regexp.MustCompile(`\b(?:modern|minimal(?:ist|istic)?|bold|luxury|luxurious|traditional|clean|playful|vintage|retro|elegant|classic|arabic|islamic|pharaonic|japanese|scandinavian|mediterranean|boho)\b`)
	refsRE  = regexp.MustCompile(`https?://\S+|\bwww\.\S+|\b[a-z0-9-]+\.(?:com|net|org|io|co|me|design)\b|\b(?:behance|dribbble|pinterest)\b`)

	disqualifyRE = regexp.MustCompile(`\b(?:i need|i want|need|want|looking for|please|my name|i'm|i am|budget|price|cost|how much|logo|website|menu|modern|hello|hi|hey|thanks|thank you|yes|no|ok|okay|asap|urgent|today|tomorrow|days?|weeks?|months?|email|here|whatsapp)\b`)
)

// serviceCategories is checked in order; the first matching category wins.
var serviceCategories = []struct {
	re   *regexp.Regexp
	name string
}{
	{logoRE, "logo"},
	{brandingRE, "branding"},
	{websiteRE, "website"},
	{socialRE, "social media"},
	{menuRE, "menu"},
	{deckRE, "pitch deck"},
}

// wholeIf captures the full original utterance when re matches.
func wholeIf(re *regexp.Regexp) capture {
	return func(text, lower string) string {
		if re.MatchString(lower) {
			return text
		}
		return ""
	}
}

// constIf captures a fixed value when re matches.
func constIf(re *regexp.Regexp, value string) capture {
	return func(_, lower string) string {
		if re.MatchString(lower) {
			return value
		}
		return ""
	}
}

// submatch captures the first group of re in the original text.
func submatch(re *regexp.Regexp) capture {
	return func(text, _ string) string {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			return ""
		}
		return strings.TrimRight(strings.TrimSpace(m[1]), ".!?,;")
	}
}

func serviceCapture(_, lower string) string {
	for _, c := range serviceCategories {
		if c.re.MatchString(lower) {
			return c.name
		}
	}
	return ""
}

func timelineInCapture(text, _ string) string {
	return timelineInRE.FindString(text)
}

// shortBrandReply accepts a bare short answer as the brand name. It exists
// for replies to "what's your brand name?".
func shortBrandReply(text, lower string) string {
	n := len([]rune(text))
	if n < 3 || n > 40 {
		return ""
	}
	if sentenceRE.MatchString(text) || disqualifyRE.MatchString(lower) {
		return ""
	}
	return text
}

// rules maps each slot to its ordered alternatives.
var rules = []rule{
	{slot: domain.SlotService, alternatives: []capture{serviceCapture}},
	{slot: domain.SlotTimeline, alternatives: []capture{timelineInCapture, wholeIf(urgencyRE)}},
	{slot: domain.SlotBudget, alternatives: []capture{wholeIf(currencyRE), wholeIf(numberRangeRE)}},
	{slot: domain.SlotContactChannel, alternatives: []capture{constIf(hereRE, Platform), constIf(emailRE, "email")}},
	{slot: domain.SlotBrandName, alternatives: []capture{submatch(brandIsRE), shortBrandReply}},
	{slot: domain.SlotStyle, alternatives: []capture{wholeIf(styleRE)}},
	{slot: domain.SlotReferences, alternatives: []capture{wholeIf(refsRE)}},
	{slot: domain.SlotContactName, alternatives: []capture{submatch(nameIsRE)}},
}

// Extract returns current with every empty slot that utterance fills. Filled
// slots are never overwritten.
func Extract(current domain.Lead, utterance string) domain.Lead {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return current
	}
	lower := strings.ToLower(text)

	next := current
	for _, r := range rules {
		if current.Get(r.slot) != "" {
			continue
		}
		for _, alt := range r.alternatives {
			if v := alt(text, lower); v != "" {
				next = next.With(r.slot, v)
				break
			}
		}
	}
	return next
}
