package reply

import (
	"fmt"
	"regexp"
	"strings"
)

type quickRule struct {
	name string
	re   *regexp.Regexp
	text func(business string) string
}

var quickRules = []quickRule{
	{
		name: "services",
		re:   regexp.MustCompile(`\bwhat (?:services|do you (?:offer|do)|can you do)\b|\byour services\b|\bservices (?:do you|you) offer\b|\blist of services\b`),
		text: func(business string) string {
			return fmt.Sprintf("%s offers logo design, full brand identity, websites and landing pages, "+
				"social media content, menus, and pitch decks. Which of these are you interested in?", business)
		},
	},
	{
		name: "collaboration",
		re:   regexp.MustCompile(`\bcollab(?:orat\w*|s)?\b|\bpartner(?:ship|ing|s)?\b`),
		text: func(business string) string {
			return fmt.Sprintf("Thanks for thinking of %s! We're open to collaborations. "+
				"Could you share a few details about your company and what you have in mind?", business)
		},
	},
}

// matchQuick returns the canned reply and rule name for text, if any.
func matchQuick(text, business string) (string, string, bool) {
	lower := strings.ToLower(text)
	for _, r := range quickRules {
		if r.re.MatchString(lower) {
			return r.text(business), r.name, true
		}
	}
	return "", "", false
}
