package reply

import (
	"encoding/json"
	"strings"

	"lead-agent/internal/domain"
)

// DefaultGeneratedReply is used when a structured generation result carries
// no recognisable reply field.
const DefaultGeneratedReply = "Thanks for your message! Could you tell me a bit more about what you need?"

// ExtractText pulls the reply text out of a raw generation result.
func ExtractText(g domain.Generation) string {
	if g.Object != nil {
		if s := stringField(g.Object, "reply"); s != "" {
			return s
		}
		if s := completionContent(g.Object); s != "" {
			return s
		}
		return DefaultGeneratedReply
	}
	return textFromString(g.Text)
}

func textFromString(raw string) string {
	s := strings.TrimSpace(raw)
	if !looksLikeJSON(s) {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	obj, ok := v.(map[string]any)
	if !ok {
		if arr, isArr := v.([]any); isArr && len(arr) > 0 {
			obj, ok = arr[0].(map[string]any)
		}
	}
	if ok {
		for _, k := range []string{"reply", "message", "text"} {
			if t := stringField(obj, k); t != "" {
				return t
			}
		}
	}
	return s
}

func looksLikeJSON(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

// completionContent reads choices[0].message.content from a chat-completions
// shaped object.
func completionContent(obj map[string]any) string {
	choices, _ := obj["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}
	choice, _ := choices[0].(map[string]any)
	msg, _ := choice["message"].(map[string]any)
	return stringField(msg, "content")
}
