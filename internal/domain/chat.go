package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// generation integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generation is the raw result of a generation call. Exactly one of Text or
// Object is meaningful: Object is set when the collaborator answered with a
// structured JSON document, Text otherwise.
type Generation struct {
	Text   string
	Object map[string]any
}

// GenerationRequest is the context handed to the generation collaborator.
type GenerationRequest struct {
	Lead       Lead
	Missing    []Slot
	LatestText string
	// RecentTurns ends with the user turn carrying LatestText.
	RecentTurns []Turn
}
