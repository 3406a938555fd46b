package domain

// Role tags the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message exchanged with a sender.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// InboundEvent is one inbound chat message as delivered by the messaging
// webhook. An empty Text means the event carries nothing to answer.
type InboundEvent struct {
	SenderID  string
	EventID   string
	Timestamp int64
	Text      string
}
