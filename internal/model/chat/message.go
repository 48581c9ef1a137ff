package chat

import "time"

// Role identifies who authored a message. The string form is what the
// conversation store records in the sender column.
type Role string

const (
	RoleAssistant      Role = "assistant"
	RoleUser           Role = "user"
	RoleAction         Role = "action"
	RoleOnboardingForm Role = "onboarding-form"
)

// ParseRole maps a stored sender value back to a Role. Unknown senders are
// rendered as assistant output.
func ParseRole(sender string) Role {
	switch Role(sender) {
	case RoleUser, RoleAction, RoleOnboardingForm:
		return Role(sender)
	default:
		return RoleAssistant
	}
}

// Message is one entry of a conversation transcript.
type Message struct {
	ID           string    `json:"id,omitempty"`
	Text         string    `json:"text"`
	Role         Role      `json:"role"`
	Timestamp    time.Time `json:"timestamp"`
	ShowCalendly bool      `json:"showCalendly,omitempty"`
	// IsLogged flips to true once the message has been written to the store.
	IsLogged bool `json:"isLogged"`
}

// Widget reports whether the message only carries a UI affordance and no text.
func (m Message) Widget() bool {
	return m.ShowCalendly && m.Text == ""
}
