package chat

import "time"

// Conversation is the stored thread a device's transcript is attached to.
type Conversation struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"deviceId"`
	ConversationKey string    `json:"conversationId"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	StartedAt       time.Time `json:"startedAt"`
}
