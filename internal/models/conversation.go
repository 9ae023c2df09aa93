package models

import "time"

// Conversation is the short-term session kept in Redis.
type Conversation struct {
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id"`
	Messages       []Message              `json:"messages"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func NewConversation(conversationID, userID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		Messages:       []Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       map[string]interface{}{},
	}
}

// AddMessage appends and updates the activity timestamp.
func (c *Conversation) AddMessage(m Message) {
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now().UTC()
}

// RecentMessages returns up to the last n messages, oldest first.
func (c *Conversation) RecentMessages(n int) []Message {
	if n <= 0 || len(c.Messages) == 0 {
		return []Message{}
	}
	if n >= len(c.Messages) {
		return append([]Message(nil), c.Messages...)
	}
	return append([]Message(nil), c.Messages[len(c.Messages)-n:]...)
}

// SetMetadata lazily allocates the metadata map.
func (c *Conversation) SetMetadata(key string, value interface{}) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]interface{})
	}
	c.Metadata[key] = value
}

