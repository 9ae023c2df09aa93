package models

// Notification channels and delivery states for human-attention escalations.
const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"

	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationDisabled = "disabled"
)

type Notification struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	ConversationID string                 `json:"conversation_id"`
	Channel        string                 `json:"channel"`
	Status         string                 `json:"status"`
	Reason         string                 `json:"reason"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	SentAt         string                 `json:"sent_at,omitempty"`
	CreatedAt      string                 `json:"created_at"`
}

// NotificationTemplate renders the escalation subject and body.
type NotificationTemplate struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body,omitempty"`
}
