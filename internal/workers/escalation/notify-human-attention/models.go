package notifyhumanattention

import (
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
)

type Input struct {
	UserID         string                `json:"userId"`
	ConversationID string                `json:"conversationId"`
	Message        string                `json:"message"`
	Analysis       *nlu.AnalysisDocument `json:"analysis"`
	Insights       nlu.Insights          `json:"insights"`
}

type Output struct {
	Status        string                `json:"status"`
	Notifications []models.Notification `json:"notifications"`
}
