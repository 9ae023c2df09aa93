package generateresponse

import (
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
)

type Input struct {
	ConversationID string                   `json:"conversationId"`
	Messages       []models.Message         `json:"messages"`
	Selection      routing.ContextSelection `json:"selection"`
	History        []nlu.AnalysisDocument   `json:"history"`
	Summary        string                   `json:"summary"`
}

type Output struct {
	Response     string `json:"response"`
	Fallback     bool   `json:"fallback"`
	PromptLength int    `json:"promptLength"`
}
