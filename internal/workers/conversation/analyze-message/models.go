package analyzemessage

import (
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
)

type Input struct {
	UserID         string           `json:"userId"`
	ConversationID string           `json:"conversationId"`
	Message        string           `json:"message"`
	History        []models.Message `json:"history"`
}

type Output struct {
	Analysis   *nlu.AnalysisDocument `json:"analysis"`
	Importance float64               `json:"importance"`
	Persisted  bool                  `json:"persisted"`
	// Fallback is set when the NLU model call failed and the analysis was
	// built from keywords alone.
	Fallback bool `json:"fallback"`
}
