package generateresponse

import (
	"context"
	"strings"

	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/common/logger"
)

const (
	TaskType = "generate-response"
)

type Handler struct {
	config    *Config
	generator llm.Generator
	logger    logger.Logger
}

func NewHandler(config *Config, generator llm.Generator, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		generator: generator,
		logger:    log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute always returns a response. Model errors and empty answers are
// replaced with the configured fallback message.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		input = &Input{}
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	history := input.History
	if n := h.config.HistoryLimit; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	system := BuildSystemPrompt(input.Selection, history, input.Summary)
	out := &Output{PromptLength: len(system)}

	answer, err := h.generator.GenerateText(ctx, system, h.messages(input), h.config.Generation)
	if err != nil {
		h.logger.Error("response generation failed", map[string]interface{}{
			"conversationId": input.ConversationID,
			"error":          err.Error(),
		})
		return h.fallback(out), nil
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		h.logger.Warn("model returned an empty answer", map[string]interface{}{
			"conversationId": input.ConversationID,
		})
		return h.fallback(out), nil
	}

	out.Response = answer
	h.logger.Info("response generated", map[string]interface{}{
		"conversationId": input.ConversationID,
		"promptLength":   out.PromptLength,
		"historyItems":   len(history),
		"responseLength": len(answer),
	})
	return out, nil
}

func (h *Handler) fallback(out *Output) *Output {
	out.Response = h.config.FallbackMessage
	if out.Response == "" {
		out.Response = DefaultFallbackMessage
	}
	out.Fallback = true
	return out
}

func (h *Handler) messages(input *Input) []llm.Message {
	msgs := input.Messages
	if n := h.config.ContextMessages; n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
