package analyzemessage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/scoring"
)

const (
	TaskType = "analyze-message"
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

// Persister stores analyses that pass the importance threshold.
type Persister interface {
	PersistAnalysis(ctx context.Context, userID string, doc nlu.AnalysisDocument) error
	SkipAnalysis(userID string, score float64)
}

type Handler struct {
	config    *Config
	generator llm.Generator
	parser    *nlu.Parser
	scorer    *scoring.Scorer
	persister Persister
	logger    logger.Logger
}

func NewHandler(config *Config, generator llm.Generator, parser *nlu.Parser, scorer *scoring.Scorer, persister Persister, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		generator: generator,
		parser:    parser,
		scorer:    scorer,
		persister: persister,
		logger:    log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

// Execute never fails because of the model: a failed call degrades to the
// keyword analysis of the raw message.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	out := &Output{}

	prompt := nlu.BuildPrompt(nlu.PromptInput{
		Text:             input.Message,
		DefaultIntent:    h.config.DefaultIntent,
		AdditionalIntent: h.config.AdditionalIntent,
		DefaultEntity:    h.config.DefaultEntity,
		AdditionalEntity: h.config.AdditionalEntity,
		Delimiters:       h.config.Delimiters,
	})

	raw, err := h.generator.GenerateText(ctx, prompt, h.contextMessages(input), h.config.Generation)
	if err != nil {
		h.logger.Warn("NLU call failed, using keyword analysis", map[string]interface{}{
			"conversationId": input.ConversationID,
			"error":          err.Error(),
		})
		out.Analysis = h.parser.KeywordAnalysis(input.Message, "nlu call failed: "+err.Error())
		out.Fallback = true
	} else {
		out.Analysis = h.parser.Parse(raw, input.Message)
	}

	out.Importance = h.scorer.Score(out.Analysis)

	if scoring.ShouldPersist(out.Importance, h.config.ImportanceThreshold) {
		if err := h.persister.PersistAnalysis(ctx, input.UserID, *out.Analysis); err != nil {
			// Persistence is skipped for this turn only.
			h.logger.Error("failed to persist analysis", map[string]interface{}{
				"userId": input.UserID,
				"error":  err.Error(),
			})
		} else {
			out.Persisted = true
		}
	} else {
		h.persister.SkipAnalysis(input.UserID, out.Importance)
	}

	h.logger.Info("message analyzed", map[string]interface{}{
		"conversationId": input.ConversationID,
		"primaryIntent":  out.Analysis.PrimaryIntentName(),
		"status":         string(out.Analysis.ParsingMetadata.Status),
		"strategy":       out.Analysis.ParsingMetadata.StrategyUsed,
		"importance":     out.Importance,
		"persisted":      out.Persisted,
	})

	return out, nil
}

// contextMessages ends with the current message; earlier turns come from
// the session history.
func (h *Handler) contextMessages(input *Input) []llm.Message {
	history := input.History
	if n := h.config.ContextMessages; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ToLLMMessage(m))
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != input.Message {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: input.Message})
	}
	return msgs
}

// ToLLMMessage maps a stored message to the generator's message shape.
func ToLLMMessage(m models.Message) llm.Message {
	return llm.Message{Role: string(m.Role), Content: m.Content}
}
