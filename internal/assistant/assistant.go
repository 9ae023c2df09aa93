// Package assistant sequences one conversation turn across memory, NLU,
// routing, response generation and escalation.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/observability"
	"nlu-memory-assistant/internal/memory"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
	analyzemessage "nlu-memory-assistant/internal/workers/conversation/analyze-message"
	generateresponse "nlu-memory-assistant/internal/workers/conversation/generate-response"
	notifyhumanattention "nlu-memory-assistant/internal/workers/escalation/notify-human-attention"
)

const (
	DefaultHistoryLimit = 5

	statusSuccess = "success"
	statusFailed  = "failed"
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

type Options struct {
	Memory    *memory.Manager
	Analyzer  *analyzemessage.Handler
	Responder *generateresponse.Handler
	// Escalator is optional.
	Escalator     *notifyhumanattention.Handler
	Router        *routing.Router
	IntentCatalog string
	HistoryLimit  int
	Observability *observability.Observability
	Logger        logger.Logger
}

type Assistant struct {
	memory       *memory.Manager
	analyzer     *analyzemessage.Handler
	responder    *generateresponse.Handler
	escalator    *notifyhumanattention.Handler
	router       *routing.Router
	catalog      string
	historyLimit int
	obs          *observability.Observability
	errs         *apperrors.ErrorHandler
	logger       logger.Logger
}

func New(opts Options) (*Assistant, error) {
	if opts.Memory == nil || opts.Analyzer == nil || opts.Responder == nil {
		return nil, errors.New("assistant requires memory, analyzer and responder")
	}
	if opts.Router == nil {
		opts.Router = routing.NewRouter(routing.DefaultTokenCosts())
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	log := opts.Logger.With(map[string]interface{}{"component": "assistant"})

	return &Assistant{
		memory:       opts.Memory,
		analyzer:     opts.Analyzer,
		responder:    opts.Responder,
		escalator:    opts.Escalator,
		router:       opts.Router,
		catalog:      opts.IntentCatalog,
		historyLimit: opts.HistoryLimit,
		obs:          opts.Observability,
		errs:         apperrors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

// TurnResult is everything one ProcessMessage call produced.
type TurnResult struct {
	ConversationID string                       `json:"conversation_id"`
	Response       string                       `json:"response"`
	Analysis       *nlu.AnalysisDocument        `json:"analysis"`
	Importance     float64                      `json:"importance"`
	Persisted      bool                         `json:"persisted"`
	Fallback       bool                         `json:"fallback"`
	Route          routing.Decision             `json:"route"`
	Insights       nlu.Insights                 `json:"insights"`
	Escalation     *notifyhumanattention.Output `json:"escalation,omitempty"`
	Duration       time.Duration                `json:"duration"`
}

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return uuid.New().String()
}

// ProcessMessage runs one turn. Only session store failures abort the turn;
// model and long-term memory failures degrade to fallbacks.
func (a *Assistant) ProcessMessage(ctx context.Context, userID, conversationID, text string) (result *TurnResult, err error) {
	start := time.Now()
	defer func() {
		status := statusSuccess
		if err != nil {
			status = statusFailed
		}
		a.obs.RecordTurnProcessed(ctx, status)
		a.obs.RecordTurnDuration(ctx, time.Since(start), status)
	}()

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: user id and message are required", ErrInvalidInput)
	}
	if conversationID == "" {
		conversationID = NewConversationID()
	}
	fields := map[string]interface{}{"userId": userID, "conversationId": conversationID}

	conv, err := a.memory.ProcessUserMessage(ctx, userID, conversationID, models.NewMessage(models.RoleUser, text))
	if err != nil {
		return nil, a.errs.Handle("session", err, fields)
	}

	analyzed, err := a.analyzer.Execute(ctx, &analyzemessage.Input{
		UserID:         userID,
		ConversationID: conversationID,
		Message:        text,
		History:        conv.Messages,
	})
	if err != nil {
		return nil, a.errs.Handle("analyze", err, fields)
	}

	decision := a.router.Route(analyzed.Analysis, a.catalog)

	history, err := a.memory.ImportantHistory(ctx, userID, a.historyLimit)
	if err != nil {
		a.errs.Handle("history", err, fields)
		history = nil
	}
	summary := ""
	if lm, err := a.memory.LongTerm(ctx, userID); err == nil {
		summary = lm.Summary
	}

	generated, err := a.responder.Execute(ctx, &generateresponse.Input{
		ConversationID: conversationID,
		Messages:       conv.Messages,
		Selection:      decision.Selection,
		History:        history,
		Summary:        summary,
	})
	if err != nil {
		return nil, a.errs.Handle("respond", err, fields)
	}

	if _, err := a.memory.AddAssistantResponse(ctx, conversationID, models.NewMessage(models.RoleAssistant, generated.Response)); err != nil {
		return nil, a.errs.Handle("session", err, fields)
	}

	result = &TurnResult{
		ConversationID: conversationID,
		Response:       generated.Response,
		Analysis:       analyzed.Analysis,
		Importance:     analyzed.Importance,
		Persisted:      analyzed.Persisted,
		Fallback:       analyzed.Fallback || generated.Fallback,
		Route:          decision,
		Insights:       nlu.BusinessInsights(analyzed.Analysis),
	}

	if a.escalator != nil && result.Insights.RequiresHumanAttention {
		out, err := a.escalator.Execute(ctx, &notifyhumanattention.Input{
			UserID:         userID,
			ConversationID: conversationID,
			Message:        text,
			Analysis:       analyzed.Analysis,
			Insights:       result.Insights,
		})
		if err != nil {
			a.errs.Handle("escalate", err, fields)
		} else {
			result.Escalation = out
		}
	}

	result.Duration = time.Since(start)
	a.logger.Info("turn processed", map[string]interface{}{
		"userId":         userID,
		"conversationId": conversationID,
		"primaryIntent":  analyzed.Analysis.PrimaryIntentName(),
		"importance":     result.Importance,
		"persisted":      result.Persisted,
		"preset":         string(decision.Preset),
		"tokensSaved":    decision.TokensSaved,
		"durationMs":     result.Duration.Milliseconds(),
	})
	return result, nil
}

func (a *Assistant) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return a.memory.Conversation(ctx, conversationID)
}

func (a *Assistant) ConversationContext(ctx context.Context, userID, conversationID string) (*memory.Context, error) {
	return a.memory.ConversationContext(ctx, userID, conversationID)
}

func (a *Assistant) LongTerm(ctx context.Context, userID string) (*models.LongTermMemory, error) {
	return a.memory.LongTerm(ctx, userID)
}

func (a *Assistant) Cleanup(ctx context.Context, userID, conversationID string) error {
	return a.memory.Cleanup(ctx, userID, conversationID)
}
