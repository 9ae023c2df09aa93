package memory

import (
	"context"
	"errors"
	"fmt"

	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/metrics"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/scoring"
)

const (
	DefaultHistoryThreshold = 0.7
	recentContextMessages   = 5
)

type ManagerOptions struct {
	ShortTerm *ShortTermStore
	LongTerm  LongTermStore
	// Index is optional.
	Index            *AnalysisIndex
	Scorer           *scoring.Scorer
	HistoryThreshold float64
	Logger           logger.Logger
}

// Manager sequences the session and long-term stores for one turn.
type Manager struct {
	sm        *ShortTermStore
	lm        LongTermStore
	index     *AnalysisIndex
	scorer    *scoring.Scorer
	threshold float64
	logger    logger.Logger
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.ShortTerm == nil || opts.LongTerm == nil {
		return nil, errors.New("memory manager requires short-term and long-term stores")
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewScorer(scoring.DefaultConfig())
	}
	if opts.HistoryThreshold <= 0 {
		opts.HistoryThreshold = DefaultHistoryThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Manager{
		sm:        opts.ShortTerm,
		lm:        opts.LongTerm,
		index:     opts.Index,
		scorer:    opts.Scorer,
		threshold: opts.HistoryThreshold,
		logger:    opts.Logger.With(map[string]interface{}{"component": "memory-manager"}),
	}, nil
}

// ProcessUserMessage loads a live session or seeds a new one from the
// user's long-term context, then appends msg and saves.
func (m *Manager) ProcessUserMessage(ctx context.Context, userID, conversationID string, msg models.Message) (*models.Conversation, error) {
	conv, err := m.loadOrCreate(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	conv.AddMessage(msg)
	if err := m.sm.Save(ctx, conv); err != nil {
		return nil, err
	}

	m.logger.Info("user message added to session", map[string]interface{}{
		"conversationId": conversationID,
		"totalMessages":  len(conv.Messages),
	})
	return conv, nil
}

func (m *Manager) loadOrCreate(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	valid, err := m.sm.IsValid(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if valid {
		conv, err := m.sm.Load(ctx, conversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	conv := models.NewConversation(conversationID, userID)
	lm, err := m.lm.Load(ctx, userID)
	switch {
	case err == nil:
		for k, v := range lm.Context {
			conv.SetMetadata(k, v)
		}
		conv.SetMetadata("seeded_from_long_term", true)
		m.logger.Info("session created from long-term context", map[string]interface{}{
			"conversationId": conversationID,
			"userId":         userID,
		})
	case errors.Is(err, ErrMemoryNotFound):
		m.logger.Info("new session created", map[string]interface{}{"conversationId": conversationID})
	default:
		// A broken long-term document must not block the conversation.
		m.logger.Warn("long-term memory unavailable", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}

	if err := m.sm.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (m *Manager) AddAssistantResponse(ctx context.Context, conversationID string, msg models.Message) (*models.Conversation, error) {
	return m.sm.AddMessage(ctx, conversationID, msg)
}

// PersistAnalysis appends doc to long-term memory and mirrors it to the
// index when one is configured. Index failures are logged only.
func (m *Manager) PersistAnalysis(ctx context.Context, userID string, doc nlu.AnalysisDocument) error {
	if err := m.lm.AddAnalysis(ctx, userID, doc); err != nil {
		metrics.LongTermPersistTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LongTermPersistTotal.WithLabelValues("persisted").Inc()

	if m.index != nil {
		if _, err := m.index.Index(ctx, userID, doc); err != nil {
			m.logger.Warn("analysis not indexed", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

// SkipAnalysis records a below-threshold decision.
func (m *Manager) SkipAnalysis(userID string, score float64) {
	metrics.LongTermPersistTotal.WithLabelValues("skipped").Inc()
	m.logger.Debug("analysis below persistence threshold", map[string]interface{}{
		"userId":     userID,
		"importance": score,
	})
}

// LongTerm returns the user's memory, or a fresh empty one when none exists.
func (m *Manager) LongTerm(ctx context.Context, userID string) (*models.LongTermMemory, error) {
	lm, err := m.lm.Load(ctx, userID)
	if errors.Is(err, ErrMemoryNotFound) {
		return models.NewLongTermMemory(userID), nil
	}
	return lm, err
}

// ImportantHistory returns the last limit analyses scoring at or above the
// history threshold.
func (m *Manager) ImportantHistory(ctx context.Context, userID string, limit int) ([]nlu.AnalysisDocument, error) {
	lm, err := m.LongTerm(ctx, userID)
	if err != nil {
		return nil, err
	}
	important := lm.ImportantAnalyses(m.threshold, m.scorer.Score)
	if limit > 0 && len(important) > limit {
		important = important[len(important)-limit:]
	}
	return important, nil
}

func (m *Manager) Conversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	return m.sm.Load(ctx, conversationID)
}

// Context is the combined view of a session and the user's history.
type Context struct {
	ConversationID    string                     `json:"conversation_id"`
	CurrentMessages   int                        `json:"current_messages"`
	RecentMessages    []models.Message           `json:"recent_messages"`
	ImportantAnalyses int                        `json:"important_analyses"`
	TotalAnalyses     int                        `json:"total_analyses"`
	Summary           string                     `json:"summary"`
	Preferences       models.CustomerPreferences `json:"preferences"`
	TTLSeconds        int64                      `json:"ttl_seconds"`
}

func (m *Manager) ConversationContext(ctx context.Context, userID, conversationID string) (*Context, error) {
	out := &Context{ConversationID: conversationID, RecentMessages: []models.Message{}}

	conv, err := m.sm.Load(ctx, conversationID)
	switch {
	case err == nil:
		out.CurrentMessages = len(conv.Messages)
		out.RecentMessages = conv.RecentMessages(recentContextMessages)
		if ttl, err := m.sm.TTL(ctx, conversationID); err == nil && ttl > 0 {
			out.TTLSeconds = int64(ttl.Seconds())
		}
	case !errors.Is(err, ErrSessionNotFound):
		return nil, err
	}

	lm, err := m.LongTerm(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.ImportantAnalyses = len(lm.ImportantAnalyses(m.threshold, m.scorer.Score))
	out.TotalAnalyses = len(lm.NLUAnalyses)
	out.Summary = lm.Summary
	out.Preferences = lm.CustomerPreferences()

	return out, nil
}

// Cleanup deletes the session and the user's long-term memory.
func (m *Manager) Cleanup(ctx context.Context, userID, conversationID string) error {
	smErr := m.sm.Delete(ctx, conversationID)
	lmErr := m.lm.Delete(ctx, userID)

	if err := errors.Join(smErr, lmErr); err != nil {
		return fmt.Errorf("cleanup %s: %w", conversationID, err)
	}
	m.logger.Info("conversation cleaned up", map[string]interface{}{
		"conversationId": conversationID,
		"userId":         userID,
	})
	return nil
}
