// Package memory holds the short-term (session) and long-term (per-user)
// memory stores.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nlu-memory-assistant/internal/common/database"
	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
)

var (
	ErrSessionNotFound    = errors.New("SESSION_NOT_FOUND")
	ErrSessionStoreFailed = errors.New("SESSION_STORE_FAILED")
)

func init() {
	apperrors.RegisterSentinel(ErrSessionStoreFailed, apperrors.ErrCodeSessionStoreFailed)
}

const DefaultKeyPrefix = "sm:"

// ShortTermStore keeps one JSON conversation per Redis key with a TTL.
type ShortTermStore struct {
	redis  *database.RedisClient
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

func NewShortTermStore(rc *database.RedisClient, prefix string, ttl time.Duration, log logger.Logger) *ShortTermStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ShortTermStore{
		redis:  rc,
		prefix: prefix,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "short-term-memory"}),
	}
}

func (s *ShortTermStore) Key(conversationID string) string {
	return s.prefix + conversationID
}

func (s *ShortTermStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	ok, err := s.redis.Exists(ctx, s.Key(conversationID))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSessionStoreFailed, err)
	}
	return ok, nil
}

// IsValid reports whether the session exists and still has a positive TTL.
func (s *ShortTermStore) IsValid(ctx context.Context, conversationID string) (bool, error) {
	ttl, err := s.TTL(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return ttl > 0, nil
}

func (s *ShortTermStore) TTL(ctx context.Context, conversationID string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, s.Key(conversationID))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionStoreFailed, err)
	}
	return ttl, nil
}

func (s *ShortTermStore) Load(ctx context.Context, conversationID string) (*models.Conversation, error) {
	raw, err := s.redis.Get(ctx, s.Key(conversationID))
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionStoreFailed, err)
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("%w: decode session %s: %v", ErrSessionStoreFailed, conversationID, err)
	}
	return &conv, nil
}

// Save writes the conversation and resets its TTL.
func (s *ShortTermStore) Save(ctx context.Context, conv *models.Conversation) error {
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("%w: encode session: %v", ErrSessionStoreFailed, err)
	}
	if err := s.redis.Set(ctx, s.Key(conv.ConversationID), raw, s.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreFailed, err)
	}
	s.logger.Debug("session saved", map[string]interface{}{
		"conversationId": conv.ConversationID,
		"messages":       len(conv.Messages),
	})
	return nil
}

// AddMessage appends to a stored session and saves it back.
func (s *ShortTermStore) AddMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Conversation, error) {
	conv, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.AddMessage(msg)
	if err := s.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ShortTermStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.redis.Del(ctx, s.Key(conversationID)); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStoreFailed, err)
	}
	return nil
}
