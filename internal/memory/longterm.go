package memory

import (
	"context"
	"errors"
	"regexp"

	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
)

var (
	ErrMemoryNotFound      = errors.New("LONG_TERM_MEMORY_NOT_FOUND")
	ErrLongTermStoreFailed = errors.New("LONG_TERM_STORE_FAILED")
	ErrInvalidUserID       = errors.New("INVALID_USER_ID")
)

func init() {
	apperrors.RegisterSentinel(ErrLongTermStoreFailed, apperrors.ErrCodeLongTermStoreFailed)
}

// LongTermStore persists one LongTermMemory document per user.
type LongTermStore interface {
	Load(ctx context.Context, userID string) (*models.LongTermMemory, error)
	Save(ctx context.Context, mem *models.LongTermMemory) error
	Delete(ctx context.Context, userID string) error
	Exists(ctx context.Context, userID string) (bool, error)
	AddAnalysis(ctx context.Context, userID string, doc nlu.AnalysisDocument) error
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)

// validUserID rejects IDs that could escape the storage directory.
func validUserID(userID string) bool {
	return userIDPattern.MatchString(userID) && userID != "." && userID != ".."
}
