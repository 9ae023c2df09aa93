package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"nlu-memory-assistant/internal/common/database"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/validation"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
)

const DefaultTable = "long_term_memory"

var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresStore keeps each document in a JSONB column keyed by user ID.
type PostgresStore struct {
	pg     *database.PostgresClient
	table  string
	logger logger.Logger
}

var _ LongTermStore = (*PostgresStore)(nil)

func NewPostgresStore(pg *database.PostgresClient, table string, log logger.Logger) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrLongTermStoreFailed, table)
	}
	return &PostgresStore{
		pg:     pg,
		table:  table,
		logger: log.With(map[string]interface{}{"component": "long-term-memory", "backend": "postgres"}),
	}, nil
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id TEXT PRIMARY KEY,
		document JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, s.table)
	if _, err := s.pg.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrLongTermStoreFailed, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (*models.LongTermMemory, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE user_id = $1`, s.table)
	var raw []byte
	if err := s.pg.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemoryNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	return decodeMemory(raw)
}

func (s *PostgresStore) Save(ctx context.Context, mem *models.LongTermMemory) error {
	return s.upsert(ctx, s.pg.DB, mem)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *PostgresStore) upsert(ctx context.Context, ex execer, mem *models.LongTermMemory) error {
	raw, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrLongTermStoreFailed, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (user_id, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := ex.ExecContext(ctx, query, mem.UserID, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrLongTermStoreFailed, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, s.table)
	if _, err := s.pg.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, userID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE user_id = $1)`, s.table)
	var ok bool
	if err := s.pg.QueryRow(ctx, query, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	return ok, nil
}

// AddAnalysis locks the user's row for the read-modify-write.
func (s *PostgresStore) AddAnalysis(ctx context.Context, userID string, doc nlu.AnalysisDocument) error {
	tx, err := s.pg.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrLongTermStoreFailed, err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT document FROM %s WHERE user_id = $1 FOR UPDATE`, s.table)
	var raw []byte
	var mem *models.LongTermMemory
	switch err := tx.QueryRowContext(ctx, query, userID).Scan(&raw); {
	case errors.Is(err, sql.ErrNoRows):
		mem = models.NewLongTermMemory(userID)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	default:
		if mem, err = decodeMemory(raw); err != nil {
			return err
		}
	}

	mem.AddAnalysis(doc)
	if err := s.upsert(ctx, tx, mem); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrLongTermStoreFailed, err)
	}

	s.logger.Debug("analysis appended", map[string]interface{}{
		"userId":   userID,
		"analyses": len(mem.NLUAnalyses),
	})
	return nil
}

func decodeMemory(raw []byte) (*models.LongTermMemory, error) {
	if err := validation.ValidateLongTermMemory(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	var mem models.LongTermMemory
	if err := json.Unmarshal(raw, &mem); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLongTermStoreFailed, err)
	}
	if mem.NLUAnalyses == nil {
		mem.NLUAnalyses = []nlu.AnalysisDocument{}
	}
	return &mem, nil
}
