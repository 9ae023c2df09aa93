package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
)

// FileStore keeps <dir>/<userID>.json documents. Writes go through a temp
// file and rename so a reader never sees a partial document.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger logger.Logger
}

var _ LongTermStore = (*FileStore)(nil)

func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrLongTermStoreFailed, dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: log.With(map[string]interface{}{"component": "long-term-memory", "backend": "file"}),
	}, nil
}

func (s *FileStore) path(userID string) (string, error) {
	if !validUserID(userID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, userID string) (*models.LongTermMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userID)
}

func (s *FileStore) load(userID string) (*models.LongTermMemory, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMemoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrLongTermStoreFailed, p, err)
	}

	mem, err := decodeMemory(raw)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, p)
	}
	return mem, nil
}

func (s *FileStore) Save(ctx context.Context, mem *models.LongTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(mem)
}

func (s *FileStore) save(mem *models.LongTermMemory) error {
	p, err := s.path(mem.UserID)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrLongTermStoreFailed, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+mem.UserID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrLongTermStoreFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync: %v", ErrLongTermStoreFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrLongTermStoreFailed, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrLongTermStoreFailed, err)
	}

	s.logger.Debug("long-term memory saved", map[string]interface{}{
		"userId":   mem.UserID,
		"analyses": len(mem.NLUAnalyses),
	})
	return nil
}

func (s *FileStore) Delete(ctx context.Context, userID string) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, userID string) (bool, error) {
	p, err := s.path(userID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrLongTermStoreFailed, err)
	}
}

// AddAnalysis loads or creates the user's document, appends doc and saves.
func (s *FileStore) AddAnalysis(ctx context.Context, userID string, doc nlu.AnalysisDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mem, err := s.load(userID)
	if errors.Is(err, ErrMemoryNotFound) {
		mem = models.NewLongTermMemory(userID)
	} else if err != nil {
		return err
	}

	mem.AddAnalysis(doc)
	return s.save(mem)
}
