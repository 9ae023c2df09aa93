package memory

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/scoring"
)

func newTestManager(t *testing.T, index *AnalysisIndex) (*Manager, *ShortTermStore, *FileStore) {
	t.Helper()
	sm, _ := newMiniStore(t, 30*time.Minute)
	lm, err := NewFileStore(filepath.Join(t.TempDir(), "lm"), logger.NewTestLogger(t))
	require.NoError(t, err)

	m, err := NewManager(ManagerOptions{
		ShortTerm: sm,
		LongTerm:  lm,
		Index:     index,
		Scorer:    scoring.NewScorer(scoring.DefaultConfig()),
		Logger:    logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return m, sm, lm
}

// ==========================
// Session flow
// ==========================

func TestManager_ProcessUserMessage_NewSession(t *testing.T) {
	m, sm, _ := newTestManager(t, nil)
	ctx := context.Background()

	conv, err := m.ProcessUserMessage(ctx, "u1", "conv-1", models.NewMessage(models.RoleUser, "สวัสดีครับ"))
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)
	assert.Nil(t, conv.Metadata["seeded_from_long_term"])

	conv, err = m.ProcessUserMessage(ctx, "u1", "conv-1", models.NewMessage(models.RoleUser, "อยากซื้อ"))
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	conv, err = m.AddAssistantResponse(ctx, "conv-1", models.NewMessage(models.RoleAssistant, "ยินดีครับ"))
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3)

	stored, err := sm.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, stored.Messages[2].Role)
}

func TestManager_ProcessUserMessage_SeedsFromLongTerm(t *testing.T) {
	m, _, lm := newTestManager(t, nil)
	ctx := context.Background()

	mem := models.NewLongTermMemory("u1")
	mem.Context["preferred_brand"] = "Apple"
	require.NoError(t, lm.Save(ctx, mem))

	conv, err := m.ProcessUserMessage(ctx, "u1", "conv-9", models.NewMessage(models.RoleUser, "hello"))
	require.NoError(t, err)
	assert.Equal(t, "Apple", conv.Metadata["preferred_brand"])
	assert.Equal(t, true, conv.Metadata["seeded_from_long_term"])
}

// ==========================
// Long-term persistence
// ==========================

func TestManager_PersistAndHistory(t *testing.T) {
	var indexed int32
	index := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&indexed, 1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})
	m, _, _ := newTestManager(t, index)
	ctx := context.Background()

	// Scored against their own content: 0.86 and 0.63.
	require.NoError(t, m.PersistAnalysis(ctx, "u1", sampleAnalysis("งบ 40000 เอาไว้เล่นเกมครับ", "purchase_intent", 0.8)))
	require.NoError(t, m.PersistAnalysis(ctx, "u1", sampleAnalysis("สวัสดีครับ", "greet", 0.9)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&indexed))

	history, err := m.ImportantHistory(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "purchase_intent", history[0].PrimaryIntentName())

	none, err := m.ImportantHistory(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManager_PersistIgnoresIndexFailure(t *testing.T) {
	index := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	m, _, lm := newTestManager(t, index)
	ctx := context.Background()

	require.NoError(t, m.PersistAnalysis(ctx, "u1", sampleAnalysis("ซื้อ", "purchase_intent", 0.9)))

	mem, err := lm.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mem.NLUAnalyses, 1)
}

// ==========================
// Context and cleanup
// ==========================

func TestManager_ConversationContextAndCleanup(t *testing.T) {
	m, _, lm := newTestManager(t, nil)
	ctx := context.Background()

	for _, text := range []string{"1", "2", "3", "4", "5", "6"} {
		_, err := m.ProcessUserMessage(ctx, "u1", "conv-1", models.NewMessage(models.RoleUser, text))
		require.NoError(t, err)
	}
	require.NoError(t, lm.AddAnalysis(ctx, "u1", nlu.AnalysisDocument{
		Content:   "อยากซื้อ iPhone ราคาเท่าไหร่",
		Intents:   []nlu.Intent{{Name: "purchase_intent", Confidence: 0.9}},
		Entities:  []nlu.Entity{{Type: "product", Value: "iPhone", Confidence: 0.9}},
		Languages: []nlu.Language{{Code: "THA", Confidence: 0.9, IsPrimary: true}},
	}))

	c, err := m.ConversationContext(ctx, "u1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 6, c.CurrentMessages)
	require.Len(t, c.RecentMessages, 5)
	assert.Equal(t, "2", c.RecentMessages[0].Content)
	assert.Equal(t, 1, c.ImportantAnalyses)
	assert.Equal(t, 1, c.TotalAnalyses)
	assert.Equal(t, []string{"iPhone"}, c.Preferences.ProductInterests)
	assert.Greater(t, c.TTLSeconds, int64(0))

	require.NoError(t, m.Cleanup(ctx, "u1", "conv-1"))

	_, err = m.Conversation(ctx, "conv-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	c, err = m.ConversationContext(ctx, "u1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CurrentMessages)
	assert.Equal(t, 0, c.TotalAnalyses)
}

func TestNewManager_RequiresStores(t *testing.T) {
	_, err := NewManager(ManagerOptions{})
	assert.Error(t, err)
}
