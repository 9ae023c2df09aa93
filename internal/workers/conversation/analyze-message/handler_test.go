package analyzemessage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/scoring"
)

// ==========================
// Mocks
// ==========================

type mockGenerator struct {
	generateFunc func(ctx context.Context, systemPrompt string, messages []llm.Message, gen llm.GenerationConfig) (string, error)
}

func (m *mockGenerator) GenerateText(ctx context.Context, systemPrompt string, messages []llm.Message, gen llm.GenerationConfig) (string, error) {
	return m.generateFunc(ctx, systemPrompt, messages, gen)
}

func replying(raw string) *mockGenerator {
	return &mockGenerator{generateFunc: func(context.Context, string, []llm.Message, llm.GenerationConfig) (string, error) {
		return raw, nil
	}}
}

type mockPersister struct {
	err       error
	persisted []nlu.AnalysisDocument
	skipped   []float64
}

func (m *mockPersister) PersistAnalysis(_ context.Context, _ string, doc nlu.AnalysisDocument) error {
	if m.err != nil {
		return m.err
	}
	m.persisted = append(m.persisted, doc)
	return nil
}

func (m *mockPersister) SkipAnalysis(_ string, score float64) {
	m.skipped = append(m.skipped, score)
}

func testConfig() *Config {
	return &Config{
		Delimiters:          nlu.DefaultDelimiters(),
		DefaultIntent:       "purchase_intent:0.8, inquiry_intent:0.7, support_intent:0.6",
		AdditionalIntent:    "greet:0.3",
		DefaultEntity:       "product, price",
		ImportanceThreshold: 0.7,
		ContextMessages:     2,
		Generation:          llm.GenerationConfig{Purpose: "classification", Model: "test-model", Temperature: 0.1, MaxTokens: 500},
	}
}

func newTestHandler(t *testing.T, gen llm.Generator, p Persister) *Handler {
	cfg := testConfig()
	parser := nlu.NewParser(nlu.Options{Delimiters: cfg.Delimiters, IntentWeights: cfg.IntentWeights()})
	return NewHandler(cfg, gen, parser, scoring.NewScorer(scoring.DefaultConfig()), p, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute_PersistsImportantMessage(t *testing.T) {
	raw := "(intent<||>purchase_intent<||>0.8<||>0.8)##(entity<||>price<||>40000<||>0.9)##(language<||>THA<||>0.95<||>1)"
	p := &mockPersister{}
	h := newTestHandler(t, replying(raw), p)

	out, err := h.Execute(context.Background(), &Input{
		UserID:         "u1",
		ConversationID: "c1",
		Message:        "งบ 40000 เอาไว้เล่นเกมครับ",
	})
	require.NoError(t, err)

	assert.False(t, out.Fallback)
	assert.True(t, out.Persisted)
	assert.InDelta(t, 0.96, out.Importance, 1e-9)
	assert.Equal(t, nlu.StatusSuccess, out.Analysis.ParsingMetadata.Status)
	assert.Equal(t, "purchase_intent", out.Analysis.PrimaryIntentName())
	require.Len(t, p.persisted, 1)
	assert.Equal(t, "งบ 40000 เอาไว้เล่นเกมครับ", p.persisted[0].Content)
	assert.Empty(t, p.skipped)
}

func TestHandler_Execute_GreetingIsNotPersisted(t *testing.T) {
	p := &mockPersister{}
	h := newTestHandler(t, replying("(intent<||>greet<||>0.9<||>0.3)"), p)

	out, err := h.Execute(context.Background(), &Input{UserID: "u1", ConversationID: "c1", Message: "สวัสดีครับ"})
	require.NoError(t, err)

	assert.False(t, out.Persisted)
	assert.InDelta(t, 0.63, out.Importance, 1e-9)
	assert.Empty(t, p.persisted)
	require.Len(t, p.skipped, 1)
	assert.InDelta(t, 0.63, p.skipped[0], 1e-9)
}

func TestHandler_Execute_LLMFailureFallsBackToKeywords(t *testing.T) {
	gen := &mockGenerator{generateFunc: func(context.Context, string, []llm.Message, llm.GenerationConfig) (string, error) {
		return "", llm.ErrLLMTimeout
	}}
	p := &mockPersister{}
	h := newTestHandler(t, gen, p)

	out, err := h.Execute(context.Background(), &Input{UserID: "u1", Message: "อยากซื้อ iPhone ครับ"})
	require.NoError(t, err)

	assert.True(t, out.Fallback)
	assert.Equal(t, nlu.StrategyKeyword, out.Analysis.ParsingMetadata.StrategyUsed)
	assert.True(t, out.Analysis.HasIntent("purchase_intent"))
	require.NotEmpty(t, out.Analysis.ParsingMetadata.Warnings)
	assert.Contains(t, out.Analysis.ParsingMetadata.Warnings[0], "nlu call failed")
}

func TestHandler_Execute_PersistenceFailureIsNotFatal(t *testing.T) {
	raw := "(intent<||>purchase_intent<||>0.8<||>0.8)##(entity<||>price<||>40000<||>0.9)"
	p := &mockPersister{err: errors.New("disk full")}
	h := newTestHandler(t, replying(raw), p)

	out, err := h.Execute(context.Background(), &Input{UserID: "u1", Message: "งบ 40000 เอาไว้เล่นเกมครับ"})
	require.NoError(t, err)

	assert.False(t, out.Persisted)
	assert.GreaterOrEqual(t, out.Importance, 0.7)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h := newTestHandler(t, replying(""), &mockPersister{})

	tests := []struct {
		name  string
		input *Input
	}{
		{name: "nil input", input: nil},
		{name: "missing user", input: &Input{Message: "hello there"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

// ==========================
// Prompt and context
// ==========================

func TestHandler_Execute_SendsPromptAndRecentHistory(t *testing.T) {
	var (
		gotPrompt string
		gotMsgs   []llm.Message
		gotGen    llm.GenerationConfig
	)
	gen := &mockGenerator{generateFunc: func(_ context.Context, systemPrompt string, messages []llm.Message, g llm.GenerationConfig) (string, error) {
		gotPrompt, gotMsgs, gotGen = systemPrompt, messages, g
		return "(intent<||>greet<||>0.9<||>0.3)", nil
	}}
	h := newTestHandler(t, gen, &mockPersister{})

	history := []models.Message{
		models.NewMessage(models.RoleUser, "first"),
		models.NewMessage(models.RoleAssistant, "reply"),
		models.NewMessage(models.RoleUser, "สวัสดีครับ"),
	}
	_, err := h.Execute(context.Background(), &Input{UserID: "u1", Message: "สวัสดีครับ", History: history})
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "สวัสดีครับ")
	assert.Contains(t, gotPrompt, "<||>")
	assert.Equal(t, "classification", gotGen.Purpose)
	require.Len(t, gotMsgs, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "reply"}, gotMsgs[0])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "สวัสดีครับ"}, gotMsgs[1])
}

func TestConfig_IntentWeights(t *testing.T) {
	cfg := &Config{DefaultIntent: "greet:0.3, purchase_intent:0.8", AdditionalIntent: "greet:0.5"}
	w := cfg.IntentWeights()
	assert.Equal(t, 0.5, w["greet"])
	assert.Equal(t, 0.8, w["purchase_intent"])
}
