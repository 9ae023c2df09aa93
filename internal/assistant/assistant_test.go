package assistant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"

	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/database"
	apperrors "nlu-memory-assistant/internal/common/errors"
	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/observability"
	"nlu-memory-assistant/internal/memory"
	"nlu-memory-assistant/internal/models"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ==========================
// Fakes
// ==========================

// scriptedGenerator answers classification calls from nlu and response
// calls from reply, recording every response system prompt.
type scriptedGenerator struct {
	mu       sync.Mutex
	nlu      func(message string) (string, error)
	reply    string
	prompts  []string
	purposes []string
}

func (g *scriptedGenerator) GenerateText(_ context.Context, systemPrompt string, messages []llm.Message, gen llm.GenerationConfig) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.purposes = append(g.purposes, gen.Purpose)

	if gen.Purpose == "classification" {
		last := ""
		if len(messages) > 0 {
			last = messages[len(messages)-1].Content
		}
		return g.nlu(last)
	}
	g.prompts = append(g.prompts, systemPrompt)
	return g.reply, nil
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// byMessage maps message text to raw NLU output.
func byMessage(outputs map[string]string) func(string) (string, error) {
	return func(message string) (string, error) {
		return outputs[message], nil
	}
}

type fakeSES struct {
	mu    sync.Mutex
	calls []*ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	return &ses.SendEmailOutput{MessageId: sdkaws.String("m-1")}, nil
}

const (
	purchaseMessage = "งบ 40000 เอาไว้เล่นเกมครับ"
	purchaseNLU     = "(intent<||>purchase_intent<||>0.8<||>0.8)##(entity<||>price<||>40000<||>0.9)##(language<||>THA<||>0.95<||>1)"
	greetMessage    = "สวัสดีครับ"
	greetNLU        = "(intent<||>greet<||>0.9<||>0.3)"
	supportMessage  = "เครื่องที่ซื้อไปมีปัญหา ช่วยดูให้หน่อย"
	supportNLU      = "(intent<||>support_intent<||>0.75<||>0.6)##(sentiment<||>neutral<||>0.6)"
	complainMessage = "สินค้าแย่มาก ต้องการคืนเงินด่วน"
	complainNLU     = "(intent<||>complain_intent<||>0.9<||>0.6)##(sentiment<||>negative<||>0.9)"
)

func allOutputs() map[string]string {
	return map[string]string{
		purchaseMessage: purchaseNLU,
		greetMessage:    greetNLU,
		supportMessage:  supportNLU,
		complainMessage: complainNLU,
	}
}

func loadTestConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := "database:\n  redis:\n    address: localhost:6379\n" +
		"memory:\n  long_term:\n    backend: file\n    directory: " + filepath.Join(dir, "lm") + "\n" + extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	return cfg
}

type harness struct {
	rt  *Runtime
	gen *scriptedGenerator
	mr  *miniredis.Miniredis
}

func newHarness(t *testing.T, cfg *config.Config, deps Dependencies) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	gen, ok := deps.Generator.(*scriptedGenerator)
	if !ok {
		gen = &scriptedGenerator{nlu: byMessage(allOutputs()), reply: "ยินดีให้บริการค่ะ"}
		deps.Generator = gen
	}
	deps.Redis = rc

	rt, err := Build(context.Background(), cfg, logger.NewTestLogger(t), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	return &harness{rt: rt, gen: gen, mr: mr}
}

// ==========================
// ProcessMessage
// ==========================

func TestAssistant_ProcessMessage_PurchaseIsPersisted(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})
	ctx := context.Background()

	res, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", purchaseMessage)
	require.NoError(t, err)

	assert.Equal(t, "conv-1", res.ConversationID)
	assert.Equal(t, "ยินดีให้บริการค่ะ", res.Response)
	assert.True(t, res.Persisted)
	assert.False(t, res.Fallback)
	assert.InDelta(t, 0.96, res.Importance, 1e-9)
	assert.Equal(t, routing.PresetProductFocused, res.Route.Preset)
	assert.Equal(t, 1250, res.Route.EstimatedTokens)
	assert.Equal(t, "purchase_intent", res.Insights.CustomerIntent)
	assert.Nil(t, res.Escalation)
	assert.Positive(t, res.Duration)

	conv, err := h.rt.Assistant.Conversation(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, purchaseMessage, conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)

	lm, err := h.rt.Assistant.LongTerm(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lm.NLUAnalyses, 1)
	assert.Equal(t, purchaseMessage, lm.NLUAnalyses[0].Content)

	assert.Equal(t, []string{"classification", "response"}, h.gen.purposes)
}

func TestAssistant_ProcessMessage_GreetingIsNotPersisted(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})
	ctx := context.Background()

	res, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", greetMessage)
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.InDelta(t, 0.63, res.Importance, 1e-9)
	// greet is not in the default intent catalog.
	assert.Equal(t, routing.PresetFull, res.Route.Preset)

	lm, err := h.rt.Assistant.LongTerm(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lm.NLUAnalyses)
}

func TestAssistant_ProcessMessage_HistoryFeedsLaterTurns(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})
	ctx := context.Background()

	_, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", purchaseMessage)
	require.NoError(t, err)
	assert.NotContains(t, h.gen.lastPrompt(), "<long_term_memory>")

	res, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", supportMessage)
	require.NoError(t, err)
	assert.Equal(t, routing.PresetSupportFocused, res.Route.Preset)

	prompt := h.gen.lastPrompt()
	assert.Contains(t, prompt, "<long_term_memory>")
	assert.Contains(t, prompt, "User said: "+purchaseMessage)
	assert.Contains(t, prompt, "(Mentioned: 40000)")

	conv, err := h.rt.Assistant.Conversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
}

func TestAssistant_ProcessMessage_ClassificationFailureFallsBack(t *testing.T) {
	gen := &scriptedGenerator{
		nlu:   func(string) (string, error) { return "", llm.ErrLLMRequestFailed },
		reply: "ได้เลยค่ะ",
	}
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{Generator: gen})

	res, err := h.rt.Assistant.ProcessMessage(context.Background(), "u1", "conv-1", "อยากซื้อ iPhone ครับ")
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, "ได้เลยค่ะ", res.Response)
	assert.Equal(t, nlu.StrategyKeyword, res.Analysis.ParsingMetadata.StrategyUsed)
	assert.True(t, res.Analysis.HasIntent("purchase_intent"))
}

func TestAssistant_ProcessMessage_EmptyAnswerUsesPoliteFallback(t *testing.T) {
	gen := &scriptedGenerator{nlu: byMessage(allOutputs()), reply: "   "}
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{Generator: gen})

	res, err := h.rt.Assistant.ProcessMessage(context.Background(), "u1", "conv-1", greetMessage)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.NotEmpty(t, strings.TrimSpace(res.Response))
}

func TestAssistant_ProcessMessage_EscalatesComplaints(t *testing.T) {
	cfg := loadTestConfig(t, "notifications:\n  enabled: true\n  region: ap-southeast-1\n  email:\n    enabled: true\n    from_email: bot@example.com\n    to: [support@example.com]\n")
	mail := &fakeSES{}
	h := newHarness(t, cfg, Dependencies{SES: mail})

	res, err := h.rt.Assistant.ProcessMessage(context.Background(), "u1", "conv-1", complainMessage)
	require.NoError(t, err)

	assert.True(t, res.Insights.RequiresHumanAttention)
	require.NotNil(t, res.Escalation)
	assert.Equal(t, models.NotificationSent, res.Escalation.Status)
	require.Len(t, mail.calls, 1)
	assert.Contains(t, sdkaws.ToString(mail.calls[0].Message.Body.Text.Data), complainMessage)

	res, err = h.rt.Assistant.ProcessMessage(context.Background(), "u1", "conv-1", greetMessage)
	require.NoError(t, err)
	assert.Nil(t, res.Escalation)
	assert.Len(t, mail.calls, 1)
}

func TestAssistant_ProcessMessage_InvalidInput(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})

	tests := []struct {
		name   string
		userID string
		text   string
	}{
		{name: "blank user", userID: " ", text: "hello"},
		{name: "blank message", userID: "u1", text: " \n "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.rt.Assistant.ProcessMessage(context.Background(), tt.userID, "conv-1", tt.text)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, h.gen.purposes)
}

func TestAssistant_ProcessMessage_GeneratesConversationID(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})

	res, err := h.rt.Assistant.ProcessMessage(context.Background(), "u1", "", greetMessage)
	require.NoError(t, err)
	assert.Len(t, res.ConversationID, 36)
	assert.True(t, h.mr.Exists("sm:"+res.ConversationID))
}

func TestAssistant_ProcessMessage_SessionStoreFailure(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})
	h.mr.SetError("ERR store unavailable")

	_, err := h.rt.Assistant.ProcessMessage(context.Background(), "u1", "conv-1", greetMessage)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSessionStoreFailed, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, memory.ErrSessionStoreFailed)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Empty(t, h.gen.purposes)
}

// ==========================
// Context and cleanup
// ==========================

func TestAssistant_ConversationContextAndCleanup(t *testing.T) {
	h := newHarness(t, loadTestConfig(t, ""), Dependencies{})
	ctx := context.Background()

	_, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", purchaseMessage)
	require.NoError(t, err)
	_, err = h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", greetMessage)
	require.NoError(t, err)

	cc, err := h.rt.Assistant.ConversationContext(ctx, "u1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 4, cc.CurrentMessages)
	assert.Len(t, cc.RecentMessages, 4)
	assert.Equal(t, 1, cc.TotalAnalyses)
	assert.Equal(t, 1, cc.ImportantAnalyses)
	assert.Equal(t, "thai", cc.Preferences.PreferredLanguage)
	assert.Positive(t, cc.TTLSeconds)

	require.NoError(t, h.rt.Assistant.Cleanup(ctx, "u1", "conv-1"))

	_, err = h.rt.Assistant.Conversation(ctx, "conv-1")
	assert.ErrorIs(t, err, memory.ErrSessionNotFound)
	lm, err := h.rt.Assistant.LongTerm(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lm.NLUAnalyses)
}

// ==========================
// Observability
// ==========================

func TestAssistant_RecordsTurnMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	obs := observability.NewWithReader(reader, "assistant-test")
	t.Cleanup(obs.Shutdown)

	h := newHarness(t, loadTestConfig(t, ""), Dependencies{Observability: obs})
	ctx := context.Background()

	_, err := h.rt.Assistant.ProcessMessage(ctx, "u1", "conv-1", greetMessage)
	require.NoError(t, err)
	_, err = h.rt.Assistant.ProcessMessage(ctx, "", "conv-1", greetMessage)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "turns.processed" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"success": 1, "failed": 1}, counts)
}

// ==========================
// Build
// ==========================

func TestBuild_RejectsUnknownBackend(t *testing.T) {
	cfg := loadTestConfig(t, "")
	cfg.Memory.LongTerm.Backend = "s3"

	mr := miniredis.RunT(t)
	rc := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	_, err := Build(context.Background(), cfg, logger.NewTestLogger(t), Dependencies{Redis: rc, Generator: &scriptedGenerator{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown long-term backend")
}

func TestNewParser_UsesConfiguredCatalogs(t *testing.T) {
	cfg := loadTestConfig(t, "nlu:\n  additional_intent: \"support_intent:0.9\"\n")
	doc := NewParser(cfg).Parse("(intent<||>support_intent<||>0.8)", "")
	require.Len(t, doc.Intents, 1)
	assert.Equal(t, 0.9, doc.Intents[0].PriorityScore)
}
