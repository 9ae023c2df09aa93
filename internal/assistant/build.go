package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsclient "nlu-memory-assistant/internal/common/aws"
	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/database"
	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/observability"
	"nlu-memory-assistant/internal/memory"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
	"nlu-memory-assistant/internal/scoring"
	analyzemessage "nlu-memory-assistant/internal/workers/conversation/analyze-message"
	generateresponse "nlu-memory-assistant/internal/workers/conversation/generate-response"
	notifyhumanattention "nlu-memory-assistant/internal/workers/escalation/notify-human-attention"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Dependencies are pre-built collaborators. Nil fields are created from the
// configuration.
type Dependencies struct {
	Redis         *database.RedisClient
	Postgres      *database.PostgresClient
	Generator     llm.Generator
	SES           awsclient.SESAPI
	SNS           awsclient.SNSAPI
	Observability *observability.Observability
}

// Runtime is a wired assistant plus the components the CLI inspects.
type Runtime struct {
	Assistant *Assistant
	Memory    *memory.Manager
	Index     *memory.AnalysisIndex
	Parser    *nlu.Parser
	Scorer    *scoring.Scorer
	Router    *routing.Router
	Config    *config.Config

	closers []func() error
}

// Close releases connections opened by Build.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// NewParser builds the NLU parser for cfg.
func NewParser(cfg *config.Config) *nlu.Parser {
	return nlu.NewParser(nlu.Options{
		Delimiters: nlu.DelimiterConfig{
			Tuple:      cfg.NLU.TupleDelimiter,
			Record:     cfg.NLU.RecordDelimiter,
			Completion: cfg.NLU.CompletionDelimiter,
		},
		IntentWeights:  nlu.MergeCatalogs(nlu.ParseCatalog(cfg.NLU.DefaultIntent), nlu.ParseCatalog(cfg.NLU.AdditionalIntent)),
		MinInputLength: cfg.NLU.MinInputLength,
		Budget:         config.GetDuration(cfg.NLU.ParseBudget),
	})
}

func Build(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	rc := deps.Redis
	if rc == nil {
		var err error
		if rc, err = database.NewRedis(cfg.Database.Redis); err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, rc.Close)
	}
	sm := memory.NewShortTermStore(rc, cfg.Memory.SessionKeyPrefix, cfg.SessionTTL(), log)

	lm, err := buildLongTerm(ctx, cfg, log, deps, rt)
	if err != nil {
		return fail(err)
	}

	if cfg.Memory.AnalysisIndex.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return fail(err)
		}
		rt.Index = memory.NewAnalysisIndex(es.Client, cfg.Memory.AnalysisIndex.Index, log)
	}

	generator := deps.Generator
	if generator == nil {
		generator = llm.NewClient(llm.ConfigFrom(cfg.LLM), log)
	}

	rt.Parser = NewParser(cfg)
	rt.Scorer = scoring.NewScorer(scoring.FromConfig(cfg.NLU.Scoring))
	rt.Router = routing.NewRouter(routing.TokenCostsFromConfig(cfg.Routing))

	rt.Memory, err = memory.NewManager(memory.ManagerOptions{
		ShortTerm:        sm,
		LongTerm:         lm,
		Index:            rt.Index,
		Scorer:           rt.Scorer,
		HistoryThreshold: cfg.Memory.HistoryThreshold,
		Logger:           log,
	})
	if err != nil {
		return fail(err)
	}

	escalator, err := buildEscalator(ctx, cfg, log, deps)
	if err != nil {
		return fail(err)
	}

	rt.Assistant, err = New(Options{
		Memory:        rt.Memory,
		Analyzer:      analyzemessage.NewHandler(analyzemessage.LoadConfig(cfg), generator, rt.Parser, rt.Scorer, rt.Memory, log),
		Responder:     generateresponse.NewHandler(generateresponse.LoadConfig(cfg), generator, log),
		Escalator:     escalator,
		Router:        rt.Router,
		IntentCatalog: cfg.NLU.DefaultIntent,
		HistoryLimit:  cfg.Memory.HistoryLimit,
		Observability: deps.Observability,
		Logger:        log,
	})
	if err != nil {
		return fail(err)
	}

	log.Info("assistant wired", map[string]interface{}{
		"longTermBackend": cfg.Memory.LongTerm.Backend,
		"analysisIndex":   rt.Index != nil,
		"escalation":      escalator != nil,
		"scoringPolicy":   rt.Scorer.Config().Policy,
	})
	return rt, nil
}

func buildLongTerm(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies, rt *Runtime) (memory.LongTermStore, error) {
	switch cfg.Memory.LongTerm.Backend {
	case BackendPostgres:
		pg := deps.Postgres
		if pg == nil {
			var err error
			if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, pg.Close)
		}
		store, err := memory.NewPostgresStore(pg, cfg.Memory.LongTerm.Table, log)
		if err != nil {
			return nil, err
		}
		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(schemaCtx); err != nil {
			return nil, err
		}
		return store, nil
	case BackendFile, "":
		return memory.NewFileStore(cfg.Memory.LongTerm.Directory, log)
	default:
		return nil, fmt.Errorf("unknown long-term backend %q", cfg.Memory.LongTerm.Backend)
	}
}

func buildEscalator(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies) (*notifyhumanattention.Handler, error) {
	ncfg := notifyhumanattention.LoadConfig(cfg)
	if !ncfg.Enabled {
		return nil, nil
	}

	ses, sns := deps.SES, deps.SNS
	if (ncfg.EmailEnabled && ses == nil) || (ncfg.SNSEnabled && sns == nil) {
		awsCfg, err := awsclient.LoadConfig(ctx, ncfg.Region)
		if err != nil {
			return nil, err
		}
		if ses == nil {
			ses = awsclient.NewSESClient(awsCfg)
		}
		if sns == nil {
			sns = awsclient.NewSNSClient(awsCfg)
		}
	}
	return notifyhumanattention.NewHandler(ncfg, ses, sns, log), nil
}
