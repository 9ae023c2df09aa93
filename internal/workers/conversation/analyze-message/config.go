package analyzemessage

import (
	"time"

	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/llm"
	"nlu-memory-assistant/internal/nlu"
)

type Config struct {
	Delimiters       nlu.DelimiterConfig
	DefaultIntent    string
	AdditionalIntent string
	DefaultEntity    string
	AdditionalEntity string

	ImportanceThreshold float64
	ContextMessages     int
	Generation          llm.GenerationConfig
	Timeout             time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Delimiters: nlu.DelimiterConfig{
			Tuple:      cfg.NLU.TupleDelimiter,
			Record:     cfg.NLU.RecordDelimiter,
			Completion: cfg.NLU.CompletionDelimiter,
		},
		DefaultIntent:       cfg.NLU.DefaultIntent,
		AdditionalIntent:    cfg.NLU.AdditionalIntent,
		DefaultEntity:       cfg.NLU.DefaultEntity,
		AdditionalEntity:    cfg.NLU.AdditionalEntity,
		ImportanceThreshold: cfg.NLU.ImportanceThreshold,
		ContextMessages:     cfg.NLU.ContextMessages,
		Generation:          llm.ClassificationConfig(cfg.LLM),
		Timeout:             30 * time.Second,
	}
}

// IntentWeights merges both catalogs; additional entries win.
func (c *Config) IntentWeights() map[string]float64 {
	return nlu.MergeCatalogs(nlu.ParseCatalog(c.DefaultIntent), nlu.ParseCatalog(c.AdditionalIntent))
}
