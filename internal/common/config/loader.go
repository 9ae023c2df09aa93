package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

	DefaultIntentCatalog     = "purchase_intent:0.8, inquiry_intent:0.7, support_intent:0.6, complain_intent:0.6, past_purchase:0.7"
	AdditionalIntentCatalog  = "greet:0.3, complaint:0.5, cancel_order:0.4, ask_price:0.6, compare_product:0.5"
	DefaultEntityCatalog     = "product, quantity, brand, price"
	AdditionalEntityCatalog  = "color, model, spec, budget, warranty, delivery"
	DefaultSessionTTLSeconds = 1800
)

// Load reads configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml) with
// environment overrides and returns a validated Config.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working
// directory, the project root included.
func loadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to "" so defaults and overrides still apply.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills values still empty after unmarshal from the
// well-known environment variables.
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("OPENROUTER_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.LLM.BaseURL == "" {
		if val := os.Getenv("OPENROUTER_BASE_URL"); val != "" {
			cfg.LLM.BaseURL = val
		}
	}

	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}

	if cfg.Memory.SessionTTL == 0 {
		if val := os.Getenv("SM_TTL"); val != "" {
			if ttl, err := strconv.Atoi(val); err == nil {
				cfg.Memory.SessionTTL = ttl
			}
		}
	}
	if cfg.Memory.LongTerm.Directory == "" {
		if val := os.Getenv("LM_DIRECTORY"); val != "" {
			cfg.Memory.LongTerm.Directory = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nlu-memory-assistant"
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// LLM defaults
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultOpenRouterBaseURL
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.Classification.Model == "" {
		cfg.LLM.Classification.Model = "openai/gpt-4o-mini"
	}
	if cfg.LLM.Classification.Temperature == 0 {
		cfg.LLM.Classification.Temperature = 0.1
	}
	if cfg.LLM.Classification.MaxTokens == 0 {
		cfg.LLM.Classification.MaxTokens = 500
	}
	if cfg.LLM.Response.Model == "" {
		cfg.LLM.Response.Model = cfg.LLM.Classification.Model
	}
	if cfg.LLM.Response.Temperature == 0 {
		cfg.LLM.Response.Temperature = 0.7
	}
	if cfg.LLM.Response.MaxTokens == 0 {
		cfg.LLM.Response.MaxTokens = 2000
	}

	// NLU defaults
	if cfg.NLU.TupleDelimiter == "" {
		cfg.NLU.TupleDelimiter = "<||>"
	}
	if cfg.NLU.RecordDelimiter == "" {
		cfg.NLU.RecordDelimiter = "##"
	}
	if cfg.NLU.CompletionDelimiter == "" {
		cfg.NLU.CompletionDelimiter = "<|COMPLETE|>"
	}
	if cfg.NLU.DefaultIntent == "" {
		cfg.NLU.DefaultIntent = DefaultIntentCatalog
	}
	if cfg.NLU.AdditionalIntent == "" {
		cfg.NLU.AdditionalIntent = AdditionalIntentCatalog
	}
	if cfg.NLU.DefaultEntity == "" {
		cfg.NLU.DefaultEntity = DefaultEntityCatalog
	}
	if cfg.NLU.AdditionalEntity == "" {
		cfg.NLU.AdditionalEntity = AdditionalEntityCatalog
	}
	if cfg.NLU.ImportanceThreshold == 0 {
		cfg.NLU.ImportanceThreshold = 0.7
	}
	if cfg.NLU.MinInputLength == 0 {
		cfg.NLU.MinInputLength = 10
	}
	if cfg.NLU.ParseBudget == 0 {
		cfg.NLU.ParseBudget = 500
	}
	if cfg.NLU.ContextMessages == 0 {
		cfg.NLU.ContextMessages = 5
	}

	// Scoring defaults
	if cfg.NLU.Scoring.Policy == "" {
		cfg.NLU.Scoring.Policy = "keyword_boost"
	}
	if cfg.NLU.Scoring.ShortMessageCharThreshold == 0 {
		cfg.NLU.Scoring.ShortMessageCharThreshold = 10
	}
	if cfg.NLU.Scoring.GenericIntentPenalty == 0 {
		cfg.NLU.Scoring.GenericIntentPenalty = 0.5
	}
	if len(cfg.NLU.Scoring.GenericIntentNames) == 0 {
		cfg.NLU.Scoring.GenericIntentNames = []string{"purchase_intent", "inquiry_intent"}
	}
	if len(cfg.NLU.Scoring.LengthPenaltyBands) == 0 {
		cfg.NLU.Scoring.LengthPenaltyBands = []LengthPenaltyBand{
			{MaxChars: 3, Multiplier: 0.3},
			{MaxChars: 10, Multiplier: 0.6},
			{MaxChars: 20, Multiplier: 0.8},
		}
	}

	// Memory defaults
	if cfg.Memory.SessionTTL == 0 {
		cfg.Memory.SessionTTL = DefaultSessionTTLSeconds
	}
	if cfg.Memory.SessionKeyPrefix == "" {
		cfg.Memory.SessionKeyPrefix = "sm:"
	}
	if cfg.Memory.HistoryLimit == 0 {
		cfg.Memory.HistoryLimit = 5
	}
	if cfg.Memory.HistoryThreshold == 0 {
		cfg.Memory.HistoryThreshold = 0.7
	}
	if cfg.Memory.LongTerm.Backend == "" {
		cfg.Memory.LongTerm.Backend = "file"
	}
	if cfg.Memory.LongTerm.Directory == "" {
		cfg.Memory.LongTerm.Directory = "data/longterm"
	}
	if cfg.Memory.LongTerm.Table == "" {
		cfg.Memory.LongTerm.Table = "long_term_memory"
	}
	if cfg.Memory.AnalysisIndex.Index == "" {
		cfg.Memory.AnalysisIndex.Index = "nlu-analyses"
	}

	// Routing defaults
	costs := &cfg.Routing.TokenCosts
	if costs.CoreBehavior == 0 {
		costs.CoreBehavior = 100
	}
	if costs.InteractionGuidelines == 0 {
		costs.InteractionGuidelines = 150
	}
	if costs.ProductDetails == 0 {
		costs.ProductDetails = 800
	}
	if costs.BusinessPolicies == 0 {
		costs.BusinessPolicies = 200
	}
	if costs.UserHistory == 0 {
		costs.UserHistory = 300
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.NLU.TupleDelimiter == cfg.NLU.RecordDelimiter {
		return fmt.Errorf("nlu.tuple_delimiter and nlu.record_delimiter must differ")
	}
	if cfg.NLU.ImportanceThreshold < 0 || cfg.NLU.ImportanceThreshold > 1 {
		return fmt.Errorf("nlu.importance_threshold must be within [0,1], got %v", cfg.NLU.ImportanceThreshold)
	}
	switch cfg.NLU.Scoring.Policy {
	case "keyword_boost", "length_penalty":
	default:
		return fmt.Errorf("nlu.scoring.policy %q is not supported", cfg.NLU.Scoring.Policy)
	}

	switch cfg.Memory.LongTerm.Backend {
	case "file":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required for the postgres long-term backend")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required for the postgres long-term backend")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required for the postgres long-term backend")
		}
	default:
		return fmt.Errorf("memory.long_term.backend %q is not supported", cfg.Memory.LongTerm.Backend)
	}

	if cfg.Memory.AnalysisIndex.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when memory.analysis_index is enabled")
	}

	if cfg.Notifications.Enabled {
		if cfg.Notifications.Region == "" {
			return fmt.Errorf("notifications.region is required")
		}
		if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.FromEmail == "" {
			return fmt.Errorf("notifications.email.from_email is required")
		}
		if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
			return fmt.Errorf("notifications.sns.topic_arn is required")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// SessionTTL returns the short-term memory TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Memory.SessionTTL) * time.Second
}
