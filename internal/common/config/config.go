package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	LLM           LLMConfig          `mapstructure:"llm"`
	NLU           NLUConfig          `mapstructure:"nlu"`
	Memory        MemoryConfig       `mapstructure:"memory"`
	Routing       RoutingConfig      `mapstructure:"routing"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// LLMConfig holds the OpenAI-compatible provider settings. Classification is
// the NLU call, response is the answer generation call.
type LLMConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`

	Classification GenerationConfig `mapstructure:"classification"`
	Response       GenerationConfig `mapstructure:"response"`
}

type GenerationConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// NLUConfig holds delimiter, catalog and scoring settings.
type NLUConfig struct {
	TupleDelimiter      string `mapstructure:"tuple_delimiter"`
	RecordDelimiter     string `mapstructure:"record_delimiter"`
	CompletionDelimiter string `mapstructure:"completion_delimiter"`

	DefaultIntent    string `mapstructure:"default_intent"`
	AdditionalIntent string `mapstructure:"additional_intent"`
	DefaultEntity    string `mapstructure:"default_entity"`
	AdditionalEntity string `mapstructure:"additional_entity"`

	ImportanceThreshold float64 `mapstructure:"importance_threshold"`
	MinInputLength      int     `mapstructure:"min_input_length"`
	ParseBudget         int     `mapstructure:"parse_budget"` // milliseconds
	ContextMessages     int     `mapstructure:"context_messages"`

	Scoring ScoringConfig `mapstructure:"scoring"`
}

type ScoringConfig struct {
	Policy                    string              `mapstructure:"policy"`
	ShortMessageCharThreshold int                 `mapstructure:"short_message_char_threshold"`
	GenericIntentPenalty      float64             `mapstructure:"generic_intent_penalty"`
	GenericIntentNames        []string            `mapstructure:"generic_intent_names"`
	LengthPenaltyBands        []LengthPenaltyBand `mapstructure:"length_penalty_bands"`
	BusinessKeywords          []string            `mapstructure:"business_keywords"`
}

type LengthPenaltyBand struct {
	MaxChars   int     `mapstructure:"max_chars"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// MemoryConfig holds session (short-term) and persisted (long-term) settings.
type MemoryConfig struct {
	SessionTTL       int     `mapstructure:"session_ttl"` // seconds
	SessionKeyPrefix string  `mapstructure:"session_key_prefix"`
	HistoryLimit     int     `mapstructure:"history_limit"`
	HistoryThreshold float64 `mapstructure:"history_threshold"`

	LongTerm struct {
		Backend   string `mapstructure:"backend"` // file | postgres
		Directory string `mapstructure:"directory"`
		Table     string `mapstructure:"table"`
	} `mapstructure:"long_term"`

	AnalysisIndex struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"analysis_index"`
}

// RoutingConfig holds per-block prompt token costs.
type RoutingConfig struct {
	TokenCosts struct {
		CoreBehavior          int `mapstructure:"core_behavior"`
		InteractionGuidelines int `mapstructure:"interaction_guidelines"`
		ProductDetails        int `mapstructure:"product_details"`
		BusinessPolicies      int `mapstructure:"business_policies"`
		UserHistory           int `mapstructure:"user_history"`
	} `mapstructure:"token_costs"`
}

// NotificationConfig holds settings for the human-attention escalation.
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Email   struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
