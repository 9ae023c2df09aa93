package generateresponse

import (
	"time"

	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/llm"
)

type Config struct {
	Generation      llm.GenerationConfig
	HistoryLimit    int
	ContextMessages int
	FallbackMessage string
	Timeout         time.Duration
}

// DefaultFallbackMessage is sent when the model fails or answers with nothing.
const DefaultFallbackMessage = "ขออภัยค่ะ ตอนนี้ระบบไม่สามารถตอบได้ กรุณาลองใหม่อีกครั้งนะคะ"

func LoadConfig(cfg *config.Config) *Config {
	limit := cfg.Memory.HistoryLimit
	if limit <= 0 {
		limit = 5
	}
	return &Config{
		Generation:      llm.ResponseConfig(cfg.LLM),
		HistoryLimit:    limit,
		ContextMessages: 20,
		FallbackMessage: DefaultFallbackMessage,
		Timeout:         60 * time.Second,
	}
}
