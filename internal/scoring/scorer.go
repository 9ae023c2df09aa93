// Package scoring decides how important an analysis is for long-term memory.
package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/metrics"
	"nlu-memory-assistant/internal/nlu"
)

const (
	PolicyKeywordBoost  = "keyword_boost"
	PolicyLengthPenalty = "length_penalty"

	// FallbackScore is returned by the keyword_boost policy when scoring fails.
	FallbackScore = 0.4
	// LengthPenaltyFallbackScore is the length_penalty policy's failure value.
	LengthPenaltyFallbackScore = 0.5
)

// DefaultBusinessKeywords are the commercial terms counted by keyword_boost.
var DefaultBusinessKeywords = []string{
	"ซื้อ", "เท่าไหร่", "ราคา", "สั่ง", "จอง", "ได้ไหม", "อยาก",
	"มีไหม", "แนะนำ", "เอา", "งบ", "บาท",
}

// commercialTerms trigger the flat bonus of the length_penalty policy.
var commercialTerms = []string{"ซื้อ", "เท่าไหร่", "ราคา", "สั่ง", "จอง"}

type Band struct {
	MaxChars   int
	Multiplier float64
}

// Config selects one policy and carries its parameters. Policies are never
// blended.
type Config struct {
	Policy                    string
	ShortMessageCharThreshold int
	GenericIntentPenalty      float64
	GenericIntentNames        []string
	LengthPenaltyBands        []Band
	BusinessKeywords          []string
}

func DefaultConfig() Config {
	return Config{
		Policy:                    PolicyKeywordBoost,
		ShortMessageCharThreshold: 10,
		GenericIntentPenalty:      0.5,
		GenericIntentNames:        []string{"purchase_intent", "inquiry_intent"},
		LengthPenaltyBands: []Band{
			{MaxChars: 3, Multiplier: 0.3},
			{MaxChars: 10, Multiplier: 0.6},
			{MaxChars: 20, Multiplier: 0.8},
		},
		BusinessKeywords: DefaultBusinessKeywords,
	}
}

// FromConfig maps the loaded configuration, keeping defaults for empty fields.
func FromConfig(c config.ScoringConfig) Config {
	cfg := DefaultConfig()
	if c.Policy != "" {
		cfg.Policy = c.Policy
	}
	if c.ShortMessageCharThreshold > 0 {
		cfg.ShortMessageCharThreshold = c.ShortMessageCharThreshold
	}
	if c.GenericIntentPenalty > 0 {
		cfg.GenericIntentPenalty = c.GenericIntentPenalty
	}
	if len(c.GenericIntentNames) > 0 {
		cfg.GenericIntentNames = c.GenericIntentNames
	}
	if len(c.LengthPenaltyBands) > 0 {
		cfg.LengthPenaltyBands = make([]Band, len(c.LengthPenaltyBands))
		for i, b := range c.LengthPenaltyBands {
			cfg.LengthPenaltyBands[i] = Band{MaxChars: b.MaxChars, Multiplier: b.Multiplier}
		}
	}
	if len(c.BusinessKeywords) > 0 {
		cfg.BusinessKeywords = c.BusinessKeywords
	}
	return cfg
}

// Score is a pure function of the document, the message and cfg. It never
// reads the persistence threshold.
func Score(doc *nlu.AnalysisDocument, message string, cfg Config) (score float64) {
	fallback := FallbackScore
	if cfg.Policy == PolicyLengthPenalty {
		fallback = LengthPenaltyFallbackScore
	}

	defer func() {
		if r := recover(); r != nil {
			score = fallback
		}
	}()

	if doc == nil {
		return fallback
	}

	switch cfg.Policy {
	case PolicyLengthPenalty:
		return clamp01(lengthPenalty(doc, message, cfg))
	default:
		return clamp01(keywordBoost(doc, message, cfg))
	}
}

// ShouldPersist applies the caller's threshold.
func ShouldPersist(score, threshold float64) bool {
	return score >= threshold
}

func keywordBoost(doc *nlu.AnalysisDocument, message string, cfg Config) float64 {
	score := 0.2

	if top, ok := doc.PrimaryIntent(); ok {
		score = math.Max(score, top.Confidence*0.7)
	}

	lower := strings.ToLower(message)
	keywords := cfg.BusinessKeywords
	if len(keywords) == 0 {
		keywords = DefaultBusinessKeywords
	}
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	if matches > 0 {
		score += math.Min(float64(matches)*0.15, 0.3)
	}

	if valid := doc.ValidEntities(message); len(valid) > 0 {
		score += math.Min(float64(len(valid))*0.1, 0.2)
	}

	if s := doc.Sentiment; s != nil && (s.Label == "positive" || s.Label == "negative") {
		score += 0.1
	}

	// Strictly shorter than the threshold: a 10-character greeting gets no boost.
	if utf8.RuneCountInString(strings.TrimSpace(message)) < cfg.ShortMessageCharThreshold && score >= 0.6 {
		score += 0.1
	}

	return score
}

func lengthPenalty(doc *nlu.AnalysisDocument, message string, cfg Config) float64 {
	length := utf8.RuneCountInString(strings.TrimSpace(message))
	lower := strings.ToLower(message)

	multiplier := 1.0
	for _, band := range cfg.LengthPenaltyBands {
		if length <= band.MaxChars {
			multiplier = band.Multiplier
			break
		}
	}

	importance := 0.0

	if top, ok := doc.PrimaryIntent(); ok {
		weight := top.Confidence * top.PriorityScore
		if length <= cfg.ShortMessageCharThreshold && contains(cfg.GenericIntentNames, top.Name) {
			weight *= cfg.GenericIntentPenalty
		}
		importance += weight * 0.6
	}

	if len(doc.Entities) > 0 {
		valid := doc.ValidEntities(message)
		if len(valid) > 0 {
			sum := 0.0
			for _, e := range valid {
				sum += e.Confidence
			}
			avg := sum / float64(len(valid))
			bonus := math.Min(float64(len(valid))*0.1, 0.3)
			importance += (avg + bonus) * 0.25
		} else {
			// Every entity is absent from the message.
			importance *= 0.3
		}
	}

	if s := doc.Sentiment; s != nil {
		weight := s.Confidence
		if s.Label == "positive" || s.Label == "negative" {
			weight *= 1.2
		}
		importance += weight * 0.15
	}

	importance *= multiplier

	for _, term := range commercialTerms {
		if strings.Contains(lower, term) {
			importance += 0.1
			break
		}
	}

	return importance
}

// Scorer binds a Config and records the score distribution.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// Score scores doc against its own content.
func (s *Scorer) Score(doc *nlu.AnalysisDocument) float64 {
	message := ""
	if doc != nil {
		message = doc.Content
	}
	score := Score(doc, message, s.cfg)
	metrics.ImportanceScore.Observe(score)
	return score
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
