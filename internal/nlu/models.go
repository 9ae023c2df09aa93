// Package nlu turns the semi-structured text produced by the NLU model call
// into a typed AnalysisDocument.
package nlu

import (
	"sort"
	"strings"
	"time"
)

// ParsingStatus reports how a raw NLU output was resolved.
type ParsingStatus string

const (
	StatusSuccess        ParsingStatus = "success"
	StatusPartialSuccess ParsingStatus = "partial_success"
	StatusParseError     ParsingStatus = "parse_error"
	StatusFormatError    ParsingStatus = "format_error"
	StatusInputTooShort  ParsingStatus = "input_too_short"
)

type Intent struct {
	Name          string                 `json:"name"`
	Confidence    float64                `json:"confidence"`
	PriorityScore float64                `json:"priority_score"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type Entity struct {
	Type       string                 `json:"type"`
	Value      string                 `json:"value"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// FoundIn reports whether the entity value literally appears in text,
// ignoring case.
func (e Entity) FoundIn(text string) bool {
	if e.Value == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(e.Value))
}

type Language struct {
	Code       string                 `json:"code"`
	Confidence float64                `json:"confidence"`
	IsPrimary  bool                   `json:"is_primary"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type Sentiment struct {
	Label      string                 `json:"label"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ParsingMetadata explains which strategy produced the document.
type ParsingMetadata struct {
	Status           ParsingStatus `json:"status"`
	StrategyUsed     string        `json:"strategy_used"`
	Warnings         []string      `json:"warnings,omitempty"`
	ValidationErrors []string      `json:"validation_errors,omitempty"`
	DurationMs       float64       `json:"duration_ms"`
	Error            string        `json:"error,omitempty"`
	RawOutput        string        `json:"raw_output,omitempty"`
}

// Aggregates are diagnostics only; scoring never reads them.
type Aggregates struct {
	TotalIntents    int     `json:"total_intents"`
	TotalEntities   int     `json:"total_entities"`
	TotalLanguages  int     `json:"total_languages"`
	PrimaryLanguage string  `json:"primary_language,omitempty"`
	HasSentiment    bool    `json:"has_sentiment"`
	IntentAvg       float64 `json:"intent_avg_confidence"`
	EntityAvg       float64 `json:"entity_avg_confidence"`
	LanguageAvg     float64 `json:"language_avg_confidence"`
}

// AnalysisDocument is built once per inbound message and never mutated
// afterwards.
type AnalysisDocument struct {
	Content         string          `json:"content"`
	Intents         []Intent        `json:"intents"`
	Entities        []Entity        `json:"entities"`
	Languages       []Language      `json:"languages"`
	Sentiment       *Sentiment      `json:"sentiment,omitempty"`
	Metadata        Aggregates      `json:"metadata"`
	ParsingMetadata ParsingMetadata `json:"parsing_metadata"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PrimaryIntent returns the max-confidence intent. The first one wins ties.
func (d *AnalysisDocument) PrimaryIntent() (Intent, bool) {
	if d == nil || len(d.Intents) == 0 {
		return Intent{}, false
	}
	best := d.Intents[0]
	for _, in := range d.Intents[1:] {
		if in.Confidence > best.Confidence {
			best = in
		}
	}
	return best, true
}

// PrimaryIntentName is PrimaryIntent().Name or "" without intents.
func (d *AnalysisDocument) PrimaryIntentName() string {
	in, _ := d.PrimaryIntent()
	return in.Name
}

// PrimaryLanguage returns the first language flagged primary.
func (d *AnalysisDocument) PrimaryLanguage() (Language, bool) {
	if d == nil {
		return Language{}, false
	}
	for _, l := range d.Languages {
		if l.IsPrimary {
			return l, true
		}
	}
	return Language{}, false
}

// ExtractedEntities groups entity values by type, keeping parse order.
func (d *AnalysisDocument) ExtractedEntities() map[string][]string {
	out := make(map[string][]string)
	if d == nil {
		return out
	}
	for _, e := range d.Entities {
		out[e.Type] = append(out[e.Type], e.Value)
	}
	return out
}

// HasIntent reports whether any intent carries name.
func (d *AnalysisDocument) HasIntent(name string) bool {
	if d == nil {
		return false
	}
	for _, in := range d.Intents {
		if in.Name == name {
			return true
		}
	}
	return false
}

// ValidEntities returns the entities whose value appears in text.
func (d *AnalysisDocument) ValidEntities(text string) []Entity {
	if d == nil {
		return nil
	}
	var out []Entity
	for _, e := range d.Entities {
		if e.FoundIn(text) {
			out = append(out, e)
		}
	}
	return out
}

// finalize sorts the collections and computes aggregates.
func (d *AnalysisDocument) finalize() {
	if d.Intents == nil {
		d.Intents = []Intent{}
	}
	if d.Entities == nil {
		d.Entities = []Entity{}
	}
	if d.Languages == nil {
		d.Languages = []Language{}
	}

	sort.SliceStable(d.Intents, func(i, j int) bool {
		return d.Intents[i].Confidence > d.Intents[j].Confidence
	})
	sort.SliceStable(d.Languages, func(i, j int) bool {
		a, b := d.Languages[i], d.Languages[j]
		if a.IsPrimary != b.IsPrimary {
			return a.IsPrimary
		}
		return a.Confidence > b.Confidence
	})

	agg := Aggregates{
		TotalIntents:   len(d.Intents),
		TotalEntities:  len(d.Entities),
		TotalLanguages: len(d.Languages),
		HasSentiment:   d.Sentiment != nil,
	}
	if l, ok := d.PrimaryLanguage(); ok {
		agg.PrimaryLanguage = l.Code
	}
	for _, in := range d.Intents {
		agg.IntentAvg += in.Confidence
	}
	for _, e := range d.Entities {
		agg.EntityAvg += e.Confidence
	}
	for _, l := range d.Languages {
		agg.LanguageAvg += l.Confidence
	}
	if n := len(d.Intents); n > 0 {
		agg.IntentAvg /= float64(n)
	}
	if n := len(d.Entities); n > 0 {
		agg.EntityAvg /= float64(n)
	}
	if n := len(d.Languages); n > 0 {
		agg.LanguageAvg /= float64(n)
	}
	d.Metadata = agg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
