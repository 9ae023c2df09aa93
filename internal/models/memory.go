package models

import (
	"sort"
	"time"

	"nlu-memory-assistant/internal/nlu"
)

// Communication styles derived from mean sentiment confidence.
const (
	StyleExpressive = "expressive"
	StyleReserved   = "reserved"
	StyleNeutral    = "neutral"
)

const (
	maxCommonIntents    = 5
	maxProductInterests = 10
)

// LongTermMemory is the persisted per-user document.
type LongTermMemory struct {
	UserID      string                 `json:"user_id"`
	NLUAnalyses []nlu.AnalysisDocument `json:"nlu_analyses"`
	Summary     string                 `json:"summary"`
	Context     map[string]interface{} `json:"context"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func NewLongTermMemory(userID string) *LongTermMemory {
	now := time.Now().UTC()
	return &LongTermMemory{
		UserID:      userID,
		NLUAnalyses: []nlu.AnalysisDocument{},
		Context:     map[string]interface{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (m *LongTermMemory) AddAnalysis(doc nlu.AnalysisDocument) {
	m.NLUAnalyses = append(m.NLUAnalyses, doc)
	m.UpdatedAt = time.Now().UTC()
}

// ImportantAnalyses keeps analyses whose score is at least threshold, in
// insertion order.
func (m *LongTermMemory) ImportantAnalyses(threshold float64, score func(*nlu.AnalysisDocument) float64) []nlu.AnalysisDocument {
	out := []nlu.AnalysisDocument{}
	for i := range m.NLUAnalyses {
		if score(&m.NLUAnalyses[i]) >= threshold {
			out = append(out, m.NLUAnalyses[i])
		}
	}
	return out
}

func (m *LongTermMemory) AnalysesByIntent(name string) []nlu.AnalysisDocument {
	out := []nlu.AnalysisDocument{}
	for i := range m.NLUAnalyses {
		if m.NLUAnalyses[i].HasIntent(name) {
			out = append(out, m.NLUAnalyses[i])
		}
	}
	return out
}

type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

type CustomerPreferences struct {
	PreferredLanguage  string        `json:"preferred_language"`
	CommonIntents      []IntentCount `json:"common_intents"`
	ProductInterests   []string      `json:"product_interests"`
	CommunicationStyle string        `json:"communication_style"`
}

// CustomerPreferences summarizes the stored analyses. Ties in counts are
// broken by first appearance.
func (m *LongTermMemory) CustomerPreferences() CustomerPreferences {
	prefs := CustomerPreferences{
		PreferredLanguage:  "thai",
		CommonIntents:      []IntentCount{},
		ProductInterests:   []string{},
		CommunicationStyle: StyleNeutral,
	}
	if len(m.NLUAnalyses) == 0 {
		return prefs
	}

	langCounts := map[string]int{}
	var langOrder []string
	intentCounts := map[string]int{}
	var intentOrder []string
	seenProducts := map[string]bool{}
	sentimentSum, sentimentN := 0.0, 0

	for i := range m.NLUAnalyses {
		doc := &m.NLUAnalyses[i]

		if lang, ok := doc.PrimaryLanguage(); ok {
			if langCounts[lang.Code] == 0 {
				langOrder = append(langOrder, lang.Code)
			}
			langCounts[lang.Code]++
		}

		if name := doc.PrimaryIntentName(); name != "" {
			if intentCounts[name] == 0 {
				intentOrder = append(intentOrder, name)
			}
			intentCounts[name]++
		}

		for _, e := range doc.Entities {
			if nlu.IsProductEntity(e.Type) && !seenProducts[e.Value] && len(prefs.ProductInterests) < maxProductInterests {
				seenProducts[e.Value] = true
				prefs.ProductInterests = append(prefs.ProductInterests, e.Value)
			}
		}

		if doc.Sentiment != nil {
			sentimentSum += doc.Sentiment.Confidence
			sentimentN++
		}
	}

	if len(langOrder) > 0 {
		best := langOrder[0]
		for _, code := range langOrder[1:] {
			if langCounts[code] > langCounts[best] {
				best = code
			}
		}
		prefs.PreferredLanguage = nlu.LanguageName(best)
	}

	for _, name := range intentOrder {
		prefs.CommonIntents = append(prefs.CommonIntents, IntentCount{Intent: name, Count: intentCounts[name]})
	}
	sort.SliceStable(prefs.CommonIntents, func(i, j int) bool {
		return prefs.CommonIntents[i].Count > prefs.CommonIntents[j].Count
	})
	if len(prefs.CommonIntents) > maxCommonIntents {
		prefs.CommonIntents = prefs.CommonIntents[:maxCommonIntents]
	}

	if sentimentN > 0 {
		avg := sentimentSum / float64(sentimentN)
		switch {
		case avg > 0.7:
			prefs.CommunicationStyle = StyleExpressive
		case avg < 0.4:
			prefs.CommunicationStyle = StyleReserved
		}
	}

	return prefs
}
