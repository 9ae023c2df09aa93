package nlu

const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Insights is the business-facing summary of one analysis.
type Insights struct {
	CustomerIntent         string   `json:"customer_intent"`
	IntentConfidence       float64  `json:"intent_confidence"`
	ProductInterest        []string `json:"product_interest"`
	UrgencyLevel           string   `json:"urgency_level"`
	LanguagePreference     string   `json:"language_preference"`
	EmotionalState         string   `json:"emotional_state"`
	RequiresHumanAttention bool     `json:"requires_human_attention"`
}

var languageNames = map[string]string{
	"THA": "thai",
	"USA": "english",
	"ENG": "english",
}

// LanguageName maps a language code to the preference name used in insights.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "unknown"
}

// IsProductEntity reports whether an entity type describes product interest.
func IsProductEntity(typ string) bool {
	switch typ {
	case "product", "brand", "model":
		return true
	}
	return false
}

var escalationIntents = map[string]bool{
	"complain_intent": true,
	"support_intent":  true,
	"complaint":       true,
}

// BusinessInsights derives customer-facing signals from an analysis.
func BusinessInsights(doc *AnalysisDocument) Insights {
	ins := Insights{
		ProductInterest:    []string{},
		UrgencyLevel:       UrgencyLow,
		LanguagePreference: "unknown",
		EmotionalState:     "neutral",
	}
	if doc == nil {
		return ins
	}

	if top, ok := doc.PrimaryIntent(); ok {
		ins.CustomerIntent = top.Name
		ins.IntentConfidence = top.Confidence
		switch {
		case escalationIntents[top.Name] && top.Confidence > 0.8:
			ins.UrgencyLevel = UrgencyHigh
			ins.RequiresHumanAttention = true
		case top.Confidence > 0.9:
			ins.UrgencyLevel = UrgencyMedium
		}
	}

	for _, e := range doc.Entities {
		if IsProductEntity(e.Type) {
			ins.ProductInterest = append(ins.ProductInterest, e.Value)
		}
	}

	if l, ok := doc.PrimaryLanguage(); ok {
		ins.LanguagePreference = LanguageName(l.Code)
	}

	if s := doc.Sentiment; s != nil {
		ins.EmotionalState = s.Label
		if s.Label == "negative" && s.Confidence > 0.8 {
			ins.RequiresHumanAttention = true
		}
	}
	return ins
}
