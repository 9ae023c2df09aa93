// Package routing picks which prompt-context blocks a response needs.
package routing

import (
	"fmt"

	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/metrics"
	"nlu-memory-assistant/internal/nlu"
)

type Preset string

const (
	PresetMinimal        Preset = "minimal"
	PresetProductFocused Preset = "product_focused"
	PresetSupportFocused Preset = "support_focused"
	PresetFull           Preset = "full"
)

const (
	IntentGreet    = "greet"
	IntentPurchase = "purchase_intent"
	IntentSupport  = "support_intent"
	IntentComplain = "complain_intent"
	IntentInquiry  = "inquiry_intent"
)

// ContextSelection always carries all five flags. Values are built by the
// preset functions below.
type ContextSelection struct {
	CoreBehavior          bool `json:"core_behavior"`
	InteractionGuidelines bool `json:"interaction_guidelines"`
	ProductDetails        bool `json:"product_details"`
	BusinessPolicies      bool `json:"business_policies"`
	UserHistory           bool `json:"user_history"`
}

func Minimal() ContextSelection {
	return ContextSelection{CoreBehavior: true, InteractionGuidelines: true, UserHistory: true}
}

func ProductFocused() ContextSelection {
	return ContextSelection{CoreBehavior: true, InteractionGuidelines: true, ProductDetails: true, BusinessPolicies: true}
}

func SupportFocused() ContextSelection {
	return ContextSelection{CoreBehavior: true, InteractionGuidelines: true, BusinessPolicies: true, UserHistory: true}
}

func Full() ContextSelection {
	return ContextSelection{CoreBehavior: true, InteractionGuidelines: true, ProductDetails: true, BusinessPolicies: true, UserHistory: true}
}

// SelectionFor returns the flags of a preset; unknown presets get Full.
func SelectionFor(p Preset) ContextSelection {
	switch p {
	case PresetMinimal:
		return Minimal()
	case PresetProductFocused:
		return ProductFocused()
	case PresetSupportFocused:
		return SupportFocused()
	default:
		return Full()
	}
}

// TokenCosts is the estimated prompt size of each context block.
type TokenCosts struct {
	CoreBehavior          int
	InteractionGuidelines int
	ProductDetails        int
	BusinessPolicies      int
	UserHistory           int
}

func DefaultTokenCosts() TokenCosts {
	return TokenCosts{
		CoreBehavior:          100,
		InteractionGuidelines: 150,
		ProductDetails:        800,
		BusinessPolicies:      200,
		UserHistory:           300,
	}
}

// TokenCostsFromConfig keeps the default for any cost left at zero.
func TokenCostsFromConfig(c config.RoutingConfig) TokenCosts {
	costs := DefaultTokenCosts()
	tc := c.TokenCosts
	if tc.CoreBehavior > 0 {
		costs.CoreBehavior = tc.CoreBehavior
	}
	if tc.InteractionGuidelines > 0 {
		costs.InteractionGuidelines = tc.InteractionGuidelines
	}
	if tc.ProductDetails > 0 {
		costs.ProductDetails = tc.ProductDetails
	}
	if tc.BusinessPolicies > 0 {
		costs.BusinessPolicies = tc.BusinessPolicies
	}
	if tc.UserHistory > 0 {
		costs.UserHistory = tc.UserHistory
	}
	return costs
}

// Estimate sums the costs of the enabled flags.
func (c TokenCosts) Estimate(s ContextSelection) int {
	total := 0
	if s.CoreBehavior {
		total += c.CoreBehavior
	}
	if s.InteractionGuidelines {
		total += c.InteractionGuidelines
	}
	if s.ProductDetails {
		total += c.ProductDetails
	}
	if s.BusinessPolicies {
		total += c.BusinessPolicies
	}
	if s.UserHistory {
		total += c.UserHistory
	}
	return total
}

type Decision struct {
	Preset          Preset           `json:"preset"`
	Selection       ContextSelection `json:"selection"`
	EstimatedTokens int              `json:"estimated_tokens"`
	FullTokens      int              `json:"full_tokens"`
	TokensSaved     int              `json:"tokens_saved"`
	Reason          string           `json:"reason"`
}

// Router is stateless apart from its token costs.
type Router struct {
	costs TokenCosts
}

func NewRouter(costs TokenCosts) *Router {
	return &Router{costs: costs}
}

// Route applies first-match precedence over the intents present in doc,
// restricted to names known to the default-intent catalog. Confidence is
// not consulted.
func (r *Router) Route(doc *nlu.AnalysisDocument, catalog string) Decision {
	preset, reason := choose(doc, catalog)
	selection := SelectionFor(preset)

	estimated := r.costs.Estimate(selection)
	full := r.costs.Estimate(Full())

	d := Decision{
		Preset:          preset,
		Selection:       selection,
		EstimatedTokens: estimated,
		FullTokens:      full,
		TokensSaved:     full - estimated,
		Reason:          reason,
	}

	metrics.ContextRouteTotal.WithLabelValues(string(preset)).Inc()
	metrics.ContextTokensSaved.Observe(float64(d.TokensSaved))

	return d
}

// Route uses the default token costs.
func Route(doc *nlu.AnalysisDocument, catalog string) Decision {
	return NewRouter(DefaultTokenCosts()).Route(doc, catalog)
}

func choose(doc *nlu.AnalysisDocument, catalog string) (Preset, string) {
	if doc == nil || len(doc.Intents) == 0 {
		return PresetFull, "no analysis available"
	}

	// Only names matter here; entries with missing or bad weights still count.
	known := make(map[string]bool)
	for _, name := range nlu.CatalogNames(catalog) {
		known[name] = true
	}
	present := make(map[string]bool, len(doc.Intents))
	for _, in := range doc.Intents {
		present[in.Name] = true
	}
	has := func(name string) bool {
		return known[name] && present[name]
	}

	switch {
	case has(IntentGreet):
		return PresetMinimal, fmt.Sprintf("%s present", IntentGreet)
	case has(IntentPurchase):
		return PresetProductFocused, fmt.Sprintf("%s present", IntentPurchase)
	case has(IntentSupport) || has(IntentComplain):
		return PresetSupportFocused, "support or complaint present"
	case has(IntentInquiry):
		return PresetFull, fmt.Sprintf("%s present", IntentInquiry)
	default:
		return PresetFull, "no known default intent"
	}
}
