package generateresponse

import (
	"fmt"
	"strings"

	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
)

const corePrompt = `<core_behavior>
You are a friendly Thai-speaking sales assistant for a computer and electronics store.
Answer in the customer's language. Be concise, warm and accurate.
Never invent product names, prices or stock levels.
</core_behavior>`

const interactionPrompt = `<interaction_guidelines>
- Match the customer's tone and formality.
- Ask at most one or two short questions to learn budget and main use.
- Recommend one or two options with a short rationale.
- Offer alternatives when nothing matches exactly.
</interaction_guidelines>`

const productPrompt = `<product_details>
- Describe products with a compact spec list: CPU / RAM / SSD / Display / Weight.
- Format prices as 12,990 บาท.
- Say clearly when information is not available.
</product_details>`

const businessPrompt = `<business_context>
- Payment: cash, credit card, bank transfer.
- Services: warranty, returns, delivery.
- Mention promotions only when confirmed.
- Hand complex technical or account issues to a specialist.
</business_context>`

const sessionPriorityPrompt = `<session_priority>
Focus on the current conversation. Use background history only as reference.
</session_priority>`

// BuildSystemPrompt assembles the blocks enabled in sel. History is rendered
// only when the user_history block is on and there is something to show.
func BuildSystemPrompt(sel routing.ContextSelection, history []nlu.AnalysisDocument, summary string) string {
	parts := make([]string, 0, 6)

	if sel.CoreBehavior {
		parts = append(parts, corePrompt)
	}
	if sel.BusinessPolicies {
		parts = append(parts, businessPrompt)
	}
	if sel.InteractionGuidelines {
		parts = append(parts, interactionPrompt)
	}
	if sel.ProductDetails {
		parts = append(parts, productPrompt)
	}
	if sel.UserHistory && (len(history) > 0 || summary != "") {
		parts = append(parts, historyBlock(history, summary))
	}
	parts = append(parts, sessionPriorityPrompt)

	return strings.Join(parts, "\n\n")
}

func historyBlock(history []nlu.AnalysisDocument, summary string) string {
	var b strings.Builder
	b.WriteString("<long_term_memory>\nBackground user history (reference only):\n")
	for i := range history {
		doc := &history[i]
		fmt.Fprintf(&b, "- User said: %s\n", doc.Content)
		if name := doc.PrimaryIntentName(); name != "" {
			fmt.Fprintf(&b, "  (Intent: %s)\n", name)
		}
		if len(doc.Entities) > 0 {
			values := make([]string, len(doc.Entities))
			for j, e := range doc.Entities {
				values[j] = e.Value
			}
			fmt.Fprintf(&b, "  (Mentioned: %s)\n", strings.Join(values, ", "))
		}
	}
	if summary != "" {
		fmt.Fprintf(&b, "\nUser summary: %s\n", summary)
	}
	b.WriteString("</long_term_memory>")
	return b.String()
}
