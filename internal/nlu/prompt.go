package nlu

import "strings"

// PromptInput is the data substituted into the NLU prompt.
type PromptInput struct {
	Text             string
	DefaultIntent    string
	AdditionalIntent string
	DefaultEntity    string
	AdditionalEntity string
	Delimiters       DelimiterConfig
}

const promptTemplate = `-Goal-
Given a user utterance, extract the user's intents, entities, languages and sentiment.
Only use intents and entities from the declared default and additional lists.
Greetings such as สวัสดี, hello or hi are always classified as "greet".
Only extract entities that literally appear in the current message.

-Steps-
1. Up to 3 intents, highest confidence first:
(intent{T}<intent_name>{T}<confidence>{T}<priority_score>{T}<metadata_json>)
2. Every entity present in the message:
(entity{T}<entity_type>{T}<entity_value>{T}<confidence>{T}<metadata_json>)
3. Every language present as an ISO alpha-3 code, 1 for the primary language and 0 otherwise:
(language{T}<code>{T}<confidence>{T}<primary_flag>{T}<metadata_json>)
4. The sentiment:
(sentiment{T}<positive|negative|neutral>{T}<confidence>{T}<metadata_json>)
5. Separate records with {R}
6. Finish with {C}

-Example-
text: อยากซื้อรองเท้า Hello!
default_intent: purchase_intent:0.8
additional_intent: greet:0.3, cancel_order:0.4
default_entity: product
additional_entity: brand, color
Output:
(intent{T}purchase_intent{T}0.95{T}0.8{T}{"extracted_from": "default"}){R}(intent{T}greet{T}0.30{T}0.3{T}{"extracted_from": "additional"}){R}(entity{T}product{T}รองเท้า{T}0.97{T}{"language": "thai"}){R}(language{T}THA{T}0.85{T}1{T}{"script": "thai"}){R}(language{T}USA{T}0.95{T}0{T}{"script": "latin"}){R}(sentiment{T}positive{T}0.75{T}{"emotion": "desire"}){C}

-Real Data-
text: {text}
default_intent: {default_intent}
additional_intent: {additional_intent}
default_entity: {default_entity}
additional_entity: {additional_entity}
Output:
`

// BuildPrompt renders the NLU system prompt.
func BuildPrompt(in PromptInput) string {
	d := in.Delimiters
	if d.Tuple == "" {
		d.Tuple = DefaultTupleDelimiter
	}
	if d.Record == "" {
		d.Record = DefaultRecordDelimiter
	}
	if d.Completion == "" {
		d.Completion = DefaultCompletionDelimiter
	}

	r := strings.NewReplacer(
		"{T}", d.Tuple,
		"{R}", d.Record,
		"{C}", d.Completion,
		"{text}", in.Text,
		"{default_intent}", in.DefaultIntent,
		"{additional_intent}", in.AdditionalIntent,
		"{default_entity}", in.DefaultEntity,
		"{additional_entity}", in.AdditionalEntity,
	)
	return r.Replace(promptTemplate)
}
