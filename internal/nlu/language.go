package nlu

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

const minDetectionConfidence = 0.5

// DetectLanguage guesses the language of text and returns it as a primary
// Language record with an upper-case ISO 639-3 code.
func DetectLanguage(text string) (Language, bool) {
	if strings.TrimSpace(text) == "" {
		return Language{}, false
	}

	info := whatlanggo.Detect(text)
	if info.Confidence < minDetectionConfidence {
		return Language{}, false
	}

	code := strings.ToUpper(info.Lang.Iso6393())
	if !threeLetter.MatchString(code) {
		return Language{}, false
	}

	return Language{
		Code:       code,
		Confidence: clamp01(info.Confidence),
		IsPrimary:  true,
		Metadata: map[string]interface{}{
			"detected_by": "whatlanggo",
			"script":      whatlanggo.Scripts[info.Script],
		},
	}, true
}
