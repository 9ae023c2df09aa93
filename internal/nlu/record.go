package nlu

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrInvalidDelimiter  = errors.New("INVALID_DELIMITER")
	ErrEmptyRecord       = errors.New("EMPTY_RECORD")
	ErrUnknownRecordKind = errors.New("UNKNOWN_RECORD_KIND")
	ErrRecordTooShort    = errors.New("RECORD_TOO_SHORT")
	ErrInvalidField      = errors.New("INVALID_FIELD")
)

type RecordKind string

const (
	KindIntent    RecordKind = "intent"
	KindEntity    RecordKind = "entity"
	KindLanguage  RecordKind = "language"
	KindSentiment RecordKind = "sentiment"
)

// minFields is the number of mandatory fields after the kind.
var minFields = map[RecordKind]int{
	KindIntent:    2,
	KindEntity:    3,
	KindLanguage:  3,
	KindSentiment: 2,
}

var (
	parenBody   = regexp.MustCompile(`\(([^)]+)\)`)
	bracketBody = regexp.MustCompile(`\[([^\]]+)\]`)
	bareKey     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	threeLetter = regexp.MustCompile(`^[A-Z]{3}$`)
)

var fallbackDelimiters = []string{"|", ",", ";", "\t"}

// Record is one delimited tuple: a kind and its ordered fields.
type Record struct {
	Kind   RecordKind
	Fields []string
}

// ParseRecord extracts the kind and fields of one fragment shaped like
// (<kind><D><f1><D>...<fN>). Parentheses are optional and square brackets
// are accepted too.
func ParseRecord(fragment, delimiter string) (Record, error) {
	if delimiter == "" {
		return Record{}, ErrInvalidDelimiter
	}

	body := strings.TrimSpace(fragment)
	if m := parenBody.FindStringSubmatch(body); m != nil {
		body = m[1]
	} else if strings.HasPrefix(body, "[") {
		if m := bracketBody.FindStringSubmatch(body); m != nil {
			body = m[1]
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Record{}, ErrEmptyRecord
	}

	// Empty fields are dropped wherever they appear, so a blank mandatory
	// field makes the record too short instead of shifting into a default.
	var parts []string
	for _, part := range splitFields(body, delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return Record{}, ErrEmptyRecord
	}

	kind := RecordKind(strings.ToLower(strings.Trim(parts[0], `"' `)))
	required, ok := minFields[kind]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownRecordKind, parts[0])
	}

	fields := parts[1:]
	if len(fields) < required {
		return Record{}, fmt.Errorf("%w: %s needs %d fields, got %d", ErrRecordTooShort, kind, required, len(fields))
	}

	return Record{Kind: kind, Fields: fields}, nil
}

func splitFields(body, delimiter string) []string {
	if strings.Contains(body, delimiter) {
		return strings.Split(body, delimiter)
	}
	for _, d := range fallbackDelimiters {
		if strings.Contains(body, d) {
			return strings.Split(body, d)
		}
	}
	return strings.Fields(body)
}

func (r Record) field(i int) string {
	if i < len(r.Fields) {
		return r.Fields[i]
	}
	return ""
}

// Intent converts an intent record. weights supplies the priority score when
// the record omits it.
func (r Record) Intent(weights map[string]float64) (Intent, error) {
	name := strings.Trim(r.field(0), `"' `)
	if name == "" {
		return Intent{}, fmt.Errorf("%w: intent name is empty", ErrInvalidField)
	}

	in := Intent{
		Name:          name,
		Confidence:    parseConfidence(r.field(1)),
		PriorityScore: weights[name],
	}

	// The third field is either a priority score or, when omitted, metadata.
	rest := r.Fields[2:]
	if len(rest) > 0 {
		if p, ok := parseFloat(rest[0]); ok {
			in.PriorityScore = clamp01(p)
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		in.Metadata = parseMetadata(strings.Join(rest, " "))
	}
	return in, nil
}

func (r Record) Entity() (Entity, error) {
	typ, value := r.field(0), r.field(1)
	if typ == "" || value == "" {
		return Entity{}, fmt.Errorf("%w: entity type and value are required", ErrInvalidField)
	}
	e := Entity{
		Type:       strings.ToLower(typ),
		Value:      value,
		Confidence: parseConfidence(r.field(2)),
	}
	if len(r.Fields) > 3 {
		e.Metadata = parseMetadata(strings.Join(r.Fields[3:], " "))
	}
	return e, nil
}

func (r Record) Language() (Language, error) {
	code := strings.ToUpper(r.field(0))
	if !threeLetter.MatchString(code) {
		return Language{}, fmt.Errorf("%w: language code %q is not 3 letters", ErrInvalidField, r.field(0))
	}
	l := Language{
		Code:       code,
		Confidence: parseConfidence(r.field(1)),
		IsPrimary:  parsePrimaryFlag(r.field(2)),
	}
	if len(r.Fields) > 3 {
		l.Metadata = parseMetadata(strings.Join(r.Fields[3:], " "))
	}
	return l, nil
}

func (r Record) Sentiment() (Sentiment, error) {
	label := strings.ToLower(r.field(0))
	switch label {
	case "positive", "negative", "neutral":
	default:
		return Sentiment{}, fmt.Errorf("%w: sentiment label %q", ErrInvalidField, r.field(0))
	}
	s := Sentiment{
		Label:      label,
		Confidence: parseConfidence(r.field(1)),
	}
	if len(r.Fields) > 2 {
		s.Metadata = parseMetadata(strings.Join(r.Fields[2:], " "))
	}
	return s, nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// parseConfidence clamps into [0,1]; unparsable values become 0.
func parseConfidence(s string) float64 {
	v, _ := parseFloat(s)
	return clamp01(v)
}

func parsePrimaryFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true":
		return true
	}
	return false
}

// parseMetadata decodes a JSON object, repairing missing braces and bare
// keys. Anything still invalid is kept under "raw".
func parseMetadata(s string) map[string]interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out
	}

	repaired := s
	if !strings.HasPrefix(repaired, "{") {
		repaired = "{" + repaired
	}
	if !strings.HasSuffix(repaired, "}") {
		repaired += "}"
	}
	repaired = bareKey.ReplaceAllString(repaired, `$1"$2":`)
	repaired = strings.ReplaceAll(repaired, "'", `"`)

	out = nil
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return out
	}
	return map[string]interface{}{"raw": s}
}
