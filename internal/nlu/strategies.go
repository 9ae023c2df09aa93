package nlu

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	StrategyNone       = "none"
	StrategyStructured = "structured"
	StrategyRegex      = "regex_fallback"
	StrategyQuickRegex = "quick_regex"
	StrategyLineScan   = "line_scan"
	StrategyKeyword    = "keyword_fallback"
)

// Default confidences for values the line scan cannot read.
const (
	lineEntityConfidence    = 0.8
	lineLanguageConfidence  = 0.9
	lineSentimentConfidence = 0.7
	keywordConfidence       = 0.7
	generalIntentConfidence = 0.5
	GeneralIntent           = "general_intent"
)

type parseInput struct {
	raw     string
	cleaned string
}

// partial is what one strategy recovered.
type partial struct {
	intents   []Intent
	entities  []Entity
	languages []Language
	sentiment *Sentiment

	spans     int
	parsed    int
	delimited bool
	errors    []string
}

func (pr *partial) records() int {
	n := len(pr.intents) + len(pr.entities) + len(pr.languages)
	if pr.sentiment != nil {
		n++
	}
	return n
}

// add converts rec and appends it. A later sentiment replaces an earlier one.
func (pr *partial) add(rec Record, weights map[string]float64) error {
	switch rec.Kind {
	case KindIntent:
		in, err := rec.Intent(weights)
		if err != nil {
			return err
		}
		pr.intents = append(pr.intents, in)
	case KindEntity:
		e, err := rec.Entity()
		if err != nil {
			return err
		}
		pr.entities = append(pr.entities, e)
	case KindLanguage:
		l, err := rec.Language()
		if err != nil {
			return err
		}
		pr.languages = append(pr.languages, l)
	case KindSentiment:
		s, err := rec.Sentiment()
		if err != nil {
			return err
		}
		pr.sentiment = &s
	default:
		return ErrUnknownRecordKind
	}
	return nil
}

func (pr *partial) merge(other *partial) {
	pr.intents = append(pr.intents, other.intents...)
	pr.entities = append(pr.entities, other.entities...)
	pr.languages = append(pr.languages, other.languages...)
	if other.sentiment != nil {
		pr.sentiment = other.sentiment
	}
}

// strategy is one step of the fallback cascade.
type strategy struct {
	name   string
	status ParsingStatus
	parse  func(in parseInput) (*partial, error)
	accept func(pr *partial) bool
}

func acceptMajority(pr *partial) bool {
	return pr.parsed > 0 && pr.spans > 0 && float64(pr.parsed)/float64(pr.spans) >= 0.5
}

func acceptAny(pr *partial) bool {
	return pr.records() > 0
}

func acceptAlways(*partial) bool {
	return true
}

// ==========================
// Structured
// ==========================

var parenSpan = regexp.MustCompile(`\([^()]*\)`)

func (p *Parser) parseStructured(in parseInput) (*partial, error) {
	if p.opts.Delimiters.Tuple == "" {
		return nil, ErrInvalidDelimiter
	}

	pr := &partial{}
	fragments, delimited := p.splitRecords(in.cleaned)
	pr.delimited = delimited

	for _, frag := range fragments {
		pr.spans++
		rec, err := ParseRecord(frag, p.opts.Delimiters.Tuple)
		if err == nil {
			err = pr.add(rec, p.opts.IntentWeights)
		}
		if err != nil {
			pr.errors = append(pr.errors, err.Error())
			continue
		}
		pr.parsed++
	}
	return pr, nil
}

// splitRecords splits on the record delimiter, else on (...) spans, else
// returns the whole text as a single record.
func (p *Parser) splitRecords(text string) ([]string, bool) {
	if d := p.opts.Delimiters.Record; d != "" && strings.Contains(text, d) {
		var out []string
		for _, part := range strings.Split(text, d) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, true
	}
	if spans := parenSpan.FindAllString(text, -1); len(spans) > 0 {
		return spans, true
	}
	return []string{text}, false
}

// ==========================
// Regex fallback
// ==========================

type regexSet struct {
	intent      *regexp.Regexp
	intentNamed *regexp.Regexp
	entity      *regexp.Regexp
	language    *regexp.Regexp
	sentiment   *regexp.Regexp
	quick       *regexp.Regexp
}

const number = `(-?\d+(?:\.\d+)?)`

func newRegexSet(tuple string) regexSet {
	alt := ""
	if tuple != "" {
		alt = "|" + regexp.QuoteMeta(tuple)
	}
	sep := `(?:\s|[|,;:=]` + alt + `)+`

	return regexSet{
		intent:      regexp.MustCompile(`(?i)\bintent` + sep + `([a-z][a-z0-9_]*)` + sep + number),
		intentNamed: regexp.MustCompile(`(?i)\b([a-z]+(?:_[a-z]+)*_intent|greet)\b[^0-9]{0,20}?` + number),
		entity:      regexp.MustCompile(`(?i)\bentity` + sep + `([a-z_]+)` + sep + `([^\s|,;:()<>]+)` + sep + number),
		language:    regexp.MustCompile(`(?i)\blanguage` + sep + `([a-z]{2,4})` + sep + number + `(?:` + sep + `(1(?:\.0)?|0(?:\.0)?|true|false)\b)?`),
		sentiment:   regexp.MustCompile(`(?i)\bsentiment` + sep + `(positive|negative|neutral)` + sep + number),
		quick:       regexp.MustCompile(`(?i)intent[:\s]*([a-zA-Z_]+)[,\s]*confidence[:\s]*([0-9.]+)`),
	}
}

func (p *Parser) parseRegex(in parseInput) (*partial, error) {
	pr := &partial{}
	text := in.cleaned

	for _, m := range p.regex.intent.FindAllStringSubmatch(text, -1) {
		p.addQuiet(pr, KindIntent, m[1], m[2])
	}
	if len(pr.intents) == 0 {
		for _, m := range p.regex.intentNamed.FindAllStringSubmatch(text, -1) {
			p.addQuiet(pr, KindIntent, strings.ToLower(m[1]), m[2])
		}
	}
	for _, m := range p.regex.entity.FindAllStringSubmatch(text, -1) {
		p.addQuiet(pr, KindEntity, m[1], m[2], m[3])
	}
	for _, m := range p.regex.language.FindAllStringSubmatch(text, -1) {
		p.addQuiet(pr, KindLanguage, m[1], m[2], m[3])
	}
	for _, m := range p.regex.sentiment.FindAllStringSubmatch(text, -1) {
		p.addQuiet(pr, KindSentiment, m[1], m[2])
	}
	return pr, nil
}

// parseQuick is the time-boxed path: the single intent/confidence pattern
// plus the regex fallback.
func (p *Parser) parseQuick(in parseInput) *partial {
	pr := &partial{}
	for _, m := range p.regex.quick.FindAllStringSubmatch(in.cleaned, -1) {
		p.addQuiet(pr, KindIntent, m[1], m[2])
	}
	if rx, err := p.parseRegex(in); err == nil {
		pr.merge(rx)
	}
	return pr
}

func (p *Parser) addQuiet(pr *partial, kind RecordKind, fields ...string) {
	_ = pr.add(Record{Kind: kind, Fields: fields}, p.opts.IntentWeights)
}

// ==========================
// Line scan
// ==========================

var (
	lineIntentHint   = regexp.MustCompile(`(?i)\b(purchase|ask|cancel|greet)\w*`)
	lineNamedIntent  = regexp.MustCompile(`(?i)\b([a-z]+(?:_[a-z]+)*_intent)\b`)
	lineNumber       = regexp.MustCompile(`\d+(?:\.\d+)?`)
	lineThaiRun      = regexp.MustCompile(`[\x{0E00}-\x{0E7F}]+`)
	lineLanguageCode = regexp.MustCompile(`(?i)\b(THA|USA|ENG)\b`)
	lineSentiment    = regexp.MustCompile(`(?i)\b(positive|negative|neutral)\b`)
	lineEntityHint   = regexp.MustCompile(`(?i)\b(product|brand|color)\b`)
)

func guessKind(line string) (RecordKind, bool) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "sentiment"):
		return KindSentiment, true
	case strings.Contains(lower, "language"):
		return KindLanguage, true
	case strings.Contains(lower, "entity"):
		return KindEntity, true
	case strings.Contains(lower, "intent"):
		return KindIntent, true
	case lineLanguageCode.MatchString(line):
		return KindLanguage, true
	case lineIntentHint.MatchString(line):
		return KindIntent, true
	case lineEntityHint.MatchString(line):
		return KindEntity, true
	case lineSentiment.MatchString(line):
		return KindSentiment, true
	}
	return "", false
}

func firstNumber(line string, fallback float64) string {
	if n := lineNumber.FindString(line); n != "" {
		return n
	}
	return strconv.FormatFloat(fallback, 'f', -1, 64)
}

func (p *Parser) parseLines(in parseInput) (*partial, error) {
	pr := &partial{}
	for _, line := range strings.Split(in.raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kind, ok := guessKind(line)
		if !ok {
			continue
		}

		switch kind {
		case KindIntent:
			name := ""
			if m := lineNamedIntent.FindStringSubmatch(line); m != nil {
				name = strings.ToLower(m[1])
			} else if m := lineIntentHint.FindStringSubmatch(line); m != nil {
				name = strings.ToLower(m[1])
				if name != "greet" {
					name += "_intent"
				}
			}
			conf := lineNumber.FindString(line)
			if name == "" || conf == "" {
				continue
			}
			p.addQuiet(pr, KindIntent, name, conf)

		case KindEntity:
			value := lineThaiRun.FindString(line)
			if value == "" {
				continue
			}
			typ := "product"
			if m := lineEntityHint.FindStringSubmatch(line); m != nil {
				typ = strings.ToLower(m[1])
			}
			p.addQuiet(pr, KindEntity, typ, value, firstNumber(line, lineEntityConfidence))

		case KindLanguage:
			m := lineLanguageCode.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			code := strings.ToUpper(m[1])
			primary := "0"
			if code == "THA" || strings.Contains(strings.ToLower(line), "primary") {
				primary = "1"
			}
			p.addQuiet(pr, KindLanguage, code, firstNumber(line, lineLanguageConfidence), primary)

		case KindSentiment:
			m := lineSentiment.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			p.addQuiet(pr, KindSentiment, m[1], firstNumber(line, lineSentimentConfidence))
		}
	}
	return pr, nil
}

// ==========================
// Keyword fallback
// ==========================

type keywordFamily struct {
	intent string
	thai   []string
	// particles match only where they end a token, so "คะ" does not fire
	// inside "คะแนน".
	particles []string
	latin     *regexp.Regexp
}

var keywordFamilies = []keywordFamily{
	{intent: "greet", thai: []string{"สวัสดี"}, particles: []string{"ครับ", "คะ"}, latin: regexp.MustCompile(`(?i)\b(hello|hi)\b`)},
	{intent: "purchase_intent", thai: []string{"ซื้อ", "ขาย", "ราคา"}, latin: regexp.MustCompile(`(?i)\b(buy|price)\b`)},
	{intent: "inquiry_intent", thai: []string{"อยาก", "สอบถาม", "ถาม"}, latin: regexp.MustCompile(`(?i)\b(want|ask)\b`)},
	{intent: "support_intent", thai: []string{"ช่วย", "แก้", "ปัญหา"}, latin: regexp.MustCompile(`(?i)\b(help|problem)\b`)},
	{intent: "complain_intent", thai: []string{"แย่", "ไม่ดี", "บ่น"}, latin: regexp.MustCompile(`(?i)\b(bad|complain)\b`)},
}

func (f keywordFamily) match(text string) (string, bool) {
	for _, kw := range f.thai {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	for _, kw := range f.particles {
		if endsToken(text, kw) {
			return kw, true
		}
	}
	if m := f.latin.FindString(text); m != "" {
		return strings.ToLower(m), true
	}
	return "", false
}

// endsToken reports whether kw occurs followed by the end of text, a space
// or punctuation.
func endsToken(text, kw string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		end := i + j + len(kw)
		if end == len(text) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			return true
		}
		i = end
	}
}

func (p *Parser) parseKeywords(in parseInput) (*partial, error) {
	return p.keywordPartial(in.cleaned), nil
}

func (p *Parser) keywordPartial(text string) *partial {
	pr := &partial{}
	for _, f := range keywordFamilies {
		kw, ok := f.match(text)
		if !ok {
			continue
		}
		pr.intents = append(pr.intents, Intent{
			Name:          f.intent,
			Confidence:    keywordConfidence,
			PriorityScore: p.opts.IntentWeights[f.intent],
			Metadata:      map[string]interface{}{"source": StrategyKeyword, "keyword": kw},
		})
	}
	if len(pr.intents) == 0 {
		pr.intents = append(pr.intents, Intent{
			Name:          GeneralIntent,
			Confidence:    generalIntentConfidence,
			PriorityScore: p.opts.IntentWeights[GeneralIntent],
			Metadata:      map[string]interface{}{"source": StrategyKeyword},
		})
	}
	if lang, ok := DetectLanguage(text); ok {
		pr.languages = append(pr.languages, lang)
	}
	return pr
}
