package nlu

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"nlu-memory-assistant/internal/common/metrics"
)

const (
	DefaultTupleDelimiter      = "<||>"
	DefaultRecordDelimiter     = "##"
	DefaultCompletionDelimiter = "<|COMPLETE|>"
	DefaultMinInputLength      = 10
	DefaultParseBudget         = 500 * time.Millisecond

	rawOutputLimit = 500
)

// DelimiterConfig holds the tuple, record and completion markers used by the
// NLU prompt.
type DelimiterConfig struct {
	Tuple      string
	Record     string
	Completion string
}

// DefaultDelimiters returns the markers the NLU prompt is written with.
func DefaultDelimiters() DelimiterConfig {
	return DelimiterConfig{
		Tuple:      DefaultTupleDelimiter,
		Record:     DefaultRecordDelimiter,
		Completion: DefaultCompletionDelimiter,
	}
}

type Options struct {
	Delimiters     DelimiterConfig
	IntentWeights  map[string]float64
	MinInputLength int
	Budget         time.Duration
}

// Parser resolves raw NLU output through the strategy cascade. It is safe for
// concurrent use; only the statistics are shared.
type Parser struct {
	opts       Options
	regex      regexSet
	strategies []strategy
	stats      *Stats
	now        func() time.Time
}

func NewParser(opts Options) *Parser {
	if opts.MinInputLength <= 0 {
		opts.MinInputLength = DefaultMinInputLength
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultParseBudget
	}
	if opts.IntentWeights == nil {
		opts.IntentWeights = map[string]float64{}
	}

	p := &Parser{
		opts:  opts,
		regex: newRegexSet(opts.Delimiters.Tuple),
		stats: NewStats(),
		now:   time.Now,
	}
	p.strategies = []strategy{
		{name: StrategyStructured, status: StatusSuccess, parse: p.parseStructured, accept: acceptMajority},
		{name: StrategyRegex, status: StatusPartialSuccess, parse: p.parseRegex, accept: acceptAny},
		{name: StrategyLineScan, status: StatusPartialSuccess, parse: p.parseLines, accept: acceptAny},
		{name: StrategyKeyword, status: StatusPartialSuccess, parse: p.parseKeywords, accept: acceptAlways},
	}
	return p
}

// ParseNLU parses raw output with the given delimiters and default options.
func ParseNLU(raw string, cfg DelimiterConfig) *AnalysisDocument {
	return NewParser(Options{Delimiters: cfg}).Parse(raw, "")
}

// Stats returns a snapshot of the parse statistics.
func (p *Parser) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	leadingLabel  = regexp.MustCompile(`(?i)^(output|result)\s*:\s*`)
)

func (p *Parser) clean(raw string) string {
	s := raw
	if c := p.opts.Delimiters.Completion; c != "" {
		s = strings.ReplaceAll(s, c, "")
	}
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	s = leadingLabel.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse converts raw model output about the message content into an
// AnalysisDocument. Malformed input never produces an error; the outcome is
// reported in ParsingMetadata.
func (p *Parser) Parse(raw, content string) (doc *AnalysisDocument) {
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			doc = p.formatError(raw, content, start, fmt.Errorf("recovered panic: %v", r))
		}
		p.observe(doc)
	}()

	in := parseInput{raw: raw, cleaned: p.clean(raw)}
	doc = &AnalysisDocument{Content: content, Timestamp: start.UTC()}
	meta := &doc.ParsingMetadata

	if in.cleaned == "" {
		meta.Status = StatusInputTooShort
		meta.StrategyUsed = StrategyNone
		meta.Warnings = append(meta.Warnings, "empty input")
		return p.finish(doc, start)
	}

	if utf8.RuneCountInString(in.cleaned) < p.opts.MinInputLength {
		apply(doc, p.keywordPartial(in.cleaned))
		meta.Status = StatusInputTooShort
		meta.StrategyUsed = StrategyKeyword
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("input shorter than %d characters", p.opts.MinInputLength))
		return p.finish(doc, start)
	}

	var structured *partial
	for i, s := range p.strategies {
		began := p.now()
		pr, err := s.parse(in)
		if err != nil {
			return p.formatError(raw, content, start, err)
		}
		meta.ValidationErrors = append(meta.ValidationErrors, pr.errors...)
		if i == 0 {
			structured = pr
		}

		if s.accept(pr) {
			apply(doc, pr)
			meta.Status = s.status
			meta.StrategyUsed = s.name
			break
		}

		if i == 0 && p.now().Sub(began) > p.opts.Budget {
			meta.Warnings = append(meta.Warnings, fmt.Sprintf("structured parse exceeded %s budget", p.opts.Budget))
			if quick := p.parseQuick(in); quick.records() > 0 {
				apply(doc, quick)
				meta.StrategyUsed = StrategyQuickRegex
			} else {
				apply(doc, p.keywordPartial(in.cleaned))
				meta.StrategyUsed = StrategyKeyword
			}
			meta.Status = StatusPartialSuccess
			break
		}
	}

	if meta.StrategyUsed == StrategyKeyword && structured != nil && structured.delimited && structured.parsed == 0 {
		meta.Status = StatusParseError
		meta.Error = "no record could be parsed"
	}

	return p.finish(doc, start)
}

// KeywordAnalysis builds a document from the message text alone. It is used
// when the NLU model call itself failed.
func (p *Parser) KeywordAnalysis(content, reason string) *AnalysisDocument {
	start := p.now()
	doc := &AnalysisDocument{Content: content, Timestamp: start.UTC()}
	apply(doc, p.keywordPartial(strings.TrimSpace(content)))
	doc.ParsingMetadata.Status = StatusPartialSuccess
	doc.ParsingMetadata.StrategyUsed = StrategyKeyword
	if reason != "" {
		doc.ParsingMetadata.Warnings = []string{reason}
	}
	p.finish(doc, start)
	p.observe(doc)
	return doc
}

func (p *Parser) formatError(raw, content string, start time.Time, err error) *AnalysisDocument {
	doc := &AnalysisDocument{Content: content, Timestamp: start.UTC()}
	doc.ParsingMetadata = ParsingMetadata{
		Status:       StatusFormatError,
		StrategyUsed: StrategyNone,
		Error:        err.Error(),
		RawOutput:    truncateRunes(raw, rawOutputLimit),
	}
	if errors.Is(err, ErrInvalidDelimiter) {
		doc.ParsingMetadata.Warnings = []string{"tuple delimiter is not configured"}
	}
	return p.finish(doc, start)
}

func (p *Parser) finish(doc *AnalysisDocument, start time.Time) *AnalysisDocument {
	doc.finalize()
	doc.ParsingMetadata.DurationMs = float64(p.now().Sub(start).Microseconds()) / 1000
	return doc
}

func (p *Parser) observe(doc *AnalysisDocument) {
	if doc == nil {
		return
	}
	meta := doc.ParsingMetadata
	p.stats.record(meta)
	metrics.NLUParseTotal.WithLabelValues(meta.StrategyUsed, string(meta.Status)).Inc()
	metrics.NLUParseDuration.Observe(meta.DurationMs / 1000)
}

func apply(doc *AnalysisDocument, pr *partial) {
	doc.Intents = append(doc.Intents, pr.intents...)
	doc.Entities = append(doc.Entities, pr.entities...)
	doc.Languages = append(doc.Languages, pr.languages...)
	if pr.sentiment != nil {
		s := *pr.sentiment
		doc.Sentiment = &s
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
