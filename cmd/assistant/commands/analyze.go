package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nlu-memory-assistant/internal/assistant"
	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/nlu"
	"nlu-memory-assistant/internal/routing"
	"nlu-memory-assistant/internal/scoring"
)

type analysisReport struct {
	Analysis     *nlu.AnalysisDocument `json:"analysis"`
	Importance   float64               `json:"importance"`
	Policy       string                `json:"policy"`
	Threshold    float64               `json:"threshold"`
	WouldPersist bool                  `json:"would_persist"`
	Insights     nlu.Insights          `json:"insights"`
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [raw-nlu-output]",
		Short: "Parse and score raw NLU output without calling a model",
		Long: `Parses delimited NLU output (argument, or stdin when "-" or omitted)
and prints the analysis document, its importance score and business insights.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyze,
	}
	cmd.Flags().StringP("message", "m", "", "original user message the output belongs to")
	cmd.Flags().String("policy", "", "scoring policy override: keyword_boost or length_penalty")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	raw, err := rawInput(cmd, args)
	if err != nil {
		return err
	}
	message, _ := cmd.Flags().GetString("message")
	policy, _ := cmd.Flags().GetString("policy")

	return writeJSON(cmd.OutOrStdout(), analyze(cfg, raw, message, policy))
}

func analyze(cfg *config.Config, raw, message, policy string) analysisReport {
	doc := assistant.NewParser(cfg).Parse(raw, message)

	scfg := scoring.FromConfig(cfg.NLU.Scoring)
	if policy != "" {
		scfg.Policy = policy
	}
	score := scoring.Score(doc, message, scfg)

	return analysisReport{
		Analysis:     doc,
		Importance:   score,
		Policy:       scfg.Policy,
		Threshold:    cfg.NLU.ImportanceThreshold,
		WouldPersist: scoring.ShouldPersist(score, cfg.NLU.ImportanceThreshold),
		Insights:     nlu.BusinessInsights(doc),
	}
}

func newRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route [raw-nlu-output]",
		Short: "Show which prompt context blocks a parsed analysis selects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			raw, err := rawInput(cmd, args)
			if err != nil {
				return err
			}
			doc := assistant.NewParser(cfg).Parse(raw, "")
			decision := routing.NewRouter(routing.TokenCostsFromConfig(cfg.Routing)).Route(doc, cfg.NLU.DefaultIntent)
			return writeJSON(cmd.OutOrStdout(), decision)
		},
	}
}

func rawInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	in := cmd.InOrStdin()
	if in == os.Stdin {
		if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no NLU output given: pass it as an argument or on stdin")
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
