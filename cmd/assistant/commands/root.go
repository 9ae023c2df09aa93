// Package commands implements the assistant CLI.
package commands

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assistant",
		Short: "Conversational assistant with NLU analysis and layered memory",
		Long: `Runs conversation turns through session memory, NLU analysis,
importance scoring, context routing and response generation.

Examples:
  assistant chat --user u1
  assistant chat --user u1 "งบ 40000 เอาไว้เล่นเกมครับ"
  assistant analyze --message "สวัสดีครับ" "(intent<||>greet<||>0.9<||>0.3)"
  assistant route "(intent<||>purchase_intent<||>0.9)"
  assistant memory show --user u1`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newAnalyzeCmd(),
		newRouteCmd(),
		newStatsCmd(),
		newMemoryCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a config.yaml (default: search ./configs)")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return rootCmd
}
