package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the context of a conversation and the user's long-term memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			userID, _ := cmd.Flags().GetString("user")
			convID, _ := cmd.Flags().GetString("conversation")
			cc, err := s.rt.Assistant.ConversationContext(commandContext(cmd), userID, convID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cc)
		},
	}
	cmd.Flags().StringP("user", "u", "cli-user", "user id")
	cmd.Flags().String("conversation", "", "conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or clear stored memory",
	}
	cmd.AddCommand(newMemoryShowCmd(), newMemoryClearCmd(), newMemorySearchCmd())
	return cmd
}

func newMemoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a user's long-term memory and derived preferences",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			userID, _ := cmd.Flags().GetString("user")
			lm, err := s.rt.Assistant.LongTerm(commandContext(cmd), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"memory":      lm,
				"preferences": lm.CustomerPreferences(),
			})
		},
	}
	cmd.Flags().StringP("user", "u", "cli-user", "user id")
	return cmd
}

func newMemoryClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a conversation session and the user's long-term memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			userID, _ := cmd.Flags().GetString("user")
			convID, _ := cmd.Flags().GetString("conversation")
			if err := s.rt.Assistant.Cleanup(commandContext(cmd), userID, convID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared conversation %s and memory of %s\n", convID, userID)
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "cli-user", "user id")
	cmd.Flags().String("conversation", "", "conversation id")
	_ = cmd.MarkFlagRequired("conversation")
	return cmd
}

func newMemorySearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the analysis index by intent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.rt.Index == nil {
				return errors.New("analysis index is disabled (memory.analysis_index.enabled)")
			}
			intent, _ := cmd.Flags().GetString("intent")
			size, _ := cmd.Flags().GetInt("size")
			hits, err := s.rt.Index.SearchByIntent(commandContext(cmd), intent, size)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), hits)
		},
	}
	cmd.Flags().String("intent", "", "intent name, e.g. purchase_intent")
	cmd.Flags().Int("size", 20, "maximum number of hits")
	_ = cmd.MarkFlagRequired("intent")
	return cmd
}
