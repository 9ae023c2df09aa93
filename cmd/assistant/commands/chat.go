package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"nlu-memory-assistant/internal/assistant"
)

const (
	cmdQuit  = "/quit"
	cmdStats = "/stats"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: `Sends one message, or starts an interactive session without arguments.

In interactive mode:
  /stats  show parser statistics and the conversation context
  /quit   leave`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("user", "u", "cli-user", "user id")
	cmd.Flags().String("conversation", "", "conversation id (default: a new one)")
	cmd.Flags().Bool("verbose", false, "print analysis and routing details after each answer")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	userID, _ := cmd.Flags().GetString("user")
	convID, _ := cmd.Flags().GetString("conversation")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if convID == "" {
		convID = assistant.NewConversationID()
	}

	c := &chat{
		rt:      s.rt,
		userID:  userID,
		convID:  convID,
		verbose: verbose,
		out:     cmd.OutOrStdout(),
	}
	ctx := commandContext(cmd)

	if len(args) > 0 {
		return c.turn(ctx, args[0])
	}

	fmt.Fprintf(c.out, "conversation %s (type %s to leave, %s for statistics)\n", convID, cmdQuit, cmdStats)
	return c.loop(ctx, cmd.InOrStdin())
}

type chat struct {
	rt      *assistant.Runtime
	userID  string
	convID  string
	verbose bool
	out     io.Writer
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdStats:
			if err := c.stats(ctx); err != nil {
				fmt.Fprintf(c.out, "stats unavailable: %v\n", err)
			}
			continue
		}

		if err := c.turn(ctx, line); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *chat) turn(ctx context.Context, text string) error {
	res, err := c.rt.Assistant.ProcessMessage(ctx, c.userID, c.convID, text)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, res.Response)
	if c.verbose {
		fmt.Fprintf(c.out, "  intent=%s importance=%.2f persisted=%t preset=%s tokens=%d/%d strategy=%s\n",
			res.Analysis.PrimaryIntentName(), res.Importance, res.Persisted, res.Route.Preset,
			res.Route.EstimatedTokens, res.Route.FullTokens, res.Analysis.ParsingMetadata.StrategyUsed)
		if res.Escalation != nil {
			fmt.Fprintf(c.out, "  escalation=%s\n", res.Escalation.Status)
		}
	}
	return nil
}

func (c *chat) stats(ctx context.Context) error {
	cc, err := c.rt.Assistant.ConversationContext(ctx, c.userID, c.convID)
	if err != nil {
		return err
	}
	return writeJSON(c.out, map[string]interface{}{
		"parser":  c.rt.Parser.Stats(),
		"context": cc,
	})
}
