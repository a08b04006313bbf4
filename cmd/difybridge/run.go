package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spetersoncode/difybridge/agui"
	"github.com/spetersoncode/difybridge/config"
	"github.com/spetersoncode/difybridge/server"
)

// errRunFailed is returned when the run ended with RUN_ERROR.
var errRunFailed = errors.New("run ended with RUN_ERROR")

var (
	runAgentID  string
	runQuery    string
	runUser     string
	runThread   string
	runBlocking bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one query and print the AG-UI events as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		id := runAgentID
		if id == "" {
			if len(cfg.Agents) != 1 {
				return fmt.Errorf("--agent is required when %d agents are configured", len(cfg.Agents))
			}
			id = cfg.Agents[0].ID
		}

		logger := newLogger(cfg.Server)
		agents, err := newAgents(cfg, logger)
		if err != nil {
			return err
		}
		a, ok := agents[id]
		if !ok {
			return fmt.Errorf("unknown agent %q", id)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runOnce(ctx, a, newRunInput(runThread, runQuery, runUser, runBlocking), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runAgentID, "agent", "a", "", "Agent id (optional with a single agent)")
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "User message")
	runCmd.Flags().StringVarP(&runUser, "user", "u", "", "Dify user identifier")
	runCmd.Flags().StringVarP(&runThread, "thread", "t", "", "Conversation id to continue")
	runCmd.Flags().BoolVar(&runBlocking, "blocking", false, "Use Dify's blocking response mode")
	runCmd.MarkFlagRequired("query")
	runCmd.MarkFlagRequired("user")
}

func newRunInput(threadID, query, user string, blocking bool) *agui.RunAgentInput {
	input := &agui.RunAgentInput{
		ThreadID: threadID,
		Messages: []events.Message{agui.NewUserMessage("", query)},
		ForwardedProps: agui.ForwardedProps{
			User: user,
		},
	}
	if blocking {
		input.ForwardedProps.ResponseMode = "blocking"
	}
	return input.FillIDs(uuid.NewString)
}

// runOnce streams one run to w, one JSON event per line.
func runOnce(ctx context.Context, r server.Runner, input *agui.RunAgentInput, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := false
	for ev := range r.Run(ctx, input) {
		data, err := ev.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize event: %w", err)
		}
		if _, err := fmt.Fprintln(w, string(data)); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		if ev.Type() == events.EventTypeRunError {
			failed = true
		}
	}
	if failed {
		return errRunFailed
	}
	return ctx.Err()
}
