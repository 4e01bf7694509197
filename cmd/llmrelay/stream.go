package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/usage"
	"github.com/flemzord/llmrelay/pkg/app"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errEmptyPrompt is returned when neither an argument nor stdin holds a prompt.
var errEmptyPrompt = errors.New("empty prompt")

type streamFlags struct {
	system    string
	role      string
	taskID    string
	json      bool
	reasoning bool
}

func streamCmd(flags *globalFlags) *cobra.Command {
	sf := &streamFlags{}
	cmd := &cobra.Command{
		Use:   "stream [prompt]",
		Short: "Stream one completion through the provider chain",
		Long: "Stream one completion through the provider chain.\n" +
			"The prompt is read from stdin when no argument is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			rt, err := app.Bootstrap(cmd.Context(), flags.params(cmd))
			if err != nil {
				return err
			}
			// Provisioned modules can stream without Start; listeners and
			// background jobs stay off for a one-shot call.
			defer func() {
				if err := rt.Close(context.Background()); err != nil {
					rt.Logger.Warn("shutdown failed", "error", err)
				}
			}()

			taskID := sf.taskID
			if taskID == "" {
				taskID = uuid.NewString()
			}
			ctx := provider.WithTaskID(cmd.Context(), taskID)
			conv := provider.Conversation{provider.TextTurn(provider.MessageRoleUser, prompt)}

			events, err := rt.Chain.Stream(ctx, provider.Role(sf.role), sf.system, conv)
			if err != nil {
				return err
			}
			return printStream(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, printOptions{
				taskID:    taskID,
				json:      sf.json,
				reasoning: sf.reasoning,
			})
		},
	}
	cmd.Flags().StringVarP(&sf.system, "system", "s", "", "System prompt")
	cmd.Flags().StringVarP(&sf.role, "role", "r", string(provider.RolePrimary), "Chain role to route the request to")
	cmd.Flags().StringVar(&sf.taskID, "task-id", "", "Task id for correlation and usage accounting (default: random)")
	cmd.Flags().BoolVar(&sf.json, "json", false, "Print one JSON object per event")
	cmd.Flags().BoolVar(&sf.reasoning, "reasoning", false, "Print reasoning deltas to stderr")
	return cmd
}

// readPrompt returns the first argument, or all of r when there is none.
func readPrompt(r io.Reader, args []string) (string, error) {
	var prompt string
	if len(args) > 0 {
		prompt = args[0]
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("reading prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errEmptyPrompt
	}
	return prompt, nil
}

type printOptions struct {
	taskID    string
	json      bool
	reasoning bool
}

// jsonEvent is the --json rendering of a stream element.
type jsonEvent struct {
	Kind   provider.EventKind `json:"kind"`
	Text   string             `json:"text,omitempty"`
	Usage  *usage.Record      `json:"usage,omitempty"`
	Error  string             `json:"error,omitempty"`
	TaskID string             `json:"task_id,omitempty"`
}

// printStream drains events. Text goes to out; reasoning and the usage
// summary go to errOut. The terminal error, if any, is returned.
func printStream(out, errOut io.Writer, events <-chan provider.StreamEvent, opts printOptions) error {
	var total usage.Record
	var sawUsage bool

	enc := json.NewEncoder(out)
	for ev := range events {
		if ev.Err != nil {
			if opts.json {
				_ = enc.Encode(jsonEvent{Kind: "error", Error: ev.Err.Error(), TaskID: opts.taskID})
			}
			return ev.Err
		}
		if ev.Kind == provider.EventUsage && ev.Usage != nil {
			total.Add(*ev.Usage)
			sawUsage = true
		}
		if opts.json {
			if err := enc.Encode(jsonEvent{Kind: ev.Kind, Text: ev.Text, Usage: ev.Usage}); err != nil {
				return err
			}
			continue
		}
		switch ev.Kind {
		case provider.EventText:
			fmt.Fprint(out, ev.Text)
		case provider.EventReasoning:
			if opts.reasoning {
				fmt.Fprint(errOut, ev.Text)
			}
		}
	}

	if opts.json {
		return enc.Encode(jsonEvent{Kind: "done", Usage: &total, TaskID: opts.taskID})
	}
	fmt.Fprintln(out)
	if sawUsage {
		fmt.Fprintln(errOut, formatUsage(opts.taskID, total))
	}
	return nil
}

func formatUsage(taskID string, r usage.Record) string {
	return fmt.Sprintf("task=%s model=%s input=%d output=%d cache_write=%d cache_read=%d cost=$%.6f",
		taskID, r.Model, r.Input, r.Output, r.CacheWrite, r.CacheRead, r.TotalCost)
}
