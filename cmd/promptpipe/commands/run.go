package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/ai/openrouter"
	"github.com/promptpipe/promptpipe/ai/tracker"
	"github.com/promptpipe/promptpipe/config"
	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/logger"
	"github.com/promptpipe/promptpipe/prompt"
	"github.com/promptpipe/promptpipe/run"
	"github.com/promptpipe/promptpipe/webhook"
)

// RunCmd executes a stored prompt once
var RunCmd = &cobra.Command{
	Use:   "run <prompt-id>",
	Short: "Execute a stored prompt once",
	Long: `Execute a stored prompt: render its template, request a completion,
deliver the result to the prompt's webhook, and record the outcome.

By default the webhook receives the full completion response, the same
as scheduler-triggered executions. With --hook the run behaves like an
inbound hook call and the webhook receives only the generated text.

Examples:
  promptpipe run pmt_abc123
  promptpipe run pmt_abc123 --data '{"name": "Ada"}'
  promptpipe run pmt_abc123 --hook --data '{"text": "standup notes"}'
  promptpipe run pmt_abc123 --json-record     # Print the full record`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runDataFlag string
	runHookFlag bool
	runJSONFlag bool
)

func init() {
	RunCmd.Flags().StringVar(&runDataFlag, "data", "", "Input data as a JSON object (fills {{placeholders}})")
	RunCmd.Flags().BoolVar(&runHookFlag, "hook", false, "Use hook-trigger semantics (deliver generated text only)")
	RunCmd.Flags().BoolVar(&runJSONFlag, "json-record", false, "Print the execution record as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	promptID := args[0]

	var data map[string]interface{}
	if runDataFlag != "" {
		if err := json.Unmarshal([]byte(runDataFlag), &data); err != nil {
			return errors.Wrap(err, "--data must be a JSON object")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	runner := run.NewRunner(run.Config{
		Prompts: prompt.NewStore(database, logger.Logger),
		Records: run.NewRecordStore(database, logger.Logger),
		Completions: openrouter.NewClient(openrouter.Config{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			Model:   cfg.OpenRouter.Model,
			Timeout: cfg.GetOpenRouterTimeout(),
			Logger:  logger.Logger,
		}),
		Delivery: webhook.NewClient(webhook.Config{
			Timeout:           cfg.GetWebhookTimeout(),
			BlockPrivateHosts: cfg.Webhook.BlockPrivateHosts,
			Logger:            logger.Logger,
		}),
		Tracker: tracker.NewUsageTracker(database),
		Logger:  logger.Logger,
	})

	var rec *run.Record
	if runHookFlag {
		rec, err = runner.ExecuteWebhook(cmd.Context(), promptID, data)
	} else {
		rec, err = runner.ExecuteScheduled(cmd.Context(), promptID, data)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to execute prompt %s", promptID)
	}

	if runJSONFlag {
		output, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format record")
		}
		fmt.Println(string(output))
	} else {
		printExecutionRecord(rec)
	}

	if rec.Failed() {
		return errors.Newf("execution %s failed", rec.ID)
	}

	pterm.Success.Printf("Execution %s succeeded\n", rec.ID)
	return nil
}

// printExecutionRecord displays one record in detail
func printExecutionRecord(rec *run.Record) {
	fmt.Printf("Execution: %s\n", rec.ID)
	fmt.Printf("  Prompt:   %s\n", rec.PromptID)
	fmt.Printf("  Trigger:  %s\n", rec.Trigger)
	fmt.Printf("  Status:   %s\n", rec.Status)
	fmt.Printf("  Rendered: %s\n", truncate(rec.RenderedPrompt, 100))
	if rec.WebhookStatus != nil {
		fmt.Printf("  Webhook:  %d\n", *rec.WebhookStatus)
	}
	if rec.ErrorMessage != nil {
		fmt.Printf("  Error:    %s\n", *rec.ErrorMessage)
	}
	fmt.Printf("  Created:  %s\n", rec.CreatedAt)
}
