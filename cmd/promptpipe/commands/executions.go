package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/logger"
	"github.com/promptpipe/promptpipe/run"
)

// ExecutionsCmd groups execution record operations
var ExecutionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Inspect execution records",
	Long: `Inspect execution records.

Commands:
  promptpipe executions ls                      # List recent executions
  promptpipe executions ls --status failed      # Only failed executions
  promptpipe executions ls --prompt pmt_abc123  # Executions of one prompt
  promptpipe executions show <id>               # Full record detail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var executionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List execution records",
	RunE: func(cmd *cobra.Command, args []string) error {
		promptID, _ := cmd.Flags().GetString("prompt")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runExecutionsLs(promptID, status, limit)
	},
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution record in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExecutionsShow(args[0])
	},
}

func init() {
	executionsLsCmd.Flags().String("prompt", "", "Filter by prompt ID")
	executionsLsCmd.Flags().String("status", "", "Filter by status (success, failed)")
	executionsLsCmd.Flags().Int("limit", 20, "Maximum number of records to display")

	ExecutionsCmd.AddCommand(executionsLsCmd)
	ExecutionsCmd.AddCommand(executionsShowCmd)
}

func runExecutionsLs(promptID, status string, limit int) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := run.NewRecordStore(database, logger.Logger)
	records, total, err := store.ListRecords(promptID, limit, 0, status)
	if err != nil {
		return errors.Wrap(err, "failed to list executions")
	}

	if len(records) == 0 {
		fmt.Println("No executions recorded yet")
		return nil
	}

	fmt.Printf("%-38s %-14s %-10s %-8s %s\n", "EXECUTION ID", "PROMPT", "TRIGGER", "STATUS", "CREATED")
	fmt.Printf("%-38s %-14s %-10s %-8s %s\n", "------------", "------", "-------", "------", "-------")

	for _, rec := range records {
		fmt.Printf("%-38s %-14s %-10s %-8s %s\n",
			rec.ID,
			truncate(rec.PromptID, 14),
			rec.Trigger,
			rec.Status,
			rec.CreatedAt)
	}

	fmt.Printf("\nShowing %d of %d execution(s)\n", len(records), total)
	return nil
}

func runExecutionsShow(executionID string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := run.NewRecordStore(database, logger.Logger)
	rec, err := store.GetRecord(executionID)
	if err != nil {
		return errors.Wrapf(err, "failed to get execution %s", executionID)
	}

	printExecutionRecord(rec)

	if rec.InputData != nil {
		fmt.Printf("\nInput Data:\n%s\n", indentJSON(rec.InputData))
	}
	fmt.Printf("\nCompletion Response:\n%s\n", indentJSON(rec.Response))
	if rec.WebhookBody != nil && *rec.WebhookBody != "" {
		fmt.Printf("\nWebhook Response Body:\n%s\n", truncate(*rec.WebhookBody, 500))
	}

	return nil
}

// indentJSON pretty-prints raw JSON, falling back to the raw bytes
func indentJSON(raw json.RawMessage) string {
	var buf interface{}
	if err := json.Unmarshal(raw, &buf); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
