package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/cmd/promptpipe/commands"
	"github.com/promptpipe/promptpipe/logger"
)

var rootCmd = &cobra.Command{
	Use:   "promptpipe",
	Short: "promptpipe - Stored prompt execution pipeline",
	Long: `promptpipe - Stored prompts, LLM completions, webhook delivery.

Prompts are stored with their template, model, and sampling parameters.
Each execution renders the template, requests a completion, posts the
result to the prompt's webhook, and records an immutable execution record.

Available commands:
  serve      - Start the HTTP API and execution feed
  run        - Execute a stored prompt once
  prompts    - Inspect and manage stored prompts
  executions - Inspect execution records
  db         - Manage database operations
  version    - Show version information

Examples:
  promptpipe serve                         # Start the API server
  promptpipe run pmt_abc123                # Execute a prompt now
  promptpipe run pmt_abc123 --data '{"name": "Ada"}'
  promptpipe prompts ls                    # List stored prompts
  promptpipe executions ls --status failed
  promptpipe db stats                      # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		debug, _ := cmd.Flags().GetBool("debug")
		if err := logger.Initialize(jsonOutput, debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Emit structured JSON logs")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PromptsCmd)
	rootCmd.AddCommand(commands.ExecutionsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	// Local .env files supply PROMPTPIPE_* variables during development
	_ = godotenv.Load()

	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
