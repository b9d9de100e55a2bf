package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/logger"
	"github.com/promptpipe/promptpipe/prompt"
)

// PromptsCmd groups stored prompt operations
var PromptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and manage stored prompts",
	Long: `Inspect and manage stored prompts.

Commands:
  promptpipe prompts ls            # List all prompts
  promptpipe prompts show <id>     # Show prompt details
  promptpipe prompts rm <id>       # Delete a prompt and its executions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var promptsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPromptsLs()
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <prompt-id>",
	Short: "Show details of a stored prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPromptsShow(args[0])
	},
}

var promptsRmCmd = &cobra.Command{
	Use:   "rm <prompt-id>",
	Short: "Delete a stored prompt",
	Long: `Delete a stored prompt. Its execution records are removed with it.

Example:
  promptpipe prompts rm pmt_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPromptsRm(args[0])
	},
}

func init() {
	PromptsCmd.AddCommand(promptsLsCmd)
	PromptsCmd.AddCommand(promptsShowCmd)
	PromptsCmd.AddCommand(promptsRmCmd)
}

func runPromptsLs() error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := prompt.NewStore(database, logger.Logger)
	prompts, err := store.ListPrompts()
	if err != nil {
		return errors.Wrap(err, "failed to list prompts")
	}

	if len(prompts) == 0 {
		fmt.Println("No prompts stored yet")
		return nil
	}

	fmt.Printf("%-14s %-24s %-28s %-7s %s\n", "ID", "NAME", "MODEL", "ACTIVE", "CREATED")
	fmt.Printf("%-14s %-24s %-28s %-7s %s\n", "--", "----", "-----", "------", "-------")

	for _, p := range prompts {
		active := "yes"
		if !p.Active {
			active = "no"
		}
		fmt.Printf("%-14s %-24s %-28s %-7s %s\n",
			truncate(p.ID, 14),
			truncate(p.Name, 24),
			truncate(p.Model, 28),
			active,
			p.CreatedAt)
	}

	fmt.Printf("\nTotal: %d prompt(s)\n", len(prompts))
	return nil
}

func runPromptsShow(promptID string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := prompt.NewStore(database, logger.Logger)
	p, err := store.GetPrompt(promptID)
	if err != nil {
		return errors.Wrapf(err, "failed to get prompt %s", promptID)
	}

	fmt.Printf("Prompt: %s\n", p.ID)
	fmt.Printf("  Name:        %s\n", p.Name)
	if p.Description != nil {
		fmt.Printf("  Description: %s\n", *p.Description)
	}
	fmt.Printf("  Model:       %s\n", p.Model)
	fmt.Printf("  Temperature: %.2f\n", p.Temperature)
	if p.MaxTokens != nil {
		fmt.Printf("  Max Tokens:  %d\n", *p.MaxTokens)
	}
	fmt.Printf("  Top P:       %.2f\n", p.TopP)
	fmt.Printf("  Webhook:     %s\n", p.WebhookURL)
	if p.Schedule != nil {
		fmt.Printf("  Schedule:    %s\n", *p.Schedule)
	}
	fmt.Printf("  Active:      %t\n", p.Active)
	fmt.Printf("  Created:     %s\n", p.CreatedAt)
	fmt.Printf("  Updated:     %s\n", p.UpdatedAt)
	fmt.Printf("\nTemplate:\n%s\n", p.Template)

	placeholders := prompt.ParseTemplate(p.Template).Placeholders()
	if len(placeholders) > 0 {
		fmt.Printf("\nPlaceholders: %v\n", placeholders)
	}

	return nil
}

func runPromptsRm(promptID string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	store := prompt.NewStore(database, logger.Logger)
	if err := store.DeletePrompt(promptID); err != nil {
		return errors.Wrapf(err, "failed to delete prompt %s", promptID)
	}

	pterm.Success.Printf("Deleted prompt %s\n", promptID)
	return nil
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
