package commands

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptpipe/promptpipe/config"
	"github.com/promptpipe/promptpipe/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage promptpipe database",
	Long: `Manage database operations including statistics and migrations.

Examples:
  promptpipe db stats      # Show database statistics
  promptpipe db migrate    # Apply pending migrations`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display prompt counts, execution outcomes, and usage row totals",
	RunE:  runDbStats,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runDbMigrate,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbMigrateCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return errors.Wrap(err, "failed to resolve database path")
	}

	database, err := openDatabase(dbPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	var totalPrompts, activePrompts int
	err = database.QueryRow(`
		SELECT COUNT(*), COUNT(CASE WHEN active = 1 THEN 1 END)
		FROM prompts
	`).Scan(&totalPrompts, &activePrompts)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query prompt stats")
	}

	var totalExecutions, failedExecutions int
	err = database.QueryRow(`
		SELECT COUNT(*), COUNT(CASE WHEN execution_status = 'failed' THEN 1 END)
		FROM execution_records
	`).Scan(&totalExecutions, &failedExecutions)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query execution stats")
	}

	var usageRows int
	err = database.QueryRow(`SELECT COUNT(*) FROM model_usage`).Scan(&usageRows)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to query usage stats")
	}

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:     %s\n", dbPath)
	if info, statErr := os.Stat(dbPath); statErr == nil {
		fmt.Printf("File Size:         %.1f KB\n", float64(info.Size())/1024)
	}
	fmt.Println()
	fmt.Printf("Prompts:           %d (%d active)\n", totalPrompts, activePrompts)
	fmt.Printf("Executions:        %d (%d failed)\n", totalExecutions, failedExecutions)
	fmt.Printf("Usage Records:     %d\n", usageRows)

	return nil
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	// openDatabase already ran migrations; report the resulting version
	var applied int
	var latest sql.NullString
	if err := database.QueryRow(`SELECT COUNT(*), MAX(version) FROM schema_migrations`).Scan(&applied, &latest); err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	if latest.Valid {
		fmt.Printf("Database schema is at version %s (%d migrations applied)\n", latest.String, applied)
	} else {
		fmt.Println("No migrations recorded")
	}
	return nil
}
