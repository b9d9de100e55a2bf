package commands

import (
	"database/sql"

	"github.com/promptpipe/promptpipe/config"
	"github.com/promptpipe/promptpipe/db"
	"github.com/promptpipe/promptpipe/errors"
	"github.com/promptpipe/promptpipe/logger"
)

// openDatabase opens and migrates a database at the given path.
// An empty path resolves through the config system.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	return database, nil
}
