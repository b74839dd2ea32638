// Package database provides SQLite connectivity for the switch status store.
//
// This package manages:
//   - Database connection with WAL mode so report reads do not block writes
//   - Additive schema migrations read from an fs.FS (see package migrations)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
