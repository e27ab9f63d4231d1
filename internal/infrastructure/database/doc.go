// Package database provides SQLite connectivity for ButtRest.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations read from an fs.FS (the binary embeds them)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. New columns must be nullable or have a default.
package database
