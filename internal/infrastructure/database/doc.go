// Package database provides SQLite connectivity for FinBoard Core.
//
// This package manages:
//   - Database connection with WAL mode and a single writer
//   - Schema migrations read from an fs.FS supplied at Open time
//   - Transaction helpers
//
// Only widget configuration and dashboard state are stored. Fetched
// widget data is never written to disk.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:       cfg.Database.Path,
//	    WALMode:    cfg.Database.WALMode,
//	    Migrations: migrations.FS,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional .down.sql twin.
package database
