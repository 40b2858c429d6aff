// Package database provides SQLite persistence for ZenBridge.
//
// This package manages:
//   - SQLite connection with WAL mode and busy timeout
//   - Embedded SQL migrations (schema_migrations tracking table)
//   - Health checks and graceful shutdown
//
// ZenBridge persists discovered device snapshots and a state-change history
// so restarts do not lose the picture of the zencontrol network built up by
// discovery and multicast events.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
