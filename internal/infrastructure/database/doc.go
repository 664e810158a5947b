// Package database provides SQLite persistence for Spyglass Core.
//
// This package manages:
//   - Database connection lifecycle (open, close, health checks)
//   - WAL mode and busy timeout configuration
//   - Schema migrations from embedded SQL files
//
// The database stores state history and trigger activity so a restart
// does not lose the audit trail. Live device state itself is held in
// memory by the registry package and rebuilt from SecuritySpy on startup.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "/var/lib/spyglass/spyglass.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
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
