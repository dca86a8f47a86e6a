//go:build cgo_sqlite

// Building with -tags cgo_sqlite also links mattn/go-sqlite3 (registered as
// the "sqlite3" driver) alongside the pure-Go modernc.org/sqlite driver --
// the teacher vendors both drivers side by side (internal/memory/db.go uses
// mattn/go-sqlite3 directly). Open always uses the modernc "sqlite" driver;
// the tag does not switch drivers.
package store

import (
	_ "github.com/mattn/go-sqlite3"
)
