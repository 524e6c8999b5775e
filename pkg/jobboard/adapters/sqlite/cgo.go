package sqlite

// mattn/go-sqlite3 registers itself as "sqlite3" (DriverCgo).
import _ "github.com/mattn/go-sqlite3"
