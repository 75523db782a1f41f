package duckdb

import (
	"database/sql"
	"net/url"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"
)

// OpenDB opens a DuckDB database with autoinstall and autoloading of known
// extensions enabled for file-backed DSNs, so an extension is fetched on
// first use without a manual `INSTALL` step. Empty and ":memory:" DSNs are
// passed through unchanged.
func OpenDB(dsn string) (*sql.DB, error) {
	dsn = injectAutoloadConfig(dsn)

	connector, err := duckdbDriver.NewConnector(dsn, nil)
	if err != nil {
		return nil, err
	}

	return sql.OpenDB(connector), nil
}

// injectAutoloadConfig adds autoinstall_known_extensions and
// autoload_known_extensions to the DSN query parameters if not already set.
func injectAutoloadConfig(dsn string) string {
	// Handle empty DSN (in-memory database).
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	// Split path from query string.
	sep := strings.IndexByte(dsn, '?')
	path := dsn
	query := ""
	if sep >= 0 {
		path = dsn[:sep]
		query = dsn[sep+1:]
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		// If we can't parse, return original DSN unchanged.
		return dsn
	}

	if !params.Has("autoinstall_known_extensions") {
		params.Set("autoinstall_known_extensions", "true")
	}
	if !params.Has("autoload_known_extensions") {
		params.Set("autoload_known_extensions", "true")
	}

	return path + "?" + params.Encode()
}
