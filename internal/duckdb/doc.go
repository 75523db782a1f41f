// Package duckdb provides DuckDB database utilities used by the
// aggregator's persistent batch store: a generic ORM (Table[T]) driven by
// `duckdb` struct tags, and a fluent query builder for assembling the
// store's time-range/agent-filter queries.
package duckdb
