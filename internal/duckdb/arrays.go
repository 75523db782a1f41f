package duckdb

import (
	"fmt"
	"strings"
)

// Int64ArrayToString converts []int64 to a DuckDB array literal string.
// Example: [1, 2, 3] -> "[1, 2, 3]". The go-duckdb driver does not accept
// Go slices as bind parameters, so []int64 field values are passed as
// literal strings and cast on the DuckDB side.
func Int64ArrayToString(vec []int64) string {
	if len(vec) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range vec {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", v))
	}
	sb.WriteString("]")
	return sb.String()
}
