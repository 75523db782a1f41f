package httpapi

import (
	"encoding/json"
	"net/http"
)

// writeJSON marshals v and writes it with the given status, returning the
// status for auditedPlain/withCORS's access-log callers.
func writeJSON(w http.ResponseWriter, status int, v any) int {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"` + err.Error() + `"}`))
		return http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	return status
}
