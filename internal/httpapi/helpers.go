package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/bakeops/bakeops/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured JSON error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeOpsError maps a workflow error onto an HTTP status and writes it.
// Graph and precondition rejections are user-correctable (422); conflicts
// tell the caller to re-fetch and retry (409); store failures are
// retryable (503).
func writeOpsError(w http.ResponseWriter, err error) {
	oe, ok := err.(*schema.OpsError)
	if !ok {
		writeError(w, http.StatusInternalServerError, schema.ErrCodeExecution, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch oe.Code {
	case schema.ErrCodeUnknownState,
		schema.ErrCodeIllegalTransition,
		schema.ErrCodeTerminalState,
		schema.ErrCodePreconditionFailed:
		status = http.StatusUnprocessableEntity
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeStore:
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"error": map[string]any{
			"code":    oe.Code,
			"message": oe.Message,
		},
	}
	if oe.Details != nil {
		body["error"].(map[string]any)["details"] = oe.Details
	}
	writeJSON(w, status, body)
}

// pathEntityType parses and validates the {entity_type} path segment.
func pathEntityType(w http.ResponseWriter, r *http.Request) (schema.EntityType, bool) {
	et, err := schema.ParseEntityType(r.PathValue("entity_type"))
	if err != nil {
		writeOpsError(w, err)
		return "", false
	}
	return et, true
}
