package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itchyny/gojq"

	"github.com/bakeops/bakeops/internal/aggregate"
	"github.com/bakeops/bakeops/internal/query"
	"github.com/bakeops/bakeops/pkg/schema"
)

// handleExport returns report rows for the filtered collection, optionally
// reshaped by a jq expression (?jq=). The expression runs over the array
// of escalation-annotated entities; the default "." returns them as-is.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}
	def, err := s.deps.Registry.Get(et)
	if err != nil {
		writeOpsError(w, err)
		return
	}

	expression := r.URL.Query().Get("jq")
	if expression == "" {
		expression = "."
	}
	q, err := gojq.Parse(expression)
	if err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation,
			fmt.Sprintf("invalid jq expression %q: %v", expression, err))
		return
	}
	code, err := gojq.Compile(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation,
			fmt.Sprintf("compile jq expression %q: %v", expression, err))
		return
	}

	now := s.deps.Now()
	filter := query.Resolve(et, paramsFromRequest(r), now)
	entities, err := s.deps.Store.ListEntities(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrCodeStore, err.Error())
		return
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	input, err := toJSONValue(aggregate.Annotate(def, entities, now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, schema.ErrCodeExecution, err.Error())
		return
	}

	var rows []any
	iter := code.RunWithContext(r.Context(), input)
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := val.(error); isErr {
			writeError(w, http.StatusBadRequest, schema.ErrCodeExecution,
				fmt.Sprintf("jq evaluation failed: %v", evalErr))
			return
		}
		rows = append(rows, val)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": et,
		"rows":        rows,
	})
}

// toJSONValue round-trips a Go value through JSON encoding so the result
// contains only types gojq accepts.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
