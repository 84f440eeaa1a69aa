package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bakeops/bakeops/internal/aggregate"
	"github.com/bakeops/bakeops/internal/engine"
	"github.com/bakeops/bakeops/internal/logging"
	"github.com/bakeops/bakeops/internal/query"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

// actorHeader carries the acting user's identity from the auth layer.
const actorHeader = "X-Actor-ID"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTransition applies one requested state change.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}
	entityID := r.PathValue("entity_id")
	actorID := r.Header.Get(actorHeader)
	ctx := logging.WithIDs(r.Context(), string(et), entityID, actorID)

	var req engine.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation, "to_state is required")
		return
	}
	req.ActorID = actorID

	entity, err := s.deps.Engine.Transition(ctx, et, entityID, req)
	if err != nil {
		writeOpsError(w, err)
		return
	}

	def, defErr := s.deps.Registry.Get(et)
	if defErr != nil {
		writeOpsError(w, defErr)
		return
	}
	writeJSON(w, http.StatusOK, aggregate.Annotated{
		Entity:     entity,
		Escalation: workflow.EvaluateEscalation(def, entity, s.deps.Now()),
	})
}

// handleCreate inserts a new entity in its workflow's initial state.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}
	ctx := logging.WithIDs(r.Context(), string(et), "", r.Header.Get(actorHeader))

	var req engine.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	entity, err := s.deps.Engine.Create(ctx, et, req)
	if err != nil {
		writeOpsError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

// handleList returns the filtered, escalation-annotated collection plus
// its aggregation.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}
	def, err := s.deps.Registry.Get(et)
	if err != nil {
		writeOpsError(w, err)
		return
	}

	now := s.deps.Now()
	filter := query.Resolve(et, paramsFromRequest(r), now)
	entities, err := s.deps.Store.ListEntities(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrCodeStore, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": aggregate.Annotate(def, entities, now),
		"summary":  aggregate.Aggregate(def, entities, now),
	})
}

// handleSummary serves the syncer's cached snapshot for dashboard polls,
// falling back to a live aggregation before the first refresh completes.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}

	if s.deps.Syncer != nil {
		if snap := s.deps.Syncer.Snapshot(et); snap != nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	def, err := s.deps.Registry.Get(et)
	if err != nil {
		writeOpsError(w, err)
		return
	}
	now := s.deps.Now()
	entities, err := s.deps.Store.ListEntities(r.Context(), query.Resolve(et, query.Params{}, now))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, schema.ErrCodeStore, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type":  et,
		"summary":      aggregate.Aggregate(def, entities, now),
		"refreshed_at": now,
	})
}

// handleGet returns one escalation-annotated entity.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	et, ok := pathEntityType(w, r)
	if !ok {
		return
	}
	def, err := s.deps.Registry.Get(et)
	if err != nil {
		writeOpsError(w, err)
		return
	}

	entity, err := s.deps.Store.GetEntity(r.Context(), r.PathValue("entity_id"))
	if err != nil {
		writeOpsError(w, err)
		return
	}
	if entity.Type != et {
		writeError(w, http.StatusNotFound, schema.ErrCodeNotFound, "entity not found")
		return
	}

	writeJSON(w, http.StatusOK, aggregate.Annotated{
		Entity:     entity,
		Escalation: workflow.EvaluateEscalation(def, entity, s.deps.Now()),
	})
}

// handleHistory returns the entity's transition records in application order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathEntityType(w, r); !ok {
		return
	}

	records, err := s.deps.Engine.History(r.Context(), r.PathValue("entity_id"))
	if err != nil {
		writeOpsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

// paramsFromRequest maps URL query values onto the raw filter shape.
func paramsFromRequest(r *http.Request) query.Params {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return query.Params{
		Status:     q.Get("status"),
		DatePreset: q.Get("date_preset"),
		DateFrom:   q.Get("date_from"),
		DateTo:     q.Get("date_to"),
		Category:   q.Get("category"),
		Location:   q.Get("location"),
		Priority:   q.Get("priority"),
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	}
}
