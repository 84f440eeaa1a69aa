package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bakeops/bakeops/internal/aggregate"
	"github.com/bakeops/bakeops/internal/store"
	"github.com/bakeops/bakeops/internal/workflow"
	"github.com/bakeops/bakeops/pkg/schema"
)

// Snapshot is one entity type's refreshed collection plus its
// aggregation, as of RefreshedAt. Served to dashboard polls so they
// never touch the store directly.
type Snapshot struct {
	EntityType  schema.EntityType     `json:"entity_type"`
	Entities    []aggregate.Annotated `json:"entities"`
	Summary     aggregate.Summary     `json:"summary"`
	RefreshedAt time.Time             `json:"refreshed_at"`
}

// Syncer periodically re-fetches every entity type's collection so
// aggregation and escalation stay current, and runs a cron-scheduled
// escalation sweep that audits orders newly observed late.
type Syncer struct {
	registry *workflow.Registry
	store    store.Store
	logger   *slog.Logger
	interval time.Duration
	sweep    cron.Schedule
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	snapMu    sync.RWMutex
	snapshots map[schema.EntityType]*Snapshot

	// seen tracks the last audited escalation status per entity so the
	// sweep records each threshold crossing exactly once.
	seenMu sync.Mutex
	seen   map[string]schema.EscalationStatus
}

// NewSyncer creates a Syncer. interval is the collection refresh period
// (the observed console polls every 30 seconds); sweepExpr is a standard
// five-field cron expression for the escalation sweep. now may be nil to
// use the wall clock.
func NewSyncer(registry *workflow.Registry, s store.Store, logger *slog.Logger, interval time.Duration, sweepExpr string, now func() time.Time) (*Syncer, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(sweepExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep cron expression %q: %w", sweepExpr, err)
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Syncer{
		registry:  registry,
		store:     s,
		logger:    logger,
		interval:  interval,
		sweep:     schedule,
		now:       now,
		snapshots: make(map[schema.EntityType]*Snapshot),
		seen:      make(map[string]schema.EscalationStatus),
	}, nil
}

// Start launches the background refresh loop.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("syncer already started")
	}

	syncCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(syncCtx)
	s.logger.Info("syncer started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Syncer) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial refresh immediately so the first poll never sees an
	// empty cache.
	s.Refresh(ctx)
	nextSweep := s.sweep.Next(s.now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
			if now := s.now(); !now.Before(nextSweep) {
				s.RunSweep(ctx)
				nextSweep = s.sweep.Next(now)
			}
		}
	}
}

// Refresh re-fetches every registered entity type and rebuilds its
// snapshot. Failures are logged per type; one failing type does not
// block the others.
func (s *Syncer) Refresh(ctx context.Context) {
	now := s.now()
	for _, et := range s.registry.EntityTypes() {
		def, err := s.registry.Get(et)
		if err != nil {
			continue
		}
		entities, err := s.store.ListEntities(ctx, store.EntityFilter{Type: et})
		if err != nil {
			s.logger.Error("refresh fetch failed",
				slog.String("entity_type", string(et)),
				slog.String("error", err.Error()),
			)
			continue
		}
		snap := &Snapshot{
			EntityType:  et,
			Entities:    aggregate.Annotate(def, entities, now),
			Summary:     aggregate.Aggregate(def, entities, now),
			RefreshedAt: now,
		}
		s.snapMu.Lock()
		s.snapshots[et] = snap
		s.snapMu.Unlock()
	}
}

// Snapshot returns the latest refreshed snapshot for an entity type, or
// nil if no refresh has completed yet.
func (s *Syncer) Snapshot(et schema.EntityType) *Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshots[et]
}

// RunSweep audits entities of time-driven definitions that have newly
// crossed an escalation threshold. Priority-mirroring definitions are
// skipped: their urgency is operator-assigned, and no time-decay rule
// exists for them.
func (s *Syncer) RunSweep(ctx context.Context) {
	now := s.now()
	for _, et := range s.registry.EntityTypes() {
		def, err := s.registry.Get(et)
		if err != nil || def.MirrorPriority || len(def.Escalation) == 0 {
			continue
		}
		entities, err := s.store.ListEntities(ctx, store.EntityFilter{Type: et})
		if err != nil {
			s.logger.Error("sweep fetch failed",
				slog.String("entity_type", string(et)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, e := range entities {
			status := workflow.EvaluateEscalation(def, e, now)
			if !s.markSeen(e.ID, status) {
				continue
			}
			details, _ := json.Marshal(map[string]any{
				"state":            e.CurrentState,
				"state_entered_at": e.StateEnteredAt,
			})
			event := &store.AuditEvent{
				EntityType: et,
				EntityID:   e.ID,
				Type:       auditType(status),
				Details:    details,
				Timestamp:  now,
			}
			if err := s.store.AppendAudit(ctx, event); err != nil {
				s.logger.Error("sweep audit append failed",
					slog.String("entity_id", e.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.logger.Warn("escalation detected",
				slog.String("entity_type", string(et)),
				slog.String("entity_id", e.ID),
				slog.String("state", e.CurrentState),
				slog.String("escalation", string(status)),
			)
		}
	}
}

// markSeen records the entity's current escalation status and reports
// whether it is a new escalated status worth auditing. Entities that drop
// back to none are forgotten so a later crossing is audited again.
func (s *Syncer) markSeen(entityID string, status schema.EscalationStatus) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if status == schema.EscalationNone {
		delete(s.seen, entityID)
		return false
	}
	if prev, ok := s.seen[entityID]; ok && prev == status {
		return false
	}
	s.seen[entityID] = status
	return true
}

func auditType(status schema.EscalationStatus) string {
	if status == schema.EscalationUrgent {
		return store.AuditEscalationUrgent
	}
	return store.AuditEscalationLate
}

// Stop gracefully shuts down the syncer.
func (s *Syncer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("syncer stopped")
	return nil
}
