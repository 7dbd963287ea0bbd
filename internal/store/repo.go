package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kaura24/regaudit/internal/types"
)

// Key namespaces, one per record kind. The layout is backend-agnostic:
// one record per run, one append-only event list per run, one artifact map
// per run keyed "stage:kind", one record per HITL packet.
const (
	nsRuns      = "runs/"
	nsEvents    = "events/"
	nsArtifacts = "artifacts/"
	nsHITL      = "hitl/"
)

// Repository layers the domain record kinds over the raw Store. It assumes
// the global session lock has already serialized writers; individual writes
// are last-writer-wins at record granularity.
type Repository struct {
	store Store
}

// NewRepository wraps a Store.
func NewRepository(s Store) *Repository {
	return &Repository{store: s}
}

// Store exposes the underlying Store for collaborators that persist their
// own records (the session lock).
func (r *Repository) Store() Store {
	return r.store
}

func runKey(id uuid.UUID) string      { return nsRuns + id.String() + ".json" }
func eventsKey(id uuid.UUID) string   { return nsEvents + id.String() + ".json" }
func artifactKey(id uuid.UUID) string { return nsArtifacts + id.String() + ".json" }
func packetKey(id uuid.UUID) string   { return nsHITL + id.String() + ".json" }

// SaveRun persists the full run record.
func (r *Repository) SaveRun(ctx context.Context, run *types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}
	return r.store.Put(ctx, runKey(run.ID), data)
}

// GetRun returns ErrNotFound when the run does not exist.
func (r *Repository) GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error) {
	data, err := r.store.Get(ctx, runKey(id))
	if err != nil {
		return nil, err
	}
	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns every persisted run. Intended for operator surfaces, not
// hot paths.
func (r *Repository) ListRuns(ctx context.Context) ([]types.Run, error) {
	keys, err := r.store.List(ctx, nsRuns)
	if err != nil {
		return nil, err
	}
	runs := make([]types.Run, 0, len(keys))
	for _, key := range keys {
		data, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// AppendEvent appends to the run's audit trail. Events are never rewritten
// or reordered once appended.
func (r *Repository) AppendEvent(ctx context.Context, runID uuid.UUID, ev types.StageEvent) error {
	events, err := r.GetEvents(ctx, runID)
	if err != nil {
		return err
	}
	events = append(events, ev)
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events for run %s: %w", runID, err)
	}
	return r.store.Put(ctx, eventsKey(runID), data)
}

// GetEvents returns the audit trail in append order. A run with no events
// yet yields an empty slice, not an error.
func (r *Repository) GetEvents(ctx context.Context, runID uuid.UUID) ([]types.StageEvent, error) {
	data, err := r.store.Get(ctx, eventsKey(runID))
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var events []types.StageEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events for run %s: %w", runID, err)
	}
	return events, nil
}

func artifactMapKey(stage string, kind types.ArtifactKind) string {
	return stage + ":" + string(kind)
}

func (r *Repository) loadArtifacts(ctx context.Context, runID uuid.UUID) (map[string]json.RawMessage, error) {
	data, err := r.store.Get(ctx, artifactKey(runID))
	if err != nil {
		if err == ErrNotFound {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	var artifacts map[string]json.RawMessage
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return nil, fmt.Errorf("failed to decode artifacts for run %s: %w", runID, err)
	}
	return artifacts, nil
}

// SaveArtifact marshals and stores one typed stage payload.
func (r *Repository) SaveArtifact(ctx context.Context, runID uuid.UUID, stage string, kind types.ArtifactKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s artifact: %w", kind, err)
	}
	return r.SaveRawArtifact(ctx, runID, stage, kind, raw)
}

// SaveRawArtifact stores an already-encoded payload, used when substituting
// a human-corrected artifact verbatim.
func (r *Repository) SaveRawArtifact(ctx context.Context, runID uuid.UUID, stage string, kind types.ArtifactKind, raw json.RawMessage) error {
	artifacts, err := r.loadArtifacts(ctx, runID)
	if err != nil {
		return err
	}
	artifacts[artifactMapKey(stage, kind)] = raw
	data, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts for run %s: %w", runID, err)
	}
	return r.store.Put(ctx, artifactKey(runID), data)
}

// Artifacts returns every artifact persisted for the run, keyed
// "stage:kind". A run with no artifacts yields an empty map.
func (r *Repository) Artifacts(ctx context.Context, runID uuid.UUID) (map[string]json.RawMessage, error) {
	return r.loadArtifacts(ctx, runID)
}

// GetArtifact returns the raw payload, or ErrNotFound.
func (r *Repository) GetArtifact(ctx context.Context, runID uuid.UUID, stage string, kind types.ArtifactKind) (json.RawMessage, error) {
	artifacts, err := r.loadArtifacts(ctx, runID)
	if err != nil {
		return nil, err
	}
	raw, ok := artifacts[artifactMapKey(stage, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

// GetArtifactInto decodes the payload into v.
func (r *Repository) GetArtifactInto(ctx context.Context, runID uuid.UUID, stage string, kind types.ArtifactKind, v any) error {
	raw, err := r.GetArtifact(ctx, runID, stage, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s artifact for run %s: %w", kind, runID, err)
	}
	return nil
}

// SavePacket persists a HITL packet keyed by its own id.
func (r *Repository) SavePacket(ctx context.Context, p *types.HITLPacket) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal hitl packet %s: %w", p.ID, err)
	}
	return r.store.Put(ctx, packetKey(p.ID), data)
}

// GetPacket returns ErrNotFound when the packet does not exist.
func (r *Repository) GetPacket(ctx context.Context, id uuid.UUID) (*types.HITLPacket, error) {
	data, err := r.store.Get(ctx, packetKey(id))
	if err != nil {
		return nil, err
	}
	var p types.HITLPacket
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode hitl packet %s: %w", id, err)
	}
	return &p, nil
}

// GetPacketByRun follows the run's open-packet reference.
func (r *Repository) GetPacketByRun(ctx context.Context, runID uuid.UUID) (*types.HITLPacket, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.HITLPacketID == nil {
		return nil, ErrNotFound
	}
	return r.GetPacket(ctx, *run.HITLPacketID)
}
