package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RecordInput is the body of a create request.
type RecordInput struct {
	OwnerID string
	Payload Payload
}

// Create inserts a new record owned by the explicit owner or the actor.
func (s *Service) Create(ctx context.Context, actor Actor, kind *KindDefinition, in RecordInput) (*Record, error) {
	payload, err := createPayload(kind, in.Payload)
	if err != nil {
		return nil, err
	}

	owner, err := s.resolveOwner(ctx, actor, in.OwnerID)
	if err != nil {
		return nil, err
	}

	rec := Record{
		ID:        NewID(kind.Prefix),
		Kind:      kind.Key,
		OwnerID:   &owner,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.InsertRecords(ctx, kind, []Record{rec}); err != nil {
		return nil, fmt.Errorf("create %s: %w", kind.Key, err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionCreate,
		Entity:   kind.Key,
		EntityID: rec.ID,
		Meta:     map[string]any{"email": actor.Email},
	})

	return &rec, nil
}

func createPayload(kind *KindDefinition, in Payload) (Payload, error) {
	if kind.IsScalar() {
		s, ok := in[kind.ScalarField].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, Invalid("%s is required", kind.ScalarField)
		}
		return Payload{kind.ScalarField: strings.TrimSpace(s)}, nil
	}
	if in == nil {
		return nil, Invalid("data is required")
	}
	return in, nil
}

// Update merges patch into the record's payload. Keys present in patch
// overwrite, keys set to nil are removed. Owner-gated kinds require the
// actor to be allowed to edit the record.
func (s *Service) Update(ctx context.Context, actor Actor, kind *KindDefinition, id string, patch Payload) (*Record, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if kind.OwnerGated && !CanEdit(actor, rec.OwnerID) {
		return nil, fmt.Errorf("edit %s %s: %w", kind.Label, id, ErrForbidden)
	}

	merged, err := mergePayload(kind, rec.Payload, patch)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec.Payload = merged
	rec.UpdatedAt = &now

	if err := s.store.UpdateRecord(ctx, kind, rec); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(kind.Label, id)
		}
		return nil, fmt.Errorf("update %s: %w", kind.Key, err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionUpdate,
		Entity:   kind.Key,
		EntityID: id,
		Meta:     map[string]any{"fields": patchKeys(patch), "email": actor.Email},
	})

	return rec, nil
}

func mergePayload(kind *KindDefinition, current, patch Payload) (Payload, error) {
	merged := make(Payload, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}

	if kind.IsScalar() {
		v, ok := patch[kind.ScalarField]
		if !ok || v == nil {
			return merged, nil
		}
		s, isStr := v.(string)
		if !isStr || strings.TrimSpace(s) == "" {
			return nil, Invalid("%s must be a non-empty string", kind.ScalarField)
		}
		merged[kind.ScalarField] = strings.TrimSpace(s)
		return merged, nil
	}

	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged, nil
}

func patchKeys(p Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delete removes a record. Owner-gated kinds require the actor to be allowed
// to delete it.
func (s *Service) Delete(ctx context.Context, actor Actor, kind *KindDefinition, id string) error {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	if kind.OwnerGated && !CanDelete(actor, rec.OwnerID) {
		return fmt.Errorf("delete %s %s: %w", kind.Label, id, ErrForbidden)
	}

	if err := s.store.DeleteRecord(ctx, kind, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(kind.Label, id)
		}
		return fmt.Errorf("delete %s: %w", kind.Key, err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionDelete,
		Entity:   kind.Key,
		EntityID: id,
		Meta:     map[string]any{"email": actor.Email},
	})

	return nil
}

// Clear deletes every record of kind. Only available in development-like
// environments.
func (s *Service) Clear(ctx context.Context, actor Actor, kind *KindDefinition) (int64, error) {
	if !s.opts.AllowBulkClear {
		return 0, fmt.Errorf("clear %s is disabled in production: %w", kind.Key, ErrForbidden)
	}

	n, err := s.store.ClearRecords(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", kind.Key, err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID: actor.ID,
		Action:  ActionClear,
		Entity:  kind.Key,
		Meta:    map[string]any{"count": n, "email": actor.Email},
	})

	return n, nil
}
