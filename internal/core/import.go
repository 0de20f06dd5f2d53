package core

// import.go implements bulk import shared by every entity kind.
//
// The flow is:
//
//  1. Reject empty and oversized batches
//  2. Consult the per-user, per-kind rate limiter
//  3. Resolve the owner applied to every row
//  4. Check the first row for the kind's expected headers
//  5. Normalize each row, skipping those with nothing to keep
//  6. Insert the surviving rows in one transaction
//  7. Record the import in the audit log

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/crm/internal/logging"
)

// ImportInput is one bulk import request.
type ImportInput struct {
	Rows    []map[string]any
	OwnerID string
}

// ImportKey returns the rate limiter key for an import by userID.
func ImportKey(kind, userID string) string {
	return "import:" + kind + ":" + userID
}

// Import validates, normalizes and inserts rows as records of kind.
// Either every surviving row is stored or none is. The returned slice may be
// empty when every row was blank.
func (s *Service) Import(ctx context.Context, actor Actor, kind *KindDefinition, in ImportInput) ([]Record, error) {
	if len(in.Rows) == 0 {
		return nil, newValidationError(ReasonEmpty, "empty file")
	}
	if s.opts.MaxImportRows > 0 && len(in.Rows) > s.opts.MaxImportRows {
		return nil, newValidationError(ReasonTooManyRows, "too many rows: %d > %d", len(in.Rows), s.opts.MaxImportRows)
	}

	if !s.limiter.Allow(ImportKey(kind.Key, actor.ID), s.opts.ImportRateLimit, s.opts.ImportRateWindow) {
		return nil, fmt.Errorf("too many imports, slow down: %w", ErrRateLimited)
	}

	owner, err := s.resolveOwner(ctx, actor, in.OwnerID)
	if err != nil {
		return nil, err
	}

	if len(kind.ExpectedHeaders) > 0 {
		if missing := MissingHeaders(in.Rows[0], kind.ExpectedHeaders); len(missing) > 0 {
			logging.FromContext(ctx).Debug("import header mismatch",
				"kind", kind.Key, "missing", missing)
			return nil, newValidationError(ReasonHeaderMismatch, "incorrect file for %s", kind.Label)
		}
	}

	now := s.now().UTC()
	recs := make([]Record, 0, len(in.Rows))
	skipped := 0

	for _, row := range in.Rows {
		id, payload, ok := kind.Normalize(row)
		if !ok {
			skipped++
			continue
		}
		if id == "" {
			id = NewID(kind.Prefix)
		}
		ownerID := owner
		recs = append(recs, Record{
			ID:        id,
			Kind:      kind.Key,
			OwnerID:   &ownerID,
			Payload:   payload,
			CreatedAt: now,
		})
	}

	if len(recs) > 0 {
		if err := s.store.InsertRecords(ctx, kind, recs); err != nil {
			return nil, fmt.Errorf("import %s: %w", kind.Key, err)
		}
	}

	logging.WithFields(ctx, "kind", kind.Key, "rows", len(in.Rows)).
		Info("import completed", "inserted", len(recs), "skipped", skipped)

	s.audit.Record(ctx, AuditEvent{
		ActorID: actor.ID,
		Action:  ActionImport,
		Entity:  kind.Key,
		Meta: map[string]any{
			"count":   len(recs),
			"skipped": skipped,
			"email":   actor.Email,
		},
	})

	return recs, nil
}
