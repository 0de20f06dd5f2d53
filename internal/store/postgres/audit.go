package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/crm/internal/core"
)

func (s *Store) InsertAudit(ctx context.Context, e *core.AuditEntry) error {
	var meta []byte
	if e.Meta != nil {
		var err error
		if meta, err = json.Marshal(e.Meta); err != nil {
			meta = nil // Fall back to nil if marshaling fails
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, entity, entity_id, ip, user_agent, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, string(e.Action), e.Entity, e.EntityID, e.IP, e.UserAgent, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, f core.AuditFilter) ([]core.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Entity != "" {
		args = append(args, f.Entity)
		where = append(where, fmt.Sprintf("entity = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, user_id, action, entity, entity_id, ip, user_agent, meta, created_at FROM audit_logs")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			e      core.AuditEntry
			action string
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.Entity, &e.EntityID,
			&e.IP, &e.UserAgent, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Action = core.AuditAction(action)
		if meta != nil {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
