package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/crm/internal/logging"
)

// AuditEvent describes one auditable action.
type AuditEvent struct {
	ActorID  string
	Action   AuditAction
	Entity   string
	EntityID string
	Meta     map[string]any
}

// AuditRecorder appends entries to the audit log on a best-effort basis.
// Record never fails: write errors are logged and dropped so the audited
// operation's result stands.
type AuditRecorder struct {
	store AuditStore
	now   func() time.Time
}

// NewAuditRecorder creates a recorder writing to store.
func NewAuditRecorder(store AuditStore) *AuditRecorder {
	return &AuditRecorder{store: store, now: time.Now}
}

// Record writes ev to the audit log. Call it only after the primary write
// has committed.
func (a *AuditRecorder) Record(ctx context.Context, ev AuditEvent) {
	entry := &AuditEntry{
		ID:        NewID("al"),
		UserID:    strPtr(ev.ActorID),
		Action:    ev.Action,
		Entity:    ev.Entity,
		EntityID:  strPtr(ev.EntityID),
		IP:        IPAddressFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Meta:      ev.Meta,
		CreatedAt: a.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Warn("audit write panicked",
				"action", ev.Action, "entity", ev.Entity, "panic", r)
		}
	}()

	if err := a.store.InsertAudit(ctx, entry); err != nil {
		logging.FromContext(ctx).Warn("audit write failed",
			"action", ev.Action,
			"entity", ev.Entity,
			"entity_id", ev.EntityID,
			"error", err,
		)
	}
}

// List returns audit entries matching f, newest first.
func (a *AuditRecorder) List(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return a.store.ListAudit(ctx, f)
}
