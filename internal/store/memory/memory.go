// Package memory is an in-process implementation of core.Store for tests and
// local development. Nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/crm/internal/core"
)

// table keeps records of one kind in insertion order.
type table struct {
	order []string
	rows  map[string]core.Record
}

// Store is a thread-safe in-memory store.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	users  map[string]core.User
	uorder []string
	audit  []core.AuditEntry

	// FailAudit, when set, makes InsertAudit return it.
	FailAudit error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		users:  make(map[string]core.User),
	}
}

func (s *Store) table(kind string) *table {
	t, ok := s.tables[kind]
	if !ok {
		t = &table{rows: make(map[string]core.Record)}
		s.tables[kind] = t
	}
	return t
}

func copyRecord(r core.Record) core.Record {
	if r.Payload != nil {
		p := make(core.Payload, len(r.Payload))
		for k, v := range r.Payload {
			p[k] = v
		}
		r.Payload = p
	}
	if r.OwnerID != nil {
		o := *r.OwnerID
		r.OwnerID = &o
	}
	if r.UpdatedAt != nil {
		u := *r.UpdatedAt
		r.UpdatedAt = &u
	}
	return r
}

// --- Records ---

func (s *Store) ListRecords(_ context.Context, kind *core.KindDefinition, q core.ListQuery) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[kind.Key]
	if !ok {
		return []core.Record{}, nil
	}
	search := strings.ToLower(q.Search)

	var matched []core.Record
	for _, id := range t.order {
		r := t.rows[id]
		if q.OwnerID != "" && (r.OwnerID == nil || *r.OwnerID != q.OwnerID) {
			continue
		}
		if search != "" && kind.IsScalar() {
			v, _ := r.Payload[kind.ScalarField].(string)
			if !strings.Contains(strings.ToLower(v), search) {
				continue
			}
		}
		matched = append(matched, r)
	}

	if q.Offset >= len(matched) {
		return []core.Record{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]core.Record, len(matched))
	for i, r := range matched {
		out[i] = copyRecord(r)
	}
	return out, nil
}

func (s *Store) GetRecord(_ context.Context, kind *core.KindDefinition, id string) (*core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[kind.Key]
	if !ok {
		return nil, core.ErrNotFound
	}
	r, ok := t.rows[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	c := copyRecord(r)
	return &c, nil
}

func (s *Store) InsertRecords(_ context.Context, kind *core.KindDefinition, recs []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind.Key)

	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if _, exists := t.rows[r.ID]; exists || seen[r.ID] {
			return fmt.Errorf("record %s: %w", r.ID, core.ErrConflict)
		}
		seen[r.ID] = true
	}

	for _, r := range recs {
		t.rows[r.ID] = copyRecord(r)
		t.order = append(t.order, r.ID)
	}
	return nil
}

func (s *Store) UpdateRecord(_ context.Context, kind *core.KindDefinition, rec *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind.Key)
	if _, ok := t.rows[rec.ID]; !ok {
		return core.ErrNotFound
	}
	t.rows[rec.ID] = copyRecord(*rec)
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, kind *core.KindDefinition, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(kind.Key)
	if _, ok := t.rows[id]; !ok {
		return core.ErrNotFound
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ClearRecords(_ context.Context, kind *core.KindDefinition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if t, ok := s.tables[kind.Key]; ok {
		n = int64(len(t.rows))
	}
	delete(s.tables, kind.Key)
	return n, nil
}

// --- Users ---

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user %s: %w", u.ID, core.ErrConflict)
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
	}
	s.users[u.ID] = *u
	s.uorder = append(s.uorder, u.ID)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.User, 0, len(s.uorder))
	for _, id := range s.uorder {
		out = append(out, s.users[id])
	}
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return core.ErrNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.users, id)
	for i, uid := range s.uorder {
		if uid == id {
			s.uorder = append(s.uorder[:i], s.uorder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) SetLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.LastLogin = &at
	s.users[id] = u
	return nil
}

// --- Audit ---

func (s *Store) InsertAudit(_ context.Context, e *core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAudit != nil {
		return s.FailAudit
	}
	s.audit = append(s.audit, *e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, f core.AuditFilter) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Offset >= len(matched) {
		return []core.AuditEntry{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// AuditEntries returns a copy of every audit entry in insertion order.
func (s *Store) AuditEntries() []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
