package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/crm/internal/config"
)

// Options holds the tunables the service reads from configuration.
type Options struct {
	MaxImportRows    int
	ImportRateLimit  int
	ImportRateWindow time.Duration

	LoginRateEnabled bool
	LoginRateLimit   int
	LoginRateWindow  time.Duration

	// AllowBulkClear enables delete-all. Off outside development.
	AllowBulkClear bool

	// OpenRoleSignup honours the role requested at registration.
	OpenRoleSignup bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxImportRows:    20000,
		ImportRateLimit:  3,
		ImportRateWindow: 60 * time.Second,
		LoginRateEnabled: true,
		LoginRateLimit:   10,
		LoginRateWindow:  60 * time.Second,
	}
}

// OptionsFromConfig maps application configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxImportRows:    cfg.Import.MaxRows,
		ImportRateLimit:  cfg.Import.RateLimit,
		ImportRateWindow: cfg.Import.RateWindow,
		LoginRateEnabled: cfg.Rate.Enabled,
		LoginRateLimit:   cfg.Rate.LoginLimit,
		LoginRateWindow:  cfg.Rate.LoginWindow,
		AllowBulkClear:   cfg.App.AllowsBulkClear(),
		OpenRoleSignup:   cfg.Auth.OpenRoleSignup,
	}
}

// Service provides the core business logic for records, users and audit.
type Service struct {
	store   Store
	limiter *RateLimiter
	audit   *AuditRecorder
	tokens  TokenIssuer
	hasher  PasswordHasher
	opts    Options
	now     func() time.Time
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Store   Store
	Limiter *RateLimiter
	Tokens  TokenIssuer
	Hasher  PasswordHasher
}

// NewService creates a new Service instance.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if deps.Tokens == nil || deps.Hasher == nil {
		return nil, errors.New("service: token issuer and password hasher are required")
	}
	if deps.Limiter == nil {
		deps.Limiter = NewRateLimiter()
	}

	return &Service{
		store:   deps.Store,
		limiter: deps.Limiter,
		audit:   NewAuditRecorder(deps.Store),
		tokens:  deps.Tokens,
		hasher:  deps.Hasher,
		opts:    opts,
		now:     time.Now,
	}, nil
}

// SetClock replaces the service clock. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.audit.now = now
}

// Audit returns the audit recorder shared by all operations.
func (s *Service) Audit() *AuditRecorder {
	return s.audit
}

// ListKinds returns all registered entity kinds.
func (s *Service) ListKinds() []*KindDefinition {
	return All()
}

// clampQuery applies the kind's pagination bounds to q.
func clampQuery(kind *KindDefinition, q ListQuery) ListQuery {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = kind.DefaultLimit
	}
	if kind.MaxLimit > 0 && (q.Limit == 0 || q.Limit > kind.MaxLimit) {
		q.Limit = kind.MaxLimit
	}
	if !kind.IsScalar() {
		q.Search = ""
	}
	return q
}

// List returns records of kind matching q. When export is set the listing
// is recorded in the audit log; the result is the same either way.
func (s *Service) List(ctx context.Context, actor Actor, kind *KindDefinition, q ListQuery, export bool) ([]Record, error) {
	recs, err := s.store.ListRecords(ctx, kind, clampQuery(kind, q))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Key, err)
	}

	if export {
		s.audit.Record(ctx, AuditEvent{
			ActorID: actor.ID,
			Action:  ActionExport,
			Entity:  kind.Key,
			Meta:    map[string]any{"count": len(recs), "email": actor.Email},
		})
	}

	return recs, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, kind *KindDefinition, id string) (*Record, error) {
	rec, err := s.store.GetRecord(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound(kind.Label, id)
		}
		return nil, fmt.Errorf("get %s: %w", kind.Key, err)
	}
	return rec, nil
}

// resolveOwner returns the explicit owner if it names an existing user,
// otherwise the actor.
func (s *Service) resolveOwner(ctx context.Context, actor Actor, ownerID string) (string, error) {
	if ownerID == "" {
		return actor.ID, nil
	}
	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", Invalid("owner %q does not exist", ownerID)
		}
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return ownerID, nil
}
