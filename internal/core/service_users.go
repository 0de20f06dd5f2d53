package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// RegisterInput is a self-service signup request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     Role
}

// AuthResult is returned by successful register and login calls.
type AuthResult struct {
	Token string
	User  *User
}

// LoginKey returns the rate limiter key for login attempts from ip.
func LoginKey(ip string) string {
	return "login:ip:" + ip
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a verified account and signs a token for it. The
// requested role is honoured only when open role signup is enabled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	role := RoleEmployee
	if s.opts.OpenRoleSignup && in.Role.Valid() {
		role = in.Role
	}

	u, err := s.createUser(ctx, in.Email, in.Password, in.Name, role)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, User: u}, nil
}

func (s *Service) createUser(ctx context.Context, email, password, name string, role Role) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, Invalid("email is required")
	}
	if len(password) < MinPasswordLength {
		return nil, Invalid("password must be at least %d characters", MinPasswordLength)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email %s already registered: %w", email, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           NewID("u"),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         role,
		Verified:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// EnsureUser creates the account unless the email is already taken.
// It reports whether a user was created.
func (s *Service) EnsureUser(ctx context.Context, email, password, name string, role Role) (bool, error) {
	_, err := s.createUser(ctx, email, password, name, role)
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login verifies credentials, stamps last_login and signs a token.
// Attempts are rate limited per client IP.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*AuthResult, error) {
	if s.opts.LoginRateEnabled && !s.limiter.Allow(LoginKey(ip), s.opts.LoginRateLimit, s.opts.LoginRateWindow) {
		return nil, fmt.Errorf("too many login attempts: %w", ErrRateLimited)
	}

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("incorrect email or password: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Compare(u.PasswordHash, password) {
		return nil, fmt.Errorf("incorrect email or password: %w", ErrUnauthorized)
	}

	now := s.now().UTC()
	if err := s.store.SetLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("set last login: %w", err)
	}
	u.LastLogin = &now

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, User: u}, nil
}

// Authenticate resolves the user named by a verified token subject.
// Unknown users are unauthorized; unverified users are forbidden.
func (s *Service) Authenticate(ctx context.Context, userID string) (*User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("could not validate credentials: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.Verified {
		return nil, fmt.Errorf("user is not verified: %w", ErrForbidden)
	}
	return u, nil
}

func requireAdmin(actor Actor) error {
	if !IsAdmin(actor) {
		return fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	return nil
}

// ListUsers returns every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// GetUser returns one account. Admin only.
func (s *Service) GetUser(ctx context.Context, actor Actor, id string) (*User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	return u, nil
}

// UpdateUser applies patch to an account. Admin only.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, id string, patch UserPatch) (*User, error) {
	u, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" {
			return nil, Invalid("email must not be empty")
		}
		if email != u.Email {
			if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
				return nil, fmt.Errorf("email %s already registered: %w", email, ErrConflict)
			} else if !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("lookup user: %w", err)
			}
			u.Email = email
		}
	}
	if patch.Name != nil {
		u.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, Invalid("unknown role %q", *patch.Role)
		}
		u.Role = *patch.Role
	}
	if patch.Verified != nil {
		u.Verified = *patch.Verified
	}

	now := s.now().UTC()
	u.UpdatedAt = &now

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionUpdate,
		Entity:   "users",
		EntityID: id,
		Meta:     map[string]any{"email": actor.Email},
	})

	return u, nil
}

// ChangePassword sets a new password for an account. Admin only.
func (s *Service) ChangePassword(ctx context.Context, actor Actor, id, password string) error {
	u, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return Invalid("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u.PasswordHash = hash
	u.UpdatedAt = &now

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionChangePassword,
		Entity:   "users",
		EntityID: id,
		Meta:     map[string]any{"email": actor.Email, "target": u.Email},
	})

	return nil
}

// DeleteUser removes an account. Admin only; admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return Invalid("cannot delete yourself")
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound("user", id)
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.audit.Record(ctx, AuditEvent{
		ActorID:  actor.ID,
		Action:   ActionDelete,
		Entity:   "users",
		EntityID: id,
		Meta:     map[string]any{"email": actor.Email},
	})

	return nil
}

// ListAudit returns audit entries. Admin only.
func (s *Service) ListAudit(ctx context.Context, actor Actor, f AuditFilter) ([]AuditEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, f)
}
