package core

import (
	"time"
)

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEmployee
}

// User is an account that can authenticate and own records.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Verified     bool       `json:"verified"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// ActorFromUser builds the actor for an authenticated user.
func ActorFromUser(u *User) Actor {
	return Actor{ID: u.ID, Email: u.Email, Role: u.Role}
}

// Payload is the schema-less attribute bag carried by a record.
type Payload map[string]any

// Record is a persisted entity of one kind with an optional owner.
// Owner nil means the record is unowned and communally editable.
type Record struct {
	ID        string
	Kind      string
	OwnerID   *string
	Payload   Payload
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// ListQuery filters and paginates record listings.
type ListQuery struct {
	Offset  int
	Limit   int // 0 means no limit
	OwnerID string
	Search  string // case-insensitive substring match on the scalar field
}

// UserPatch holds the admin-editable user fields. Nil fields are unchanged.
type UserPatch struct {
	Email    *string
	Name     *string
	Role     *Role
	Verified *bool
}

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionCreate         AuditAction = "create"
	ActionImport         AuditAction = "import"
	ActionExport         AuditAction = "export"
	ActionUpdate         AuditAction = "update"
	ActionDelete         AuditAction = "delete"
	ActionClear          AuditAction = "clear"
	ActionChangePassword AuditAction = "change_password"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	Action    AuditAction    `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  *string        `json:"entity_id"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter contains filtering options for querying audit logs.
type AuditFilter struct {
	Entity string
	Action AuditAction
	UserID string
	Offset int
	Limit  int
}

// DefaultAuditLimit is used when an audit query does not set a limit.
const DefaultAuditLimit = 100

// strPtr returns a pointer to s, or nil when s is empty.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
