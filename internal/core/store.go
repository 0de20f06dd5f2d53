package core

import (
	"context"
	"time"
)

// RecordStore persists records of every kind. Implementations return
// ErrNotFound for missing ids and ErrConflict for duplicate ids.
type RecordStore interface {
	ListRecords(ctx context.Context, kind *KindDefinition, q ListQuery) ([]Record, error)
	GetRecord(ctx context.Context, kind *KindDefinition, id string) (*Record, error)

	// InsertRecords writes all records in one transaction.
	InsertRecords(ctx context.Context, kind *KindDefinition, recs []Record) error
	UpdateRecord(ctx context.Context, kind *KindDefinition, rec *Record) error
	DeleteRecord(ctx context.Context, kind *KindDefinition, id string) error
	ClearRecords(ctx context.Context, kind *KindDefinition) (int64, error)
}

// UserStore persists user accounts. Email uniqueness violations are ErrConflict.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	SetLastLogin(ctx context.Context, id string, at time.Time) error
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	InsertAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store combines every persistence concern the service needs.
type Store interface {
	RecordStore
	UserStore
	AuditStore
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(u *User) (string, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}
