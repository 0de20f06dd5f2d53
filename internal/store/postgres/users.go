package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/crm/internal/core"
)

const userColumns = "id, email, name, password_hash, role, verified, last_login, created_at, updated_at"

func getUser(ctx context.Context, db DBTX, where string, arg any) (*core.User, error) {
	var u core.User
	var role string
	err := db.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Verified,
		&u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	u.Role = core.Role(role)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, verified, last_login, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.Verified, u.LastLogin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return getUser(ctx, s.pool, "id = $1", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return getUser(ctx, s.pool, "lower(email) = lower($1)", email)
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		var u core.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Verified,
			&u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = core.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, password_hash = $4, role = $5, verified = $6, updated_at = $7
		 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), u.Verified, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
