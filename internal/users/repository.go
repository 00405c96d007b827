package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/platform/db"
	"github.com/facilityhub/backoffice/internal/shared"
)

// Repository defines persistence operations for users.
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Create(ctx context.Context, user *User) error
	Save(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

const userColumns = `id, name, email, password_hash, role, permissions, department, profile_image, is_active, created_at, updated_at`

// Get fetches a user by id.
func (r *PGRepository) Get(ctx context.Context, id string) (*User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by case-insensitive email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email_key = $1`, EmailKey(email))
	return scanUser(row)
}

// List returns a page of users and the total count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Role != "" {
		args = append(args, string(filters.Role))
		where += ` AND role = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR email ILIKE $` + n + `)`
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	page, perPage := shared.NormalizePage(filters.Page, filters.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

// Create inserts a user. A duplicate email yields shared.ErrConflict.
func (r *PGRepository) Create(ctx context.Context, u *User) error {
	_, err := r.q.Exec(ctx, `INSERT INTO users (id, name, email, email_key, password_hash, role, permissions, department, profile_image, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Name, u.Email, EmailKey(u.Email), u.PasswordHash, string(u.Role), u.Permissions.Strings(),
		u.Department, u.ProfileImage, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return mapWriteError(err)
}

// Save overwrites every mutable column of u.
func (r *PGRepository) Save(ctx context.Context, u *User) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET name = $2, email = $3, email_key = $4, password_hash = $5, role = $6,
		permissions = $7, department = $8, profile_image = $9, is_active = $10, updated_at = $11 WHERE id = $1`,
		u.ID, u.Name, u.Email, EmailKey(u.Email), u.PasswordHash, string(u.Role), u.Permissions.Strings(),
		u.Department, u.ProfileImage, u.IsActive, u.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user by id.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EmailTaken reports whether another user already owns email.
func (r *PGRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email_key = $1 AND id <> $2)`, EmailKey(email), excludeID).Scan(&exists)
	return exists, err
}

// WithTx runs fn against a transaction-scoped repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&PGRepository{q: tx})
	})
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u     User
		role  string
		perms []string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &perms, &u.Department, &u.ProfileImage, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = authz.Role(role)
	u.Permissions = authz.ParseCapabilities(perms)
	return &u, nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("users: email already in use: %w", shared.ErrConflict)
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
