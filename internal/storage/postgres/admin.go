package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gemstore/internal/domain/auth"
)

const (
	adminColumns = `id, username, email, password_hash, created_at, updated_at`

	findAdminByUsernameSQL = `SELECT ` + adminColumns + ` FROM admin_users WHERE username = $1`

	findAdminByIDSQL = `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`

	upsertAdminSQL = `INSERT INTO admin_users (username, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			updated_at = now()
		RETURNING id, created_at, updated_at`
)

var _ auth.Repository = (*AdminRepository)(nil)

// AdminRepository implements auth.Repository backed by PostgreSQL.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository returns an AdminRepository that uses the given pool.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// FindByUsername looks up an admin by exact username.
func (r *AdminRepository) FindByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	return r.find(ctx, findAdminByUsernameSQL, username)
}

// FindByID looks up an admin by id.
func (r *AdminRepository) FindByID(ctx context.Context, id int64) (*auth.Principal, error) {
	return r.find(ctx, findAdminByIDSQL, id)
}

func (r *AdminRepository) find(ctx context.Context, sql string, arg any) (*auth.Principal, error) {
	var p auth.Principal
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("finding admin %v: %w", arg, err)
	}
	return &p, nil
}

// Upsert creates an admin or replaces the email and password hash of the
// existing one with the same username.
func (r *AdminRepository) Upsert(ctx context.Context, p *auth.Principal) error {
	err := r.pool.QueryRow(ctx, upsertAdminSQL, p.Username, p.Email, p.PasswordHash).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting admin %q: %w", p.Username, err)
	}
	return nil
}
