package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novahr/nova-authz/internal/authz"
)

// Repository provides PostgreSQL backed lookups. It satisfies
// authz.IdentityProvider: absent records come back as nil with a nil error.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindUserByID fetches one user record.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*authz.User, error) {
	var user authz.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, role_id, status FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.RoleID, &user.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindRoleByID fetches one role with its permission token set.
func (r *Repository) FindRoleByID(ctx context.Context, id int64) (*authz.Role, error) {
	var role authz.Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, permissions FROM roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Permissions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListActiveUserIDs returns the ids of all active users, ordered by id.
func (r *Repository) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM users WHERE status = $1 ORDER BY id`, StatusActive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
