package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novahr/nova-authz/internal/authz"
)

const fkViolation = "23503"

// Repository provides PostgreSQL backed persistence for permission grants.
// Its read methods satisfy authz.GrantStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindUserOverride returns the single override for (user, permission), or nil.
func (r *Repository) FindUserOverride(ctx context.Context, userID int64, permission string) (*authz.Grant, error) {
	return r.findGrant(ctx,
		`SELECT permission, decision FROM user_permissions WHERE user_id = $1 AND permission = $2`,
		userID, permission)
}

// FindRoleGrant returns the single grant for (role, permission), or nil.
func (r *Repository) FindRoleGrant(ctx context.Context, roleID int64, permission string) (*authz.Grant, error) {
	return r.findGrant(ctx,
		`SELECT permission, decision FROM role_permissions WHERE role_id = $1 AND permission = $2`,
		roleID, permission)
}

// ListUserOverrides returns every override for a user in insertion order.
func (r *Repository) ListUserOverrides(ctx context.Context, userID int64) ([]authz.Grant, error) {
	return r.listGrants(ctx,
		`SELECT permission, decision FROM user_permissions WHERE user_id = $1 ORDER BY id`,
		userID)
}

// ListRoleGrants returns every grant for a role in insertion order.
func (r *Repository) ListRoleGrants(ctx context.Context, roleID int64) ([]authz.Grant, error) {
	return r.listGrants(ctx,
		`SELECT permission, decision FROM role_permissions WHERE role_id = $1 ORDER BY id`,
		roleID)
}

// UpsertUserOverride inserts or replaces a user override.
func (r *Repository) UpsertUserOverride(ctx context.Context, userID int64, permission string, decision authz.Decision) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_permissions (user_id, permission, decision)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, permission) DO UPDATE SET decision = EXCLUDED.decision, updated_at = now()`,
		userID, permission, decision)
	return mapSubjectError(err)
}

// DeleteUserOverride removes a user override; reports whether a row existed.
func (r *Repository) DeleteUserOverride(ctx context.Context, userID int64, permission string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2`,
		userID, permission)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertRoleGrant inserts or replaces a role grant.
func (r *Repository) UpsertRoleGrant(ctx context.Context, roleID int64, permission string, decision authz.Decision) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission, decision)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (role_id, permission) DO UPDATE SET decision = EXCLUDED.decision, updated_at = now()`,
		roleID, permission, decision)
	return mapSubjectError(err)
}

// DeleteRoleGrant removes a role grant; reports whether a row existed.
func (r *Repository) DeleteRoleGrant(ctx context.Context, roleID int64, permission string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission = $2`,
		roleID, permission)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) findGrant(ctx context.Context, query string, args ...any) (*authz.Grant, error) {
	var grant authz.Grant
	err := r.pool.QueryRow(ctx, query, args...).Scan(&grant.Permission, &grant.Decision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *Repository) listGrants(ctx context.Context, query string, args ...any) ([]authz.Grant, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []authz.Grant
	for rows.Next() {
		var grant authz.Grant
		if err := rows.Scan(&grant.Permission, &grant.Decision); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func mapSubjectError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
		return fmt.Errorf("%w: %s", ErrSubjectNotFound, pgErr.ConstraintName)
	}
	return err
}
