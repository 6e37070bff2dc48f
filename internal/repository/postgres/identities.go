package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/splax/athlink/internal/domain"
)

const identityColumns = `id, name, email, password_hash, age, bio, sport, profile_image, created_at, updated_at`

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var (
		u     domain.Identity
		age   sql.NullInt32
		image sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &age, &u.Bio, &u.Sport, &image, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	if age.Valid {
		v := int(age.Int32)
		u.Age = &v
	}
	u.ProfileImage = image.String
	return &u, nil
}

// CreateIdentity inserts an identity.
func (r *Repository) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		return fmt.Errorf("identity required")
	}
	const query = `INSERT INTO users (id, name, email, password_hash, age, bio, sport, profile_image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`
	_, err := r.pool.Exec(ctx, query,
		identity.ID,
		identity.Name,
		strings.ToLower(strings.TrimSpace(identity.Email)),
		identity.PasswordHash,
		intPtrToNil(identity.Age),
		identity.Bio,
		identity.Sport,
		emptyToNil(identity.ProfileImage),
		identity.CreatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	identity.UpdatedAt = identity.CreatedAt
	return nil
}

// GetIdentity loads an identity with its follow graph.
func (r *Repository) GetIdentity(ctx context.Context, id string) (*domain.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE id = $1`, id)
	u, err := scanIdentity(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadGraph(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetIdentityByEmail fetches an identity by email.
func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanIdentity(row)
}

// UpdateProfile applies the non-nil fields of update and returns the new record.
func (r *Repository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Identity, error) {
	const query = `UPDATE users SET
			name = COALESCE($2, name),
			age = COALESCE($3, age),
			bio = COALESCE($4, bio),
			sport = COALESCE($5, sport),
			profile_image = COALESCE($6, profile_image),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + identityColumns
	row := r.pool.QueryRow(ctx, query, id, update.Name, intPtrToNil(update.Age), update.Bio, update.Sport, update.ProfileImage)
	u, err := scanIdentity(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadGraph(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteIdentity removes an identity; follows, samples and posts cascade.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) error {
	return expectAffected(r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

// ListFollowers returns the ids subscribed to id.
func (r *Repository) ListFollowers(ctx context.Context, id string) ([]string, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, mapError(err)
	}
	if !exists {
		return nil, mapError(pgx.ErrNoRows)
	}
	return r.listIDs(ctx, `SELECT follower_id FROM follows WHERE target_id = $1`, id)
}

// Follow records followerID subscribing to targetID. Repeated follows are a no-op.
func (r *Repository) Follow(ctx context.Context, followerID, targetID string) error {
	const query = `INSERT INTO follows (follower_id, target_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (follower_id, target_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, followerID, targetID)
	return mapError(err)
}

// Unfollow removes the subscription if present.
func (r *Repository) Unfollow(ctx context.Context, followerID, targetID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND target_id = $2`, followerID, targetID)
	return mapError(err)
}

func (r *Repository) loadGraph(ctx context.Context, u *domain.Identity) error {
	followers, err := r.listIDs(ctx, `SELECT follower_id FROM follows WHERE target_id = $1`, u.ID)
	if err != nil {
		return err
	}
	following, err := r.listIDs(ctx, `SELECT target_id FROM follows WHERE follower_id = $1`, u.ID)
	if err != nil {
		return err
	}
	u.Followers = followers
	u.Following = following
	return nil
}

func (r *Repository) listIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, mapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}
