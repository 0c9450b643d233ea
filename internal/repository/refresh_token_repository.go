package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/petlink-az/auth-service/internal/model"
	"github.com/petlink-az/auth-service/internal/utils"
)

// RefreshTokenRepo keeps exactly one refresh token per principal. The table
// has a primary key on (principal_kind, principal_id), so rotation is a
// single atomic upsert that discards whatever value was stored before.
// Only SHA-256 hashes of the opaque value are persisted.
type RefreshTokenRepo struct{ DB *sql.DB }

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo { return &RefreshTokenRepo{DB: db} }

// Rotate generates a fresh opaque token for the principal and stores its
// hash, replacing any previous value. Concurrent rotations for the same
// principal are last-writer-wins; the loser's raw value simply stops
// validating.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, kind model.Kind, principalID uint64, ttlDays int) (utils.RefreshToken, error) {
	tok, err := utils.NewRefreshToken(ttlDays)
	if err != nil {
		return utils.RefreshToken{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (principal_kind, principal_id, token_hash, expires_at)
		 VALUES (?,?,?,?)
		 ON DUPLICATE KEY UPDATE token_hash=VALUES(token_hash), expires_at=VALUES(expires_at)`,
		string(kind), principalID, utils.HashRefreshRaw(tok.Raw), tok.Exp)
	if err != nil {
		return utils.RefreshToken{}, err
	}
	return tok, nil
}

// ValidateAndConsume reports whether presented matches the currently stored
// value for the principal and has not expired. It does not rotate; the
// gateway rotates explicitly after a successful validation so that a stale
// value can never be replayed past the rotation.
func (r *RefreshTokenRepo) ValidateAndConsume(ctx context.Context, kind model.Kind, principalID uint64, presented string) (bool, error) {
	var storedHash string
	var expiresAt time.Time
	err := r.DB.QueryRowContext(ctx,
		"SELECT token_hash, expires_at FROM refresh_tokens WHERE principal_kind=? AND principal_id=? LIMIT 1",
		string(kind), principalID).Scan(&storedHash, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	if time.Now().UTC().After(expiresAt) {
		return false, nil
	}
	return storedHash == utils.HashRefreshRaw(presented), nil
}

// Lookup resolves the owning principal of a presented raw token. The refresh
// cookie carries only the opaque value, so this is how the refresh endpoint
// finds out who is asking.
func (r *RefreshTokenRepo) Lookup(ctx context.Context, presented string) (model.Kind, uint64, error) {
	var kind string
	var principalID uint64
	var expiresAt time.Time
	err := r.DB.QueryRowContext(ctx,
		"SELECT principal_kind, principal_id, expires_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		utils.HashRefreshRaw(presented)).Scan(&kind, &principalID, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", 0, ErrNotFound
		}
		return "", 0, err
	}
	if time.Now().UTC().After(expiresAt) {
		return "", 0, ErrNotFound
	}
	return model.Kind(kind), principalID, nil
}

// Invalidate removes the stored refresh token for the principal, ending the
// session server-side.
func (r *RefreshTokenRepo) Invalidate(ctx context.Context, kind model.Kind, principalID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE principal_kind=? AND principal_id=?",
		string(kind), principalID)
	return err
}
