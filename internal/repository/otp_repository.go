package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/petlink-az/auth-service/internal/model"
)

// OtpRepo persists one-time verification codes. Rows are append-only except
// for the single verified flag flip; superseded codes are simply newer rows
// for the same (phone, purpose).
type OtpRepo struct{ DB *sql.DB }

func NewOtpRepo(db *sql.DB) *OtpRepo { return &OtpRepo{DB: db} }

// Create inserts a code row and returns its ID.
func (r *OtpRepo) Create(ctx context.Context, c model.OtpCode) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO otp_codes (phone, code, purpose, created_at, expires_at) VALUES (?,?,?,?,?)",
		c.Phone, c.Code, string(c.Purpose), c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Delete removes a code row. Used to roll back a persisted code whose SMS
// dispatch failed.
func (r *OtpRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM otp_codes WHERE id=?", id)
	return err
}

// LatestUnverified returns the newest unverified code for (phone, purpose),
// or ErrNotFound. Expiry is not filtered here; the service decides what a
// stale row means (cool-down bookkeeping vs. verification).
func (r *OtpRepo) LatestUnverified(ctx context.Context, phone string, purpose model.OtpPurpose) (model.OtpCode, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, phone, code, purpose, created_at, expires_at, verified, verified_at
		 FROM otp_codes WHERE phone=? AND purpose=? AND verified=0
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		phone, string(purpose))
	return scanOtp(row)
}

// LatestByCode returns the newest code row matching (phone, purpose, code)
// regardless of verified state, or ErrNotFound.
func (r *OtpRepo) LatestByCode(ctx context.Context, phone string, purpose model.OtpPurpose, code string) (model.OtpCode, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, phone, code, purpose, created_at, expires_at, verified, verified_at
		 FROM otp_codes WHERE phone=? AND purpose=? AND code=?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		phone, string(purpose), code)
	return scanOtp(row)
}

// MarkVerified flips the verified flag exactly once. Returns ErrNotFound if
// the row was already verified or is gone, so a concurrent double-consume
// loses cleanly.
func (r *OtpRepo) MarkVerified(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE otp_codes SET verified=1, verified_at=? WHERE id=? AND verified=0",
		at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup deletes expired rows and rows verified longer than retention ago
// for the phone, excluding one row the caller is still working with. Pure
// garbage collection; correctness never depends on it running.
func (r *OtpRepo) Cleanup(ctx context.Context, phone string, excludingID uint64, retention time.Duration) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM otp_codes WHERE phone=? AND id<>? AND (expires_at<? OR (verified=1 AND verified_at<?))`,
		phone, excludingID, now, now.Add(-retention))
	return err
}

func scanOtp(row *sql.Row) (model.OtpCode, error) {
	var c model.OtpCode
	var purpose string
	var verifiedAt sql.NullTime
	err := row.Scan(&c.ID, &c.Phone, &c.Code, &purpose, &c.CreatedAt, &c.ExpiresAt, &c.Verified, &verifiedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.OtpCode{}, ErrNotFound
		}
		return model.OtpCode{}, err
	}
	c.Purpose = model.OtpPurpose(purpose)
	if verifiedAt.Valid {
		c.VerifiedAt = &verifiedAt.Time
	}
	return c, nil
}
