package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/petlink-az/auth-service/internal/model"
)

// UserRepo persists the two principal variants. Admins live in 'admin_users'
// with their role set in 'admin_user_roles'; consumers live in
// 'consumer_users'. The tables are independent; the kind discriminator picks
// which one an operation touches.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// CreateConsumer inserts a consumer row and returns its ID.
func (r *UserRepo) CreateConsumer(ctx context.Context, email, phone, passwordHash string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO consumer_users (email, phone, password_hash) VALUES (?,?,?)",
		email, phone, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			if strings.Contains(strings.ToLower(err.Error()), "phone") {
				return 0, ErrPhoneExists
			}
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateAdmin inserts an admin row together with its role set. Role
// assignment is atomic with account creation: if any role insert fails the
// transaction rolls back and no roleless admin row survives.
func (r *UserRepo) CreateAdmin(ctx context.Context, email, passwordHash string, roles []string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO admin_users (email, password_hash) VALUES (?,?)",
		email, passwordHash)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO admin_user_roles (admin_user_id, role) VALUES (?,?)",
			id, role); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// AdminByEmail fetches an admin with its roles by normalized email.
func (r *UserRepo) AdminByEmail(ctx context.Context, email string) (model.Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var a model.Admin
	var lastLogin sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,last_login_at,created_at,updated_at FROM admin_users WHERE email=? LIMIT 1",
		email).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.IsActive, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Admin{}, ErrNotFound
		}
		return model.Admin{}, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	a.Roles, err = r.adminRoles(ctx, a.ID)
	return a, err
}

// AdminByID fetches an admin with its roles by id.
func (r *UserRepo) AdminByID(ctx context.Context, id uint64) (model.Admin, error) {
	var a model.Admin
	var lastLogin sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,last_login_at,created_at,updated_at FROM admin_users WHERE id=? LIMIT 1",
		id).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.IsActive, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Admin{}, ErrNotFound
		}
		return model.Admin{}, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	a.Roles, err = r.adminRoles(ctx, a.ID)
	return a, err
}

func (r *UserRepo) adminRoles(ctx context.Context, id uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT role FROM admin_user_roles WHERE admin_user_id=?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ConsumerByEmail fetches a consumer by normalized email.
func (r *UserRepo) ConsumerByEmail(ctx context.Context, email string) (model.Consumer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.consumerBy(ctx, "email", email)
}

// ConsumerByPhone fetches a consumer by phone number.
func (r *UserRepo) ConsumerByPhone(ctx context.Context, phone string) (model.Consumer, error) {
	return r.consumerBy(ctx, "phone", phone)
}

// ConsumerByID fetches a consumer by id.
func (r *UserRepo) ConsumerByID(ctx context.Context, id uint64) (model.Consumer, error) {
	return r.consumerBy(ctx, "id", id)
}

func (r *UserRepo) consumerBy(ctx context.Context, column string, value any) (model.Consumer, error) {
	var u model.Consumer
	var lastLogin sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,phone,password_hash,is_active,last_login_at,created_at,updated_at FROM consumer_users WHERE "+column+"=? LIMIT 1",
		value).Scan(&u.ID, &u.Email, &u.Phone, &u.PasswordHash, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Consumer{}, ErrNotFound
		}
		return model.Consumer{}, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return u, nil
}

// TouchLastLogin records a successful login time for the principal.
func (r *UserRepo) TouchLastLogin(ctx context.Context, kind model.Kind, id uint64, at time.Time) error {
	table := "consumer_users"
	if kind == model.KindAdmin {
		table = "admin_users"
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE "+table+" SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

// isDuplicate reports whether err is a MySQL duplicate-key violation (1062).
func isDuplicate(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
