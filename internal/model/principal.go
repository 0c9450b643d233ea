package model

import "time"

// Kind discriminates the two principal variants. Admins carry a role set and
// a stricter password policy; consumers carry a phone number and no roles.
type Kind string

const (
	KindAdmin    Kind = "ADMIN"
	KindConsumer Kind = "CONSUMER"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool { return k == KindAdmin || k == KindConsumer }

// Admin mirrors the 'admin_users' table plus its role set.
type Admin struct {
	ID           uint64
	Email        string
	PasswordHash string
	IsActive     bool
	Roles        []string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Consumer mirrors the 'consumer_users' table.
type Consumer struct {
	ID           uint64
	Email        string
	Phone        string
	PasswordHash string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
