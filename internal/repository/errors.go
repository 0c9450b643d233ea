package repository

import "errors"

// Sentinel errors shared by the repositories. Handlers never see these
// directly; the gateway translates them into the apperr taxonomy.
var (
	ErrEmailExists = errors.New("email already exists")
	ErrPhoneExists = errors.New("phone already exists")
	ErrNotFound    = errors.New("not found")
)
