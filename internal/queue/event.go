// Package queue defines message payloads exchanged over the message broker.
package queue

// UserRegisteredEvent is published when a new principal is created. It lets
// downstream consumers (welcome messaging, fraud screening, analytics) react
// without querying the identity store.
type UserRegisteredEvent struct {
	UserID       uint64 `json:"user_id"`
	Kind         string `json:"kind"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

// UserLoggedInEvent is published after every successful login for audit
// trails and anomaly detection.
type UserLoggedInEvent struct {
	UserID     uint64 `json:"user_id"`
	Kind       string `json:"kind"`
	Method     string `json:"method"` // email | mobile
	LoggedInAt string `json:"logged_in_at"`
}
