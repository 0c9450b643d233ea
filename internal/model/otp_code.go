package model

import "time"

// OtpPurpose names the flow a verification code belongs to. Codes are only
// usable for the purpose they were issued for.
type OtpPurpose string

const (
	OtpPurposeRegistration OtpPurpose = "Registration"
	OtpPurposeLogin        OtpPurpose = "Login"
)

// OtpCode mirrors the 'otp_codes' table. A row is created when a code is
// dispatched, mutated exactly once when verified, and removed by cleanup
// after expiry or a retention window past verification.
type OtpCode struct {
	ID         uint64
	Phone      string
	Code       string
	Purpose    OtpPurpose
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Verified   bool
	VerifiedAt *time.Time
}

// Expired reports whether the code's TTL has passed at the given instant.
func (c OtpCode) Expired(now time.Time) bool { return now.After(c.ExpiresAt) }
