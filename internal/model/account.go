package model

import (
	"crypto/subtle"
	"time"
	"unicode/utf8"
)

type AccountID string // internal identifier, never exposed outside the service

const (
	MinPasswordLength  = 6
	MaxDisplayNameSize = 50
)

// Account is the authoritative record of a member's identity and credential
// state. Anything time-dependent takes "now" as a parameter so callers can
// inject a clock.
type Account struct {
	ID                           AccountID  `db:"ID"`
	PublicID                     string     `db:"PublicID"`
	CreatedAt                    time.Time  `db:"CreatedAt"`
	UpdatedAt                    *time.Time `db:"UpdatedAt"`
	DisplayName                  string     `db:"DisplayName"`
	PendingEmail                 string     `db:"PendingEmail"`
	ConfirmedEmail               *string    `db:"ConfirmedEmail"`
	EmailConfirmationToken       *string    `db:"EmailConfirmationToken"`
	EmailConfirmationRequestedAt *time.Time `db:"EmailConfirmationRequestedAt"`
	EmailConfirmationCompletedAt *time.Time `db:"EmailConfirmationCompletedAt"`
	SecurityOperationPerformedAt time.Time  `db:"SecurityOperationPerformedAt"`
	PasswordHash                 *string    `db:"PasswordHash"`
	PhoneNumber                  *string    `db:"PhoneNumber"`
}

// PasswordHasher is the credential-hashing capability the account depends on.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, digest string) bool
}

// CanLogIn reports whether the account has completed email confirmation.
func (a *Account) CanLogIn() bool {
	return a.EmailConfirmationCompletedAt != nil
}

// IsRightPassword checks the candidate against the stored digest. Accounts
// authenticated externally have no digest and always fail the check.
func (a *Account) IsRightPassword(hasher PasswordHasher, candidate string) bool {
	if a.PasswordHash == nil {
		return false
	}
	return hasher.Verify(candidate, *a.PasswordHash)
}

// ResetPassword replaces the stored digest and touches
// SecurityOperationPerformedAt, which invalidates every session issued
// before now.
func (a *Account) ResetPassword(hasher PasswordHasher, newPassword string, now time.Time) error {
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return ErrorWeakPassword
	}
	digest, err := hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = &digest
	a.SecurityOperationPerformedAt = now
	return nil
}

// BeginEmailConfirmation (re-)enters the unconfirmed state with a fresh token.
// Used at registration and whenever the member changes their email address.
func (a *Account) BeginEmailConfirmation(email string, token string, now time.Time) {
	a.PendingEmail = email
	a.ConfirmedEmail = nil
	a.EmailConfirmationToken = &token
	a.EmailConfirmationRequestedAt = &now
	a.EmailConfirmationCompletedAt = nil
}

// ConfirmEmail redeems a confirmation token. Token mismatch and expiry are
// indistinguishable to the caller; the account is not mutated on failure.
func (a *Account) ConfirmEmail(token string, now time.Time, window time.Duration) error {
	if a.EmailConfirmationToken == nil || a.EmailConfirmationRequestedAt == nil {
		return ErrorInvalidOrExpiredToken
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(*a.EmailConfirmationToken)) != 1 {
		return ErrorInvalidOrExpiredToken
	}
	if now.Sub(*a.EmailConfirmationRequestedAt) > window {
		return ErrorInvalidOrExpiredToken
	}

	confirmed := a.PendingEmail
	a.ConfirmedEmail = &confirmed
	a.EmailConfirmationToken = nil
	a.EmailConfirmationCompletedAt = &now
	return nil
}

// SessionValidAt reports whether a session issued at the given time is still
// acceptable, i.e. no security-sensitive event happened after issuance.
func (a *Account) SessionValidAt(issuedAt time.Time) bool {
	return !issuedAt.Before(a.SecurityOperationPerformedAt)
}
