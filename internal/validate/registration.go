// Package validate turns raw registration input into a normalized payload or
// a set of field-scoped error messages, never both.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"uk.co.calderbeck.roster/internal/model"
)

const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldDisplayName = "displayName"
	FieldPhoneNumber = "phoneNumber"
)

const (
	MessageEmailRequired           = "email is required"
	MessageEmailInvalid            = "email address is not valid"
	MessageEmailAlreadyRegistered  = "email already registered"
	MessagePasswordTooShort        = "password must be at least 6 characters"
	MessageDisplayNameRequired     = "display name is required"
	MessageDisplayNameTooLong      = "display name must be at most 50 characters"
	MessageDisplayNameAlreadyTaken = "display name already taken"
	MessageInvalidPhoneNumber      = "phone number is not valid"
)

// emailPattern is the WHATWG/RFC-5322-style check used for form validation.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// phonePattern is the canonical stored form: optional leading +, 7-15 digits.
var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

type RegistrationInput struct {
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	DisplayName string `json:"displayName" form:"displayName"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
}

// Registration is the normalized payload, ready for persistence.
type Registration struct {
	Email       string
	Password    string
	DisplayName string
	PhoneNumber string
}

// FieldErrors maps a field name to the messages reported against it.
type FieldErrors map[string][]string

func (e FieldErrors) Add(field string, message string) {
	e[field] = append(e[field], message)
}

// NormalizeEmail lower-cases and trims an email address so accounts differing
// only by case cannot be registered twice.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhoneNumber reduces a raw phone number to its canonical form: the
// leading + is kept only when it starts the number, every other non-digit is
// dropped. Running it over an already-normalized number is a no-op.
func NormalizePhoneNumber(raw string) string {
	trimmed := strings.TrimSpace(raw)
	sb := strings.Builder{}
	for i, r := range trimmed {
		if r == '+' && i == 0 {
			sb.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidEmail reports whether a normalized email address is syntactically valid.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPhoneNumber reports whether a normalized phone number matches the
// canonical form.
func ValidPhoneNumber(phoneNumber string) bool {
	return phonePattern.MatchString(phoneNumber)
}

// NewRegistration validates and normalizes raw registration input. Every
// field is checked in one pass so the caller can report all problems at once.
// Uniqueness of email and display name is the storage layer's concern, not
// checked here.
func NewRegistration(input RegistrationInput) (*Registration, FieldErrors) {
	fieldErrors := FieldErrors{}

	email := NormalizeEmail(input.Email)
	if email == "" {
		fieldErrors.Add(FieldEmail, MessageEmailRequired)
	} else if !ValidEmail(email) {
		fieldErrors.Add(FieldEmail, MessageEmailInvalid)
	}

	// length limits count characters, not bytes
	if utf8.RuneCountInString(input.Password) < model.MinPasswordLength {
		fieldErrors.Add(FieldPassword, MessagePasswordTooShort)
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		fieldErrors.Add(FieldDisplayName, MessageDisplayNameRequired)
	} else if utf8.RuneCountInString(displayName) > model.MaxDisplayNameSize {
		fieldErrors.Add(FieldDisplayName, MessageDisplayNameTooLong)
	}

	phoneNumber := NormalizePhoneNumber(input.PhoneNumber)
	if !ValidPhoneNumber(phoneNumber) {
		fieldErrors.Add(FieldPhoneNumber, MessageInvalidPhoneNumber)
	}

	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}

	return &Registration{
		Email:       email,
		Password:    input.Password,
		DisplayName: displayName,
		PhoneNumber: phoneNumber,
	}, nil
}
