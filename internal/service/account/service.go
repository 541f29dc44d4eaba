// Package account implements the account lifecycle: registration with
// normalized input, email confirmation, login, and password reset. Uniqueness
// pre-checks here are best effort; the store's unique indexes are the final
// authority against concurrent duplicate registrations.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nrednav/cuid2"

	"uk.co.calderbeck.roster/internal/boot"
	"uk.co.calderbeck.roster/internal/model"
	"uk.co.calderbeck.roster/internal/validate"
)

type Store interface {
	Create(ctx context.Context, account *model.Account) error
	Update(ctx context.Context, account *model.Account) error
	FindByPublicID(ctx context.Context, publicID string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByDisplayName(ctx context.Context, displayName string) (*model.Account, error)
	FindByConfirmationToken(ctx context.Context, token string) (*model.Account, error)
}

type MailSender interface {
	SendConfirmation(email string, token string) error
}

type service struct {
	config *boot.Config
	store  Store
	hasher model.PasswordHasher
	mail   MailSender
	now    func() time.Time
}

func New(config *boot.Config, store Store, hasher model.PasswordHasher, mail MailSender) *service {
	return &service{config, store, hasher, mail, func() time.Time { return time.Now().UTC() }}
}

// Register validates the raw input and creates an unconfirmed account. Field
// problems and uniqueness conflicts come back as field errors; only storage
// failures surface as errors.
func (s *service) Register(ctx context.Context, input *validate.RegistrationInput) (*model.Account, validate.FieldErrors, error) {
	payload, fieldErrors := validate.NewRegistration(*input)
	if len(fieldErrors) > 0 {
		return nil, fieldErrors, nil
	}

	conflicts := validate.FieldErrors{}
	if _, err := s.store.FindByEmail(ctx, payload.Email); err == nil {
		conflicts.Add(validate.FieldEmail, validate.MessageEmailAlreadyRegistered)
	} else if !errors.Is(err, model.ErrorAccountNotFound) {
		return nil, nil, fmt.Errorf("checking email uniqueness: %w", err)
	}
	if _, err := s.store.FindByDisplayName(ctx, payload.DisplayName); err == nil {
		conflicts.Add(validate.FieldDisplayName, validate.MessageDisplayNameAlreadyTaken)
	} else if !errors.Is(err, model.ErrorAccountNotFound) {
		return nil, nil, fmt.Errorf("checking display name uniqueness: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, conflicts, nil
	}

	digest, err := s.hasher.Hash(payload.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:                           model.AccountID(model.CreateID()),
		PublicID:                     cuid2.Generate(),
		CreatedAt:                    now,
		DisplayName:                  payload.DisplayName,
		SecurityOperationPerformedAt: now,
		PasswordHash:                 &digest,
		PhoneNumber:                  &payload.PhoneNumber,
	}
	account.BeginEmailConfirmation(payload.Email, model.CreateID(), now)

	if err := s.store.Create(ctx, account); err != nil {
		// the unique indexes caught a race the pre-checks missed
		switch {
		case errors.Is(err, model.ErrorEmailAlreadyRegistered):
			conflicts.Add(validate.FieldEmail, validate.MessageEmailAlreadyRegistered)
			return nil, conflicts, nil
		case errors.Is(err, model.ErrorDisplayNameAlreadyTaken):
			conflicts.Add(validate.FieldDisplayName, validate.MessageDisplayNameAlreadyTaken)
			return nil, conflicts, nil
		default:
			return nil, nil, fmt.Errorf("creating account: %w", err)
		}
	}

	if err := s.mail.SendConfirmation(account.PendingEmail, *account.EmailConfirmationToken); err != nil {
		return nil, nil, fmt.Errorf("sending confirmation mail: %w", err)
	}

	return account, nil, nil
}

// ConfirmEmail redeems a confirmation token. An unknown token and an expired
// one are indistinguishable to the caller.
func (s *service) ConfirmEmail(ctx context.Context, token string) (*model.Account, error) {
	account, err := s.store.FindByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrorAccountNotFound) {
			return nil, model.ErrorInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("finding account by token: %w", err)
	}

	now := s.now()
	if err := account.ConfirmEmail(token, now, s.config.EmailConfirmationTimeout()); err != nil {
		return nil, err
	}

	account.UpdatedAt = &now
	if err := s.store.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}
	return account, nil
}

// Login resolves the identifier as a display name or an email address.
// Unknown account, unconfirmed account and wrong password all collapse into
// ErrorAuthenticationFailed.
func (s *service) Login(ctx context.Context, identifier string, password string) (*model.Account, error) {
	account, err := s.store.FindByDisplayName(ctx, identifier)
	if errors.Is(err, model.ErrorAccountNotFound) {
		account, err = s.store.FindByEmail(ctx, validate.NormalizeEmail(identifier))
	}
	if err != nil {
		if errors.Is(err, model.ErrorAccountNotFound) {
			return nil, model.ErrorAuthenticationFailed
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}

	if !account.CanLogIn() || !account.IsRightPassword(s.hasher, password) {
		return nil, model.ErrorAuthenticationFailed
	}

	return account, nil
}

// ResetPassword replaces the credential and invalidates every session issued
// before the reset.
func (s *service) ResetPassword(ctx context.Context, account *model.Account, newPassword string) error {
	now := s.now()
	if err := account.ResetPassword(s.hasher, newPassword, now); err != nil {
		return err
	}
	account.UpdatedAt = &now
	if err := s.store.Update(ctx, account); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	return nil
}

// ChangeEmail puts the account back into the unconfirmed state with a new
// token for the new address.
func (s *service) ChangeEmail(ctx context.Context, account *model.Account, newEmail string) (validate.FieldErrors, error) {
	email := validate.NormalizeEmail(newEmail)

	fieldErrors := validate.FieldErrors{}
	if email == "" {
		fieldErrors.Add(validate.FieldEmail, validate.MessageEmailRequired)
	} else if !validate.ValidEmail(email) {
		fieldErrors.Add(validate.FieldEmail, validate.MessageEmailInvalid)
	}
	if len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	if other, err := s.store.FindByEmail(ctx, email); err == nil && other.ID != account.ID {
		fieldErrors.Add(validate.FieldEmail, validate.MessageEmailAlreadyRegistered)
		return fieldErrors, nil
	} else if err != nil && !errors.Is(err, model.ErrorAccountNotFound) {
		return nil, fmt.Errorf("checking email uniqueness: %w", err)
	}

	now := s.now()
	account.BeginEmailConfirmation(email, model.CreateID(), now)
	account.UpdatedAt = &now

	if err := s.store.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("saving account: %w", err)
	}
	if err := s.mail.SendConfirmation(account.PendingEmail, *account.EmailConfirmationToken); err != nil {
		return nil, fmt.Errorf("sending confirmation mail: %w", err)
	}
	return nil, nil
}

// Fetch loads an account by its externally visible identifier.
func (s *service) Fetch(ctx context.Context, publicID string) (*model.Account, error) {
	account, err := s.store.FindByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, model.ErrorAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return account, nil
}
