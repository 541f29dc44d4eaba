package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"uk.co.calderbeck.roster/internal/model"
	"uk.co.calderbeck.roster/internal/validate"
)

type AccountService interface {
	Register(ctx context.Context, input *validate.RegistrationInput) (*model.Account, validate.FieldErrors, error)
	ConfirmEmail(ctx context.Context, token string) (*model.Account, error)
	Login(ctx context.Context, identifier string, password string) (*model.Account, error)
	ResetPassword(ctx context.Context, account *model.Account, newPassword string) error
	ChangeEmail(ctx context.Context, account *model.Account, newEmail string) (validate.FieldErrors, error)
	Fetch(ctx context.Context, publicID string) (*model.Account, error)
}

type SessionService interface {
	Issue(account *model.Account) (string, error)
	Verify(token string) (publicID string, issuedAt time.Time, err error)
	JWKS() ([]byte, error)
}

// accountView is the external shape of an account. Internal IDs and password
// digests never appear here.
type accountView struct {
	PublicID       string    `json:"publicId"`
	DisplayName    string    `json:"displayName"`
	PendingEmail   string    `json:"pendingEmail"`
	ConfirmedEmail *string   `json:"confirmedEmail,omitempty"`
	PhoneNumber    *string   `json:"phoneNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func viewOf(account *model.Account) *accountView {
	return &accountView{
		PublicID:       account.PublicID,
		DisplayName:    account.DisplayName,
		PendingEmail:   account.PendingEmail,
		ConfirmedEmail: account.ConfirmedEmail,
		PhoneNumber:    account.PhoneNumber,
		CreatedAt:      account.CreatedAt,
	}
}

func fieldErrorsResponse(c echo.Context, fieldErrors validate.FieldErrors) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
		"fieldErrors": fieldErrors,
	})
}

func errorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

func Register(accounts AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &validate.RegistrationInput{}
		if err := c.Bind(input); err != nil {
			return err
		}
		account, fieldErrors, err := accounts.Register(c.Request().Context(), input)
		if err != nil {
			return err
		}
		if len(fieldErrors) > 0 {
			return fieldErrorsResponse(c, fieldErrors)
		}
		return c.JSON(http.StatusCreated, viewOf(account))
	}
}

func ConfirmEmail(accounts AccountService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := struct {
			Token string `json:"token" form:"token" query:"token"`
		}{}
		if err := c.Bind(&params); err != nil {
			return err
		}
		account, err := accounts.ConfirmEmail(c.Request().Context(), params.Token)
		if err != nil {
			if errors.Is(err, model.ErrorInvalidOrExpiredToken) {
				return errorResponse(c, http.StatusUnauthorized, model.ErrorInvalidOrExpiredToken.Error())
			}
			return err
		}
		return c.JSON(http.StatusOK, viewOf(account))
	}
}

func Login(accounts AccountService, sessions SessionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := struct {
			Identifier string `json:"identifier" form:"identifier"`
			Password   string `json:"password" form:"password"`
		}{}
		if err := c.Bind(&params); err != nil {
			return err
		}
		account, err := accounts.Login(c.Request().Context(), params.Identifier, params.Password)
		if err != nil {
			if errors.Is(err, model.ErrorAuthenticationFailed) {
				return errorResponse(c, http.StatusUnauthorized, model.ErrorAuthenticationFailed.Error())
			}
			return err
		}
		token, err := sessions.Issue(account)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"token":   token,
			"account": viewOf(account),
		})
	}
}

func ResetPassword(accounts AccountService, sessions SessionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		account, err := currentAccount(c, accounts, sessions)
		if err != nil {
			return errorResponse(c, http.StatusUnauthorized, model.ErrorAuthenticationFailed.Error())
		}
		params := struct {
			NewPassword string `json:"newPassword" form:"newPassword"`
		}{}
		if err := c.Bind(&params); err != nil {
			return err
		}
		if err := accounts.ResetPassword(c.Request().Context(), account, params.NewPassword); err != nil {
			if errors.Is(err, model.ErrorWeakPassword) {
				fieldErrors := validate.FieldErrors{}
				fieldErrors.Add(validate.FieldPassword, validate.MessagePasswordTooShort)
				return fieldErrorsResponse(c, fieldErrors)
			}
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func ChangeEmail(accounts AccountService, sessions SessionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		account, err := currentAccount(c, accounts, sessions)
		if err != nil {
			return errorResponse(c, http.StatusUnauthorized, model.ErrorAuthenticationFailed.Error())
		}
		params := struct {
			Email string `json:"email" form:"email"`
		}{}
		if err := c.Bind(&params); err != nil {
			return err
		}
		fieldErrors, err := accounts.ChangeEmail(c.Request().Context(), account, params.Email)
		if err != nil {
			return err
		}
		if len(fieldErrors) > 0 {
			return fieldErrorsResponse(c, fieldErrors)
		}
		return c.JSON(http.StatusOK, viewOf(account))
	}
}

func JWKS(sessions SessionService) echo.HandlerFunc {
	return func(c echo.Context) error {
		keySet, err := sessions.JWKS()
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, keySet)
	}
}

// currentAccount resolves the bearer token into an account and rejects
// sessions issued before the account's last security-sensitive event.
func currentAccount(c echo.Context, accounts AccountService, sessions SessionService) (*model.Account, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" || tokenString == header {
		return nil, model.ErrorAuthenticationFailed
	}

	publicID, issuedAt, err := sessions.Verify(tokenString)
	if err != nil {
		return nil, model.ErrorAuthenticationFailed
	}

	account, err := accounts.Fetch(c.Request().Context(), publicID)
	if err != nil {
		return nil, model.ErrorAuthenticationFailed
	}
	if !account.SessionValidAt(issuedAt) {
		return nil, model.ErrorAuthenticationFailed
	}

	return account, nil
}
