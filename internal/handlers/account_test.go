package handlers

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"uk.co.calderbeck.roster/internal/accountstore"
	"uk.co.calderbeck.roster/internal/boot"
	"uk.co.calderbeck.roster/internal/credential"
	"uk.co.calderbeck.roster/internal/mail"
	"uk.co.calderbeck.roster/internal/service/account"
	"uk.co.calderbeck.roster/internal/service/session"
	"uk.co.calderbeck.roster/pkg/crypt"
)

func newTestServer(t *testing.T) (*echo.Echo, AccountService) {
	t.Helper()

	config := &boot.Config{DataDir: t.TempDir(), BaseURL: "http://localhost:8080"}
	config.Auth.SaltRounds = bcrypt.MinCost
	config.Auth.EmailConfirmationTimeoutSeconds = 86400

	store, err := accountstore.New(config)
	if err != nil {
		t.Fatalf("creating account store: %+v", err)
	}
	t.Cleanup(func() { store.Close() })

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %+v", err)
	}

	hasher := credential.NewBcryptHasher(config.Auth.SaltRounds)
	accounts := account.New(config, store, hasher, mail.NewLogSender(config.BaseURL))
	sessions := session.New(privateKey, crypt.KeyIDFromPublicKey(&privateKey.PublicKey), time.Hour)

	server := echo.New()
	server.POST("/accounts", Register(accounts))
	server.POST("/accounts/confirm", ConfirmEmail(accounts))
	server.PUT("/accounts/password", ResetPassword(accounts, sessions))
	server.PUT("/accounts/email", ChangeEmail(accounts, sessions))
	server.POST("/sessions", Login(accounts, sessions))
	server.GET("/.well-known/jwks.json", JWKS(sessions))

	return server, accounts
}

func doJSON(server *echo.Echo, method string, target string, body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

const registerBody = `{
	"email": "Test@Example.com ",
	"password": "password",
	"displayName": "testuser",
	"phoneNumber": "+1 (555) 123-1234"
}`

func TestAccountEndpoints(t *testing.T) {
	assert := assert.New(t)
	server, accounts := newTestServer(t)

	var publicID string

	t.Run("register", func(t *testing.T) {
		rec := doJSON(server, http.MethodPost, "/accounts", registerBody, "")
		assert.Equal(http.StatusCreated, rec.Code)

		view := map[string]interface{}{}
		assert.Nil(json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal("test@example.com", view["pendingEmail"])
		assert.Equal("+15551231234", view["phoneNumber"])
		assert.NotEmpty(view["publicId"])
		assert.NotContains(rec.Body.String(), "PasswordHash")
		publicID = view["publicId"].(string)
	})

	t.Run("register with invalid input", func(t *testing.T) {
		rec := doJSON(server, http.MethodPost, "/accounts", `{"email":"x","password":"abc12"}`, "")
		assert.Equal(http.StatusUnprocessableEntity, rec.Code)

		response := struct {
			FieldErrors map[string][]string `json:"fieldErrors"`
		}{}
		assert.Nil(json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Contains(response.FieldErrors, "email")
		assert.Contains(response.FieldErrors, "password")
		assert.Contains(response.FieldErrors, "displayName")
		assert.Contains(response.FieldErrors, "phoneNumber")
	})

	t.Run("login refused before confirmation", func(t *testing.T) {
		rec := doJSON(server, http.MethodPost, "/sessions", `{"identifier":"testuser","password":"password"}`, "")
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("confirm with bad token", func(t *testing.T) {
		rec := doJSON(server, http.MethodPost, "/accounts/confirm", `{"token":"nope"}`, "")
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("confirm", func(t *testing.T) {
		stored, err := accounts.Fetch(context.Background(), publicID)
		assert.Nil(err)

		rec := doJSON(server, http.MethodPost, "/accounts/confirm", `{"token":"`+*stored.EmailConfirmationToken+`"}`, "")
		assert.Equal(http.StatusOK, rec.Code)
		assert.Contains(rec.Body.String(), `"confirmedEmail":"test@example.com"`)
	})

	var token string

	t.Run("login", func(t *testing.T) {
		rec := doJSON(server, http.MethodPost, "/sessions", `{"identifier":"testuser","password":"password"}`, "")
		assert.Equal(http.StatusOK, rec.Code)

		response := struct {
			Token string `json:"token"`
		}{}
		assert.Nil(json.Unmarshal(rec.Body.Bytes(), &response))
		assert.NotEmpty(response.Token)
		token = response.Token
	})

	t.Run("reset password requires a session", func(t *testing.T) {
		rec := doJSON(server, http.MethodPut, "/accounts/password", `{"newPassword":"new-password"}`, "")
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("reset password with weak password", func(t *testing.T) {
		rec := doJSON(server, http.MethodPut, "/accounts/password", `{"newPassword":"abc12"}`, token)
		assert.Equal(http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(rec.Body.String(), "password")
	})

	t.Run("reset password invalidates the session", func(t *testing.T) {
		// token iat has one-second resolution, the reset must land in a
		// strictly later second to invalidate it
		time.Sleep(1100 * time.Millisecond)
		rec := doJSON(server, http.MethodPut, "/accounts/password", `{"newPassword":"new-password"}`, token)
		assert.Equal(http.StatusNoContent, rec.Code)

		rec = doJSON(server, http.MethodPut, "/accounts/password", `{"newPassword":"other-password"}`, token)
		assert.Equal(http.StatusUnauthorized, rec.Code)

		rec = doJSON(server, http.MethodPost, "/sessions", `{"identifier":"testuser","password":"password"}`, "")
		assert.Equal(http.StatusUnauthorized, rec.Code)

		rec = doJSON(server, http.MethodPost, "/sessions", `{"identifier":"testuser","password":"new-password"}`, "")
		assert.Equal(http.StatusOK, rec.Code)
	})

	t.Run("jwks", func(t *testing.T) {
		rec := doJSON(server, http.MethodGet, "/.well-known/jwks.json", "", "")
		assert.Equal(http.StatusOK, rec.Code)
		assert.Contains(rec.Body.String(), `"keys"`)
	})
}
