// Package session mints and verifies ES256 session tokens. A token is only
// half the story: the caller must also check the issue time against the
// account's last security-sensitive event (Account.SessionValidAt).
package session

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/rakutentech/jwk-go/jwk"

	"uk.co.calderbeck.roster/internal/model"
)

type service struct {
	privateKey *ecdsa.PrivateKey
	keyID      string
	ttl        time.Duration
	now        func() time.Time
}

func New(privateKey *ecdsa.PrivateKey, keyID string, ttl time.Duration) *service {
	return &service{privateKey, keyID, ttl, func() time.Time { return time.Now().UTC() }}
}

// Issue mints a session token for the account. The subject is the public ID;
// internal IDs never leave the process.
func (s *service) Issue(account *model.Account) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": account.PublicID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and standard claims and returns the subject and
// issue time. Any failure collapses to ErrorAuthenticationFailed.
func (s *service) Verify(tokenString string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil || !token.Valid {
		return "", time.Time{}, model.ErrorAuthenticationFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, model.ErrorAuthenticationFailed
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", time.Time{}, model.ErrorAuthenticationFailed
	}
	iat, ok := claims["iat"].(float64)
	if !ok {
		return "", time.Time{}, model.ErrorAuthenticationFailed
	}

	return sub, time.Unix(int64(iat), 0).UTC(), nil
}

// JWKS renders the verification key set served at /.well-known/jwks.json.
func (s *service) JWKS() ([]byte, error) {
	ks := jwk.NewSpec(&s.privateKey.PublicKey)
	rawJWK, err := ks.ToJWK()
	if err != nil {
		return nil, fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = s.keyID

	keyData, err := rawJWK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshalling JWK: %w", err)
	}

	keySet := struct {
		Keys []json.RawMessage `json:"keys"`
	}{Keys: []json.RawMessage{keyData}}

	data, err := json.Marshal(keySet)
	if err != nil {
		return nil, fmt.Errorf("marshalling JWKS: %w", err)
	}
	return data, nil
}
