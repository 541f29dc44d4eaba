package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/rakutentech/jwk-go/jwk"
)

var ErrorWrongSecret = errors.New("wrong secret for encrypted key")

// EncodePrivateKey serialises a signing key as a JWK and encrypts it with a
// key derived from the key ID and the shared secret, so it can sit on disk.
func EncodePrivateKey(privateKey *ecdsa.PrivateKey, keyID string, secret string) (string, error) {
	ks := jwk.NewSpec(privateKey)
	rawJWK, err := ks.ToJWK()
	if err != nil {
		return "", fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = keyID

	keyData, err := rawJWK.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshalling JWK: %w", err)
	}

	shaHash := sha256.New()
	shaHash.Write(base58.Decode(keyID))
	shaHash.Write([]byte(secret))
	key := shaHash.Sum(nil)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("creating AES nonce: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM cipher: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, keyData, nil)
	sb := strings.Builder{}
	sb.WriteString(base64.StdEncoding.EncodeToString(nonce))
	sb.WriteRune('.')
	sb.WriteString(base64.StdEncoding.EncodeToString(ciphertext))

	return sb.String(), nil
}

// DecodePrivateKey reverses EncodePrivateKey. A wrong secret surfaces as
// ErrorWrongSecret rather than a generic decryption failure.
func DecodePrivateKey(encoded string, keyID string, secret string) (*ecdsa.PrivateKey, error) {
	shaHash := sha256.New()
	shaHash.Write(base58.Decode(keyID))
	shaHash.Write([]byte(secret))
	key := shaHash.Sum(nil)

	parts := strings.Split(encoded, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid private key")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	keyData, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		if err.Error() == "cipher: message authentication failed" {
			return nil, ErrorWrongSecret
		}
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	keySpec, err := jwk.Parse(string(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return keySpec.Key.(*ecdsa.PrivateKey), nil
}

// KeyIDFromPublicKey derives a stable identifier for a verification key.
func KeyIDFromPublicKey(publicKey *ecdsa.PublicKey) string {
	shaHash := sha256.New()
	shaHash.Write(publicKey.X.Bytes())
	shaHash.Write(publicKey.Y.Bytes())
	rawID := shaHash.Sum(nil)
	return base58.Encode(rawID[:])
}
