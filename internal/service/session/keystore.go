package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"

	"uk.co.calderbeck.roster/pkg/crypt"
)

// LoadOrCreateKey loads the session signing key from the given file,
// generating and persisting a new one on first boot. The key sits on disk
// encrypted with the configured secret.
func LoadOrCreateKey(keyFile string, secret string) (*ecdsa.PrivateKey, string, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading key file: %w", err)
		}
		return createKey(keyFile, secret)
	}

	parts := strings.SplitN(string(data), "\n", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("malformed key file %s", keyFile)
	}
	keyID := strings.TrimSpace(parts[0])

	privateKey, err := crypt.DecodePrivateKey(strings.TrimSpace(parts[1]), keyID, secret)
	if err != nil {
		return nil, "", fmt.Errorf("decrypting signing key: %w", err)
	}

	return privateKey, keyID, nil
}

func createKey(keyFile string, secret string) (*ecdsa.PrivateKey, string, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generating signing key: %w", err)
	}
	keyID := crypt.KeyIDFromPublicKey(&privateKey.PublicKey)

	encoded, err := crypt.EncodePrivateKey(privateKey, keyID, secret)
	if err != nil {
		return nil, "", fmt.Errorf("encrypting signing key: %w", err)
	}

	if err := os.WriteFile(keyFile, []byte(keyID+"\n"+encoded+"\n"), 0600); err != nil {
		return nil, "", fmt.Errorf("writing key file: %w", err)
	}

	return privateKey, keyID, nil
}
