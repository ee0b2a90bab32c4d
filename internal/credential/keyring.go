package credential

import (
	"fmt"

	"github.com/99designs/keyring"
	"github.com/rs/zerolog/log"

	"github.com/nhle/otp-relay/internal/model"
)

const (
	serviceName = "otprelay"
	pkgName     = "credential"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/otprelay/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("otprelay-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// AccountKey returns the keyring key holding the password of account id.
func AccountKey(id string) string {
	return "account:" + id
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "otprelay IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Getter reads a secret by keyring key.
type Getter func(key string) (string, error)

// ResolvePasswords fills in passwords for keyring-backed accounts that
// have none configured. A failed lookup leaves the password empty, which
// keeps the account out of ListActive.
func ResolvePasswords(accounts []model.Account, get Getter) []model.Account {
	out := make([]model.Account, len(accounts))
	copy(out, accounts)

	for i := range out {
		acc := &out[i]
		if !acc.Keyring || acc.Password != "" {
			continue
		}

		secret, err := get(AccountKey(acc.ID))
		if err != nil {
			log.Warn().
				Str("pkg", pkgName).
				Str("account_id", acc.ID).
				Err(err).
				Msg("Keyring lookup failed; account will be skipped")
			continue
		}
		acc.Password = secret
	}

	return out
}
