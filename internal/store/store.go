package store

import (
	"context"
	"errors"

	"github.com/nhle/otp-relay/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AccountStore persists account descriptors added from the command line.
// Passwords are never stored here; they live in the system keyring.
type AccountStore interface {
	// UpsertAccount inserts acc or updates the existing row with the same ID.
	// An empty ID is replaced with a generated one, which is returned.
	UpsertAccount(ctx context.Context, acc model.Account) (string, error)

	// GetAccounts returns every stored account in creation order.
	GetAccounts(ctx context.Context) ([]model.Account, error)

	// GetAccountByID returns a single account or ErrNotFound.
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)

	// DeleteAccount removes an account; deleting a missing ID returns ErrNotFound.
	DeleteAccount(ctx context.Context, id string) error

	Close() error
}
