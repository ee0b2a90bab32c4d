// Package account holds the set of mailbox accounts the relay may search.
package account

import "github.com/nhle/otp-relay/internal/model"

// Registry is an immutable, ordered collection of account descriptors.
// It is built once at startup and is safe for concurrent reads.
type Registry struct {
	accounts []model.Account
}

// NewRegistry returns a registry over a copy of accounts, preserving
// declaration order.
func NewRegistry(accounts []model.Account) *Registry {
	owned := make([]model.Account, len(accounts))
	copy(owned, accounts)
	return &Registry{accounts: owned}
}

// All returns every account regardless of status.
func (r *Registry) All() []model.Account {
	out := make([]model.Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// ListActive returns the accounts that are active and carry both a
// username and a password, in declaration order.
func (r *Registry) ListActive() []model.Account {
	var out []model.Account
	for _, acc := range r.accounts {
		if acc.Searchable() {
			out = append(out, acc)
		}
	}
	return out
}

// FindByID returns the first account with the given ID, whether or not
// it is active.
func (r *Registry) FindByID(id string) (model.Account, bool) {
	for _, acc := range r.accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return model.Account{}, false
}
