package testutil

import (
	"context"
	"testing"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedAccounts upserts accounts into s in order, failing the test on error.
func SeedAccounts(t *testing.T, s store.AccountStore, accounts ...model.Account) {
	t.Helper()

	for _, acc := range accounts {
		if _, err := s.UpsertAccount(context.Background(), acc); err != nil {
			t.Fatalf("seeding account %s: %v", acc.ID, err)
		}
	}
}
