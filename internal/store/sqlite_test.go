package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/store"
	"github.com/nhle/otp-relay/tests/testutil"
)

func TestAccounts_RoundTripInCreationOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.SeedAccounts(t, s,
		model.Account{ID: "zeta", Host: "imap.zeta.io", Port: 993, Secure: true, Username: "z@zeta.io", Email: "z@zeta.io", Active: true},
		model.Account{ID: "alpha", Provider: "gmail", Host: "imap.gmail.com", Port: 993, Secure: true, Username: "a@gmail.com", Active: false},
	)

	accounts, err := s.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "zeta", accounts[0].ID)
	assert.Equal(t, "alpha", accounts[1].ID)
	assert.True(t, accounts[0].Keyring, "stored accounts resolve secrets from the keyring")
	assert.Empty(t, accounts[0].Password)
	assert.True(t, accounts[0].Secure)
	assert.False(t, accounts[1].Active)
	assert.Equal(t, "gmail", accounts[1].Provider)
}

func TestUpsertAccount_UpdatesInPlace(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.SeedAccounts(t, s,
		model.Account{ID: "first", Host: "a", Port: 993, Username: "u1", Active: true},
		model.Account{ID: "second", Host: "b", Port: 993, Username: "u2", Active: true},
	)

	_, err := s.UpsertAccount(ctx, model.Account{ID: "first", Host: "a2", Port: 143, Username: "u1", Active: false})
	require.NoError(t, err)

	acc, err := s.GetAccountByID(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, "a2", acc.Host)
	assert.Equal(t, 143, acc.Port)
	assert.False(t, acc.Active)

	accounts, err := s.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "first", accounts[0].ID, "update keeps creation order")
}

func TestUpsertAccount_GeneratesID(t *testing.T) {
	s := testutil.NewTestStore(t)

	id, err := s.UpsertAccount(context.Background(), model.Account{Host: "h", Port: 993, Username: "u"})
	require.NoError(t, err)
	assert.Regexp(t, `^acct-[0-9a-f]{8}$`, id)
}

func TestGetAccountByID_NotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetAccountByID(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.SeedAccounts(t, s, model.Account{ID: "gone", Host: "h", Port: 993, Username: "u"})

	require.NoError(t, s.DeleteAccount(ctx, "gone"))
	assert.ErrorIs(t, s.DeleteAccount(ctx, "gone"), store.ErrNotFound)

	accounts, err := s.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
