package accounts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAccount(userID, email string) EmailAccount {
	return EmailAccount{
		UserID:       userID,
		Email:        email,
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		Status:       StatusVerified,
	}
}

func TestFindAccountNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindAccount(context.Background(), "user-1", "missing@gmail.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertAndFindAccount(t *testing.T) {
	store := newTestStore(t)

	account := testAccount("user-1", "alice@gmail.com")
	account.Principal = true
	require.NoError(t, store.UpsertAccount(context.Background(), account))

	found, err := store.FindAccount(context.Background(), "user-1", "alice@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "access-alice@gmail.com", found.AccessToken)
	assert.Equal(t, StatusVerified, found.Status)
	assert.True(t, found.Principal)
}

func TestUpsertPreservesPrincipalOnConflict(t *testing.T) {
	store := newTestStore(t)

	account := testAccount("user-1", "alice@gmail.com")
	account.Principal = true
	require.NoError(t, store.UpsertAccount(context.Background(), account))

	// Re-linking the same mailbox must refresh tokens without demoting it.
	relinked := testAccount("user-1", "alice@gmail.com")
	relinked.AccessToken = "access-new"
	relinked.Principal = false
	require.NoError(t, store.UpsertAccount(context.Background(), relinked))

	found, err := store.FindAccount(context.Background(), "user-1", "alice@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "access-new", found.AccessToken)
	assert.True(t, found.Principal)
}

func TestUpdateAccessToken(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertAccount(context.Background(), testAccount("user-1", "alice@gmail.com")))
	require.NoError(t, store.UpdateAccessToken(context.Background(), "user-1", "alice@gmail.com", "rotated"))

	found, err := store.FindAccount(context.Background(), "user-1", "alice@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "rotated", found.AccessToken)
	assert.Equal(t, "refresh-alice@gmail.com", found.RefreshToken)
}

func TestUpdateAccessTokenMissingRow(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateAccessToken(context.Background(), "user-1", "nobody@gmail.com", "rotated")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetPrincipalDemotesSiblings(t *testing.T) {
	store := newTestStore(t)

	first := testAccount("user-1", "alice@gmail.com")
	first.Principal = true
	require.NoError(t, store.UpsertAccount(context.Background(), first))
	require.NoError(t, store.UpsertAccount(context.Background(), testAccount("user-1", "bob@gmail.com")))
	// An account of another user must not be touched.
	other := testAccount("user-2", "carol@gmail.com")
	other.Principal = true
	require.NoError(t, store.UpsertAccount(context.Background(), other))

	require.NoError(t, store.SetPrincipal(context.Background(), "user-1", "bob@gmail.com"))

	list, err := store.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	principals := 0
	for _, account := range list {
		if account.Principal {
			principals++
			assert.Equal(t, "bob@gmail.com", account.Email)
		}
	}
	assert.Equal(t, 1, principals)

	carol, err := store.FindAccount(context.Background(), "user-2", "carol@gmail.com")
	require.NoError(t, err)
	assert.True(t, carol.Principal)
}

func TestSetPrincipalMissingRow(t *testing.T) {
	store := newTestStore(t)

	err := store.SetPrincipal(context.Background(), "user-1", "nobody@gmail.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertAccount(context.Background(), testAccount("user-1", "alice@gmail.com")))
	require.NoError(t, store.DeleteAccount(context.Background(), "user-1", "alice@gmail.com"))

	_, err := store.FindAccount(context.Background(), "user-1", "alice@gmail.com")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteAccount(context.Background(), "user-1", "alice@gmail.com"), ErrNotFound)
}

func TestIsFirstAccountForUser(t *testing.T) {
	store := newTestStore(t)

	isFirst, err := store.IsFirstAccountForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, isFirst)

	require.NoError(t, store.UpsertAccount(context.Background(), testAccount("user-1", "alice@gmail.com")))

	isFirst, err = store.IsFirstAccountForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, isFirst)
}

func TestListAccountsPrincipalFirst(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertAccount(context.Background(), testAccount("user-1", "zoe@gmail.com")))
	principal := testAccount("user-1", "alice@gmail.com")
	require.NoError(t, store.UpsertAccount(context.Background(), principal))
	require.NoError(t, store.SetPrincipal(context.Background(), "user-1", "zoe@gmail.com"))

	list, err := store.ListAccounts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "zoe@gmail.com", list[0].Email)
}
