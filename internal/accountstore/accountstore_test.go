package accountstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"uk.co.calderbeck.roster/internal/boot"
	"uk.co.calderbeck.roster/internal/model"
)

func testConfig(t *testing.T) *boot.Config {
	t.Helper()
	config := &boot.Config{DataDir: t.TempDir()}
	return config
}

func testAccount(displayName string, email string) *model.Account {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	digest := "digest"
	phone := "+15551231234"
	account := &model.Account{
		ID:                           model.AccountID(model.CreateID()),
		PublicID:                     model.CreateID(),
		CreatedAt:                    now,
		DisplayName:                  displayName,
		SecurityOperationPerformedAt: now,
		PasswordHash:                 &digest,
		PhoneNumber:                  &phone,
	}
	account.BeginEmailConfirmation(email, model.CreateID(), now)
	return account
}

func TestAccountstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store, err := New(testConfig(t))
	assert.Nil(err)
	defer store.Close()

	account := testAccount("testuser", "testuser@testdomain.com")

	t.Run("Create", func(t *testing.T) {
		err := store.Create(ctx, account)
		assert.Nil(err)
	})

	t.Run("FindByPublicID", func(t *testing.T) {
		found, err := store.FindByPublicID(ctx, account.PublicID)
		assert.Nil(err)
		assert.Equal(account.ID, found.ID)
		assert.Equal(account.DisplayName, found.DisplayName)
		assert.Equal(account.PendingEmail, found.PendingEmail)
		assert.NotNil(found.PhoneNumber)
		assert.Equal(*account.PhoneNumber, *found.PhoneNumber)
		assert.WithinDuration(account.CreatedAt, found.CreatedAt, time.Second)
	})

	t.Run("FindByEmail matches pending address", func(t *testing.T) {
		found, err := store.FindByEmail(ctx, "testuser@testdomain.com")
		assert.Nil(err)
		assert.Equal(account.ID, found.ID)
	})

	t.Run("FindByDisplayName", func(t *testing.T) {
		found, err := store.FindByDisplayName(ctx, "testuser")
		assert.Nil(err)
		assert.Equal(account.ID, found.ID)
	})

	t.Run("FindByConfirmationToken", func(t *testing.T) {
		found, err := store.FindByConfirmationToken(ctx, *account.EmailConfirmationToken)
		assert.Nil(err)
		assert.Equal(account.ID, found.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.FindByDisplayName(ctx, "nobody")
		assert.ErrorIs(err, model.ErrorAccountNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		token := *account.EmailConfirmationToken
		now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
		assert.Nil(account.ConfirmEmail(token, now, 24*time.Hour))
		account.UpdatedAt = &now

		err := store.Update(ctx, account)
		assert.Nil(err)

		found, err := store.FindByPublicID(ctx, account.PublicID)
		assert.Nil(err)
		assert.True(found.CanLogIn())
		assert.NotNil(found.ConfirmedEmail)
		assert.Equal("testuser@testdomain.com", *found.ConfirmedEmail)
		assert.Nil(found.EmailConfirmationToken)
	})

	t.Run("duplicate display name", func(t *testing.T) {
		duplicate := testAccount("testuser", "other@testdomain.com")
		err := store.Create(ctx, duplicate)
		assert.ErrorIs(err, model.ErrorDisplayNameAlreadyTaken)
	})

	t.Run("duplicate pending email", func(t *testing.T) {
		first := testAccount("pendingone", "dupe@testdomain.com")
		assert.Nil(store.Create(ctx, first))

		second := testAccount("pendingtwo", "dupe@testdomain.com")
		err := store.Create(ctx, second)
		assert.ErrorIs(err, model.ErrorEmailAlreadyRegistered)
	})

	t.Run("duplicate confirmed email", func(t *testing.T) {
		duplicate := testAccount("otheruser", "second@testdomain.com")
		confirmed := "testuser@testdomain.com"
		duplicate.ConfirmedEmail = &confirmed
		err := store.Create(ctx, duplicate)
		assert.ErrorIs(err, model.ErrorEmailAlreadyRegistered)
	})

	t.Run("legacy rows keep a null phone number", func(t *testing.T) {
		legacy := testAccount("legacyuser", "legacy@testdomain.com")
		legacy.PhoneNumber = nil
		assert.Nil(store.Create(ctx, legacy))

		found, err := store.FindByDisplayName(ctx, "legacyuser")
		assert.Nil(err)
		assert.Nil(found.PhoneNumber)
	})

	t.Run("updating a missing account", func(t *testing.T) {
		ghost := testAccount("ghost", "ghost@testdomain.com")
		err := store.Update(ctx, ghost)
		assert.ErrorIs(err, model.ErrorAccountNotFound)
	})
}
