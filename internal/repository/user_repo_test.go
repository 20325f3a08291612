package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestUserRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	_ = NewUserRepository(db)

	email := "test@example.com"
	user := testutil.TestUser(t, db, testutil.WithEmail(email))

	assert.NotZero(t, user.ID)
	assert.Equal(t, email, *user.Email)
}

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	created := testutil.TestUser(t, db)

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.Username, found.Username)
	assert.Equal(t, 5, found.DiceRollsLimit)
	assert.Equal(t, model.SubscriptionFree, found.SubscriptionStatus)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(99999)
	assert.Error(t, err)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	email := "unique@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	found, err := repo.GetByEmail(email)
	require.NoError(t, err)
	assert.Equal(t, email, *found.Email)
}

func TestUserRepository_GetByReferralCode(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db, testutil.WithReferralCode("GUITAR42"))

	found, err := repo.GetByReferralCode("GUITAR42")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	exists, err := repo.ExistsByReferralCode("NOPE")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	email := "exists@example.com"
	testutil.TestUser(t, db, testutil.WithEmail(email))

	exists, err := repo.ExistsByEmail(email)
	require.NoError(t, err)
	assert.True(t, exists)

	notExists, err := repo.ExistsByEmail("notexists@example.com")
	require.NoError(t, err)
	assert.False(t, notExists)
}

func TestUserRepository_ResetQuotaIfStale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	today := "2026-03-02"

	t.Run("stale date resets once", func(t *testing.T) {
		user := testutil.TestUser(t, db,
			testutil.WithQuotaUsed(5),
			testutil.WithResetDate(strPtr("2026-03-01")))

		rows, err := repo.ResetQuotaIfStale(user.ID, today)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		rows, err = repo.ResetQuotaIfStale(user.ID, today)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 0, found.DiceRollsUsed)
		assert.Equal(t, today, *found.RollsResetDate)
	})

	t.Run("never reset", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3), testutil.WithResetDate(nil))

		rows, err := repo.ResetQuotaIfStale(user.ID, today)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)
	})

	t.Run("already reset today", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithQuotaUsed(3), testutil.WithResetDate(strPtr(today)))

		rows, err := repo.ResetQuotaIfStale(user.ID, today)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 3, found.DiceRollsUsed)
	})
}

func TestUserRepository_ResetStaleQuotas(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	today := "2026-03-02"

	testutil.TestUser(t, db, testutil.WithQuotaUsed(4), testutil.WithResetDate(strPtr("2026-02-28")))
	testutil.TestUser(t, db, testutil.WithQuotaUsed(2), testutil.WithResetDate(nil))
	fresh := testutil.TestUser(t, db, testutil.WithQuotaUsed(1), testutil.WithResetDate(strPtr(today)))

	rows, err := repo.ResetStaleQuotas(today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	rows, err = repo.ResetStaleQuotas(today)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	found, _ := repo.GetByID(fresh.ID)
	assert.Equal(t, 1, found.DiceRollsUsed)
}

func TestUserRepository_ConsumeBaseRoll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db, testutil.WithQuotaUsed(4), testutil.WithRollLimit(5))

	rows, err := repo.ConsumeBaseRoll(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.ConsumeBaseRoll(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	found, _ := repo.GetByID(user.ID)
	assert.Equal(t, 5, found.DiceRollsUsed)
}

func TestUserRepository_ConsumeBonusToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	t.Run("base quota remaining", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithQuotaUsed(2), testutil.WithTokens(3))

		rows, err := repo.ConsumeBonusToken(user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)
	})

	t.Run("uses token after limit", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithQuotaUsed(5), testutil.WithTokens(1))

		rows, err := repo.ConsumeBonusToken(user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		rows, err = repo.ConsumeBonusToken(user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 6, found.DiceRollsUsed)
		assert.Equal(t, 0, found.ExtraRollTokens)
	})
}

func TestUserRepository_GrantBonusToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	today := "2026-03-02"
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("first ad of the day", func(t *testing.T) {
		user := testutil.TestUser(t, db)

		rows, err := repo.GrantBonusToken(user.ID, today, 5, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 1, found.ExtraRollTokens)
		assert.Equal(t, 1, found.AdsWatchedCount)
		assert.Equal(t, today, *found.AdsWatchDate)
	})

	t.Run("counter restarts on a new day", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithAdsWatched(5, "2026-03-01"))

		rows, err := repo.GrantBonusToken(user.ID, today, 5, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 1, found.AdsWatchedCount)
	})

	t.Run("daily cap reached", func(t *testing.T) {
		user := testutil.TestUser(t, db, testutil.WithAdsWatched(5, today), testutil.WithTokens(2))

		rows, err := repo.GrantBonusToken(user.ID, today, 5, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows)

		found, _ := repo.GetByID(user.ID)
		assert.Equal(t, 2, found.ExtraRollTokens)
		assert.Equal(t, 5, found.AdsWatchedCount)
	})
}

func TestUserRepository_TouchLastActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now().UTC()

	rows, err := repo.TouchLastActive(user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	found, _ := repo.GetByID(user.ID)
	require.NotNil(t, found.LastActiveAt)
	assert.WithinDuration(t, now, *found.LastActiveAt, time.Second)
}

func TestUserRepository_ExtendSubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("no previous expiry starts from now", func(t *testing.T) {
		user := testutil.TestUser(t, db)

		rows, err := repo.ExtendSubscription(user.ID, now, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		found, _ := repo.GetByID(user.ID)
		require.NotNil(t, found.SubscriptionExpiry)
		assert.WithinDuration(t, now.AddDate(0, 1, 0), *found.SubscriptionExpiry, time.Second)
		assert.Equal(t, model.SubscriptionActive, found.SubscriptionStatus)
		assert.Equal(t, 1, found.ReferralRewardsEarned)
	})

	t.Run("future expiry is extended", func(t *testing.T) {
		expiry := now.AddDate(0, 0, 10)
		user := testutil.TestUser(t, db, testutil.WithSubscription(model.SubscriptionActive, &expiry))

		_, err := repo.ExtendSubscription(user.ID, now, 1)
		require.NoError(t, err)

		found, _ := repo.GetByID(user.ID)
		assert.WithinDuration(t, expiry.AddDate(0, 1, 0), *found.SubscriptionExpiry, time.Second)
	})

	t.Run("lapsed expiry restarts from now", func(t *testing.T) {
		expiry := now.AddDate(0, 0, -10)
		user := testutil.TestUser(t, db, testutil.WithSubscription(model.SubscriptionFree, &expiry))

		_, err := repo.ExtendSubscription(user.ID, now, 2)
		require.NoError(t, err)

		found, _ := repo.GetByID(user.ID)
		assert.WithinDuration(t, now.AddDate(0, 2, 0), *found.SubscriptionExpiry, time.Second)
	})
}
