package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/guitar_dice_server/internal/model"
	"github.com/qs3c/guitar_dice_server/internal/testutil"
)

func TestReferralRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReferralRepository(db)
	referrer := testutil.TestUser(t, db)
	referee := testutil.TestUser(t, db)

	referral := &model.Referral{
		ReferrerUserID: referrer.ID,
		RefereeUserID:  referee.ID,
		ReferralCode:   *referrer.ReferralCode,
		SignupDate:     time.Now().UTC(),
	}
	require.NoError(t, repo.Create(referral))
	assert.NotZero(t, referral.ID)

	// 同一被邀请人不能重复
	dup := &model.Referral{
		ReferrerUserID: referrer.ID,
		RefereeUserID:  referee.ID,
		ReferralCode:   *referrer.ReferralCode,
		SignupDate:     time.Now().UTC(),
	}
	assert.Error(t, repo.Create(dup))

	found, err := repo.GetByReferee(referee.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.ID, found.ID)
}

func TestReferralRepository_ListPendingWithActiveReferee(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReferralRepository(db)
	now := time.Now().UTC()
	future := now.Add(72 * time.Hour)
	past := now.Add(-72 * time.Hour)

	referrer := testutil.TestUser(t, db)
	premium := testutil.TestUser(t, db, testutil.WithSubscription(model.SubscriptionActive, &future))
	lapsed := testutil.TestUser(t, db, testutil.WithSubscription(model.SubscriptionActive, &past))
	free := testutil.TestUser(t, db)
	granted := testutil.TestUser(t, db, testutil.WithSubscription(model.SubscriptionActive, &future))

	pending := testutil.TestReferral(t, db, referrer, premium)
	testutil.TestReferral(t, db, referrer, lapsed)
	testutil.TestReferral(t, db, referrer, free)
	done := testutil.TestReferral(t, db, referrer, granted)
	_, err := repo.ClaimReward(done.ID, now)
	require.NoError(t, err)

	list, err := repo.ListPendingWithActiveReferee(now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
}

func TestReferralRepository_ClaimReward(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReferralRepository(db)
	referral := testutil.TestReferral(t, db, testutil.TestUser(t, db), testutil.TestUser(t, db))
	now := time.Now().UTC()

	rows, err := repo.ClaimReward(referral.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = repo.ClaimReward(referral.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	found, err := repo.GetByID(referral.ID)
	require.NoError(t, err)
	assert.True(t, found.RewardGranted)
	require.NotNil(t, found.RewardGrantedDate)
}

func TestReferralRepository_Counts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReferralRepository(db)
	referrer := testutil.TestUser(t, db)
	first := testutil.TestReferral(t, db, referrer, testutil.TestUser(t, db))
	testutil.TestReferral(t, db, referrer, testutil.TestUser(t, db))

	_, err := repo.ClaimReward(first.ID, time.Now().UTC())
	require.NoError(t, err)

	invited, err := repo.CountByReferrer(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), invited)

	granted, err := repo.CountGrantedByReferrer(referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), granted)
}

func TestReferralRepository_TransactionRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewReferralRepository(db)
	referral := testutil.TestReferral(t, db, testutil.TestUser(t, db), testutil.TestUser(t, db))

	err := repo.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.WithTx(tx).ClaimReward(referral.ID, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, int64(1), rows)
		return gorm.ErrInvalidData
	})
	assert.ErrorIs(t, err, gorm.ErrInvalidData)

	found, err := repo.GetByID(referral.ID)
	require.NoError(t, err)
	assert.False(t, found.RewardGranted)
}
