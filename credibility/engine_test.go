package credibility

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fundcore/models"
)

func setupCredibilityTest(t *testing.T) (*gorm.DB, *Engine) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db, NewEngine(db, time.Now)
}

func createUser(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	user := models.User{
		ID:            uuid.New(),
		Email:         uuid.NewString() + "@example.com",
		AccountStatus: models.StatusActive,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func createCampaign(t *testing.T, db *gorm.DB, creatorID uuid.UUID, status models.CampaignStatus) uuid.UUID {
	t.Helper()
	campaign := models.Campaign{
		ID:        uuid.New(),
		CreatorID: creatorID,
		Status:    status,
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(&campaign).Error)
	return campaign.ID
}

func addReport(t *testing.T, db *gorm.DB, campaignID, creatorID uuid.UUID) {
	t.Helper()
	report := models.ProgressReport{
		ID:         uuid.New(),
		CampaignID: campaignID,
		CreatorID:  creatorID,
		Summary:    "spent as planned",
	}
	require.NoError(t, db.Create(&report).Error)
}

func addRatings(t *testing.T, db *gorm.DB, campaignID uuid.UUID, stars ...int) {
	t.Helper()
	for _, s := range stars {
		rating := models.CampaignRating{
			ID:         uuid.New(),
			CampaignID: campaignID,
			RaterID:    uuid.New(),
			Stars:      s,
		}
		require.NoError(t, db.Create(&rating).Error)
	}
}

func TestCalculateScoreNoCampaigns(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)

	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 100, score)
}

func TestCalculateScoreSkipsCampaignsWithoutReports(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)
	campaignID := createCampaign(t, db, userID, models.CampaignCompleted)
	addRatings(t, db, campaignID, 1, 1)

	// Unreported campaigns carry no signal, so the default full score holds.
	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 100, score)
}

func TestCalculateScoreFromRatings(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)
	campaignID := createCampaign(t, db, userID, models.CampaignCompleted)
	addReport(t, db, campaignID, userID)
	addRatings(t, db, campaignID, 4, 4)

	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 80, score)
}

func TestCalculateScoreDefaultStarsWithoutRatings(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)
	campaignID := createCampaign(t, db, userID, models.CampaignClosedWithRefund)
	addReport(t, db, campaignID, userID)

	// A reported campaign with no ratings scores at the 3-star default.
	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 60, score)
}

func TestCalculateScoreAveragesAcrossCampaigns(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)

	first := createCampaign(t, db, userID, models.CampaignCompleted)
	addReport(t, db, first, userID)
	addRatings(t, db, first, 5)

	second := createCampaign(t, db, userID, models.CampaignFlagged)
	addReport(t, db, second, userID)
	addRatings(t, db, second, 2)

	// (100 + 40) / 2
	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 70, score)
}

func TestCalculateScoreIgnoresActiveCampaigns(t *testing.T) {
	db, engine := setupCredibilityTest(t)
	userID := createUser(t, db)
	campaignID := createCampaign(t, db, userID, models.CampaignPublished)
	addReport(t, db, campaignID, userID)
	addRatings(t, db, campaignID, 1)

	score, err := engine.CalculateScore(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 100, score)
}

func TestUpdateStatusLadder(t *testing.T) {
	cases := []struct {
		stars   []int
		score   int
		status  models.AccountStatus
		chances int
	}{
		{stars: []int{3}, score: 60, status: models.StatusBlocked, chances: 0},
		{stars: []int{4, 3}, score: 70, status: models.StatusSuspended, chances: 0},
		{stars: []int{4, 4}, score: 80, status: models.StatusLimited, chances: 2},
		{stars: []int{5, 4}, score: 90, status: models.StatusActive, chances: 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("score_%d", tc.score), func(t *testing.T) {
			db, engine := setupCredibilityTest(t)
			userID := createUser(t, db)
			campaignID := createCampaign(t, db, userID, models.CampaignCompleted)
			addReport(t, db, campaignID, userID)
			addRatings(t, db, campaignID, tc.stars...)

			score, status, err := engine.UpdateStatus(context.Background(), userID)
			require.NoError(t, err)
			require.Equal(t, tc.score, score)
			require.Equal(t, tc.status, status)

			var user models.User
			require.NoError(t, db.First(&user, "id = ?", userID).Error)
			require.Equal(t, tc.score, user.CredibilityScore)
			require.Equal(t, tc.status, user.AccountStatus)
			require.Equal(t, tc.chances, user.RemainingCampaignChances)
		})
	}
}

func TestUpdateStatusUnknownUser(t *testing.T) {
	_, engine := setupCredibilityTest(t)

	_, _, err := engine.UpdateStatus(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrUserNotFound)
}
