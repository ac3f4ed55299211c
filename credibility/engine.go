// Package credibility computes the rating-derived 0-100 score for a creator
// and maps it onto the account status ladder that gates campaign creation for
// users without claimed-funds history.
package credibility

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fundcore/models"
)

// ErrUserNotFound indicates the user row does not exist.
var ErrUserNotFound = errors.New("credibility: user not found")

// Campaign statuses that count towards the credibility score.
var scoredStatuses = []models.CampaignStatus{
	models.CampaignCompleted,
	models.CampaignClosedWithRefund,
	models.CampaignFlagged,
}

const (
	// defaultStars is assumed for a scored campaign with no ratings.
	defaultStars = 3.0
	// starMultiplier converts a 1-5 star average onto the 0-100 scale.
	starMultiplier = 20.0
)

// Engine computes and persists credibility standings.
type Engine struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEngine constructs a credibility engine backed by the provided database.
func NewEngine(db *gorm.DB, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{db: db, now: now}
}

// CalculateScore derives the creator's credibility score from ratings on
// finished campaigns that carry at least one progress report. Creators with
// no qualifying campaigns default to a full score.
func (e *Engine) CalculateScore(ctx context.Context, userID uuid.UUID) (int, error) {
	db := e.db.WithContext(ctx)
	var campaigns []models.Campaign
	err := db.Where("creator_id = ? AND status IN ?", userID, scoredStatuses).Find(&campaigns).Error
	if err != nil {
		return 0, err
	}

	var total float64
	var scored int
	for _, campaign := range campaigns {
		var reports int64
		if err := db.Model(&models.ProgressReport{}).Where("campaign_id = ?", campaign.ID).Count(&reports).Error; err != nil {
			return 0, err
		}
		if reports == 0 {
			continue
		}
		stars := defaultStars
		var agg struct {
			Avg   float64
			Count int64
		}
		err := db.Model(&models.CampaignRating{}).
			Select("COALESCE(AVG(stars), 0) AS avg, COUNT(*) AS count").
			Where("campaign_id = ?", campaign.ID).
			Scan(&agg).Error
		if err != nil {
			return 0, err
		}
		if agg.Count > 0 {
			stars = agg.Avg
		}
		total += math.Min(100, stars*starMultiplier)
		scored++
	}
	if scored == 0 {
		return 100, nil
	}
	return int(math.Round(total / float64(scored))), nil
}

// statusFor maps a credibility score onto an account status and the number of
// remaining campaign chances granted with it.
func statusFor(score int) (models.AccountStatus, int) {
	switch {
	case score <= 65:
		return models.StatusBlocked, 0
	case score <= 75:
		return models.StatusSuspended, 0
	case score <= 80:
		return models.StatusLimited, 2
	default:
		return models.StatusActive, 0
	}
}

// UpdateStatus recomputes the score and persists score, status and chance
// count together. Returns the new score and status.
func (e *Engine) UpdateStatus(ctx context.Context, userID uuid.UUID) (int, models.AccountStatus, error) {
	score, err := e.CalculateScore(ctx, userID)
	if err != nil {
		return 0, "", err
	}
	status, chances := statusFor(score)
	result := e.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"credibility_score":          score,
			"account_status":             status,
			"remaining_campaign_chances": chances,
			"updated_at":                 e.now(),
		})
	if result.Error != nil {
		return 0, "", result.Error
	}
	if result.RowsAffected == 0 {
		return 0, "", ErrUserNotFound
	}
	return score, status, nil
}
