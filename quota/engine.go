// Package quota derives the monthly campaign-creation allowance for a creator
// from their document-completion credit score and tracks consumption per
// calendar month. The credit score is a separate measure from the rating-based
// credibility score and the two must never share state.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fundcore/ledger"
	"fundcore/models"
	"fundcore/observability"
)

var (
	// ErrUserNotFound indicates the user row does not exist.
	ErrUserNotFound = errors.New("quota: user not found")
	// ErrAccountSuspended indicates a fraud or document-completion suspension.
	ErrAccountSuspended = errors.New("quota: account suspended")
	// ErrAccountBlocked indicates the credibility standing blocks creation.
	ErrAccountBlocked = errors.New("quota: account blocked")
	// ErrQuotaExceeded indicates the monthly campaign cap is exhausted.
	ErrQuotaExceeded = errors.New("quota: monthly campaign quota exceeded")
)

const (
	// minimumCreditScore is the hard floor below which creators with claim
	// history are suspended from creating campaigns.
	minimumCreditScore = 65
	// graceSlots is the flat allowance during the first-month grace window.
	graceSlots = 3
	// graceWindow is the age of the earliest campaign under which the
	// first-month override applies.
	graceWindow = 30 * 24 * time.Hour
)

// DefaultPaidSlotPrice is charged per purchasable slot when no price is
// configured.
var DefaultPaidSlotPrice = decimal.NewFromInt(25)

// Config captures the engine dependencies and policy knobs.
type Config struct {
	DB            *gorm.DB
	Ledger        *ledger.Store
	PaidSlotPrice decimal.Decimal
	Metrics       *observability.QuotaMetrics
	Now           func() time.Time
}

// Engine answers campaign-creation quota questions.
type Engine struct {
	db            *gorm.DB
	ledger        *ledger.Store
	paidSlotPrice decimal.Decimal
	metrics       *observability.QuotaMetrics
	now           func() time.Time
}

// NewEngine constructs a quota engine. A zero paid slot price falls back to
// the default.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		db:            cfg.DB,
		ledger:        cfg.Ledger,
		paidSlotPrice: cfg.PaidSlotPrice,
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}
	if e.paidSlotPrice.Sign() <= 0 {
		e.paidSlotPrice = DefaultPaidSlotPrice
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// CreditScore computes the rolling document-completion score: for each of the
// creator's progress reports, the share of required document kinds covered,
// averaged across reports on the 0-100 scale. Creators with no reports
// default to a full score.
func (e *Engine) CreditScore(ctx context.Context, userID uuid.UUID) (int, error) {
	db := e.db.WithContext(ctx)
	var reports []models.ProgressReport
	if err := db.Where("creator_id = ?", userID).Find(&reports).Error; err != nil {
		return 0, err
	}
	if len(reports) == 0 {
		return 100, nil
	}
	var total float64
	for _, report := range reports {
		var kinds int64
		err := db.Model(&models.ProgressReportDocument{}).
			Where("progress_report_id = ?", report.ID).
			Distinct("kind").
			Count(&kinds).Error
		if err != nil {
			return 0, err
		}
		total += 100 * float64(kinds) / float64(models.RequiredDocumentKinds)
	}
	return int(math.Round(total / float64(len(reports)))), nil
}

// GetOrCreateMonthlyQuota returns the quota row for the current calendar
// month, creating it on first read. Creation derives the tier from the credit
// score and applies the first-month grace override; once created the row is
// never retiered. Concurrent first reads resolve through the unique
// (user, year, month) index.
func (e *Engine) GetOrCreateMonthlyQuota(ctx context.Context, userID uuid.UUID) (*models.MonthlyCampaignQuota, error) {
	now := e.now()
	year, month := now.Year(), int(now.Month())
	db := e.db.WithContext(ctx)

	var existing models.MonthlyCampaignQuota
	err := db.First(&existing, "user_id = ? AND year = ? AND month = ?", userID, year, month).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	score, err := e.CreditScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier := tierFor(score)
	row := models.MonthlyCampaignQuota{
		ID:                  uuid.New(),
		UserID:              userID,
		Year:                year,
		Month:               month,
		MaxAllowed:          tier.FreeSlots,
		PaidSlotsAvailable:  tier.PaidSlots,
		PaidSlotPrice:       e.paidSlotPrice,
		CreditScoreSnapshot: score,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	firstMonth, err := e.inGraceWindow(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if firstMonth {
		row.FirstMonth = true
		row.MaxAllowed = graceSlots
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "year"}, {Name: "month"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	// Re-read so a concurrent creator's row wins consistently.
	var created models.MonthlyCampaignQuota
	if err := db.First(&created, "user_id = ? AND year = ? AND month = ?", userID, year, month).Error; err != nil {
		return nil, err
	}
	if created.ID == row.ID {
		e.metrics.AddRowCreated()
	}
	return &created, nil
}

// inGraceWindow reports whether the creator's earliest campaign is younger
// than the grace window. Creators with no campaigns yet are in the window.
func (e *Engine) inGraceWindow(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	var earliest models.Campaign
	err := e.db.WithContext(ctx).
		Where("creator_id = ?", userID).
		Order("created_at ASC").
		First(&earliest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return now.Sub(earliest.CreatedAt) < graceWindow, nil
}

// operationalCampaigns counts the creator's campaigns that have crossed their
// minimum amount. During the grace window these, not raw creations, consume
// the flat allowance.
func (e *Engine) operationalCampaigns(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int64
	err := e.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("creator_id = ? AND current_amount >= minimum_amount", userID).
		Count(&count).Error
	return int(count), err
}

// Decision is the outcome of a campaign-creation gate check. Cause carries
// the sentinel error category when the request is denied.
type Decision struct {
	Allowed bool
	Reason  string
	Cause   error
}

func allow() *Decision { return &Decision{Allowed: true} }

func deny(cause error, reason string) *Decision {
	return &Decision{Allowed: false, Reason: reason, Cause: cause}
}

// CanCreateCampaign evaluates the creation gates in order: fraud flags, the
// document-completion floor for creators with claim history, the monthly
// quota, and finally the legacy credibility status for creators without claim
// history.
func (e *Engine) CanCreateCampaign(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	decision, err := e.evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	outcome := "allowed"
	switch decision.Cause {
	case ErrAccountSuspended:
		outcome = "suspended"
	case ErrAccountBlocked:
		outcome = "blocked"
	case ErrQuotaExceeded:
		outcome = "quota_exceeded"
	}
	e.metrics.ObserveDecision(outcome)
	return decision, nil
}

func (e *Engine) evaluate(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	var user models.User
	err := e.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if user.Flagged || user.Suspended {
		return deny(ErrAccountSuspended, "account is suspended pending review"), nil
	}

	hasClaims, err := e.ledger.HasClaimHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	var reportCount int64
	err = e.db.WithContext(ctx).Model(&models.ProgressReport{}).
		Where("creator_id = ?", userID).
		Count(&reportCount).Error
	if err != nil {
		return nil, err
	}

	if hasClaims && reportCount > 0 {
		score, err := e.CreditScore(ctx, userID)
		if err != nil {
			return nil, err
		}
		if score < minimumCreditScore {
			return deny(ErrAccountSuspended, fmt.Sprintf(
				"document completion score %d%% is below the %d%% minimum; campaign creation is suspended until older campaigns are documented",
				score, minimumCreditScore)), nil
		}
		q, err := e.GetOrCreateMonthlyQuota(ctx, userID)
		if err != nil {
			return nil, err
		}
		used := q.CampaignsCreated
		if q.FirstMonth {
			used, err = e.operationalCampaigns(ctx, userID)
			if err != nil {
				return nil, err
			}
		}
		if used >= q.MaxAllowed {
			reason := fmt.Sprintf("monthly campaign quota reached (%d of %d used)", used, q.MaxAllowed)
			if next, ok := nextTier(q.CreditScoreSnapshot); ok {
				reason += fmt.Sprintf("; a document completion score of %d%% unlocks %d campaigns per month", next.MinScore, next.FreeSlots)
			}
			return deny(ErrQuotaExceeded, reason), nil
		}
		return allow(), nil
	}

	switch user.AccountStatus {
	case models.StatusBlocked:
		return deny(ErrAccountBlocked, fmt.Sprintf(
			"account blocked: credibility score %d is at or below the blocking threshold", user.CredibilityScore)), nil
	case models.StatusSuspended:
		return deny(ErrAccountSuspended, fmt.Sprintf(
			"account suspended: credibility score %d requires review before new campaigns", user.CredibilityScore)), nil
	case models.StatusLimited:
		if user.RemainingCampaignChances <= 0 {
			return deny(ErrQuotaExceeded, "limited account has no remaining campaign chances"), nil
		}
	}
	return allow(), nil
}

// RecordCampaignCreated increments this month's consumption and, for limited
// accounts, burns one remaining campaign chance, in a single transaction.
func (e *Engine) RecordCampaignCreated(ctx context.Context, userID uuid.UUID) error {
	if _, err := e.GetOrCreateMonthlyQuota(ctx, userID); err != nil {
		return err
	}
	now := e.now()
	year, month := now.Year(), int(now.Month())
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.MonthlyCampaignQuota{}).
			Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
			UpdateColumn("campaigns_created", gorm.Expr("campaigns_created + 1"))
		if result.Error != nil {
			return result.Error
		}
		user, err := ledger.LockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.AccountStatus == models.StatusLimited && user.RemainingCampaignChances > 0 {
			return tx.Model(&models.User{}).
				Where("id = ?", userID).
				UpdateColumn("remaining_campaign_chances", user.RemainingCampaignChances-1).Error
		}
		return nil
	})
}

// SlotInfo is the quota summary surfaced to creators.
type SlotInfo struct {
	CreditScore        int
	MaxAllowed         int
	CampaignsCreated   int
	SlotsRemaining     int
	PaidSlotsAvailable int
	PaidSlotPrice      decimal.Decimal
	FirstMonth         bool
	DaysUntilReset     int
}

// CampaignSlotInfo reports the current month's quota standing, including the
// days until the quota resets on the first of the next month.
func (e *Engine) CampaignSlotInfo(ctx context.Context, userID uuid.UUID) (*SlotInfo, error) {
	q, err := e.GetOrCreateMonthlyQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	used := q.CampaignsCreated
	if q.FirstMonth {
		used, err = e.operationalCampaigns(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	remaining := q.MaxAllowed - used
	if remaining < 0 {
		remaining = 0
	}
	now := e.now()
	reset := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	days := int(math.Ceil(reset.Sub(now).Hours() / 24))
	return &SlotInfo{
		CreditScore:        q.CreditScoreSnapshot,
		MaxAllowed:         q.MaxAllowed,
		CampaignsCreated:   q.CampaignsCreated,
		SlotsRemaining:     remaining,
		PaidSlotsAvailable: q.PaidSlotsAvailable,
		PaidSlotPrice:      q.PaidSlotPrice,
		FirstMonth:         q.FirstMonth,
		DaysUntilReset:     days,
	}, nil
}
