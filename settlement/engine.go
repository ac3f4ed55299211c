// Package settlement converts earned tip and contribution balances into
// spendable balance. Aggregate claims charge a proportional handling fee;
// campaign-scoped tip claims settle against discrete tip records with exact
// partial consumption and no fee.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	// ErrInvalidAmount indicates a non-positive requested amount.
	ErrInvalidAmount = errors.New("settlement: amount must be positive")
	// ErrNoClaimableFunds indicates an empty balance or tip record set.
	ErrNoClaimableFunds = errors.New("settlement: no claimable funds")
	// ErrInsufficientBalance indicates the request exceeds the claimable total.
	ErrInsufficientBalance = errors.New("settlement: requested amount exceeds claimable balance")
	// ErrAmountBelowFee indicates the requested amount would not cover the
	// minimum handling fee.
	ErrAmountBelowFee = errors.New("settlement: requested amount does not cover the claim fee")
)

// Default fee policy: 1% of the claimed amount with a floor of one currency unit.
var (
	DefaultFeeRate    = decimal.NewFromFloat(0.01)
	DefaultMinimumFee = decimal.NewFromInt(1)
)

// Config captures the engine dependencies and fee policy.
type Config struct {
	DB         *gorm.DB
	Balances   *ledger.Store
	FeeRate    decimal.Decimal
	MinimumFee decimal.Decimal
	Metrics    *observability.SettlementMetrics
	Now        func() time.Time
}

// Engine settles claims against the balance store and tip record table.
type Engine struct {
	db       *gorm.DB
	balances *ledger.Store
	feeRate  decimal.Decimal
	minFee   decimal.Decimal
	metrics  *observability.SettlementMetrics
	now      func() time.Time
}

// NewEngine constructs a settlement engine. Zero fee policy values fall back
// to the defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		db:       cfg.DB,
		balances: cfg.Balances,
		feeRate:  cfg.FeeRate,
		minFee:   cfg.MinimumFee,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if e.feeRate.Sign() <= 0 {
		e.feeRate = DefaultFeeRate
	}
	if e.minFee.Sign() <= 0 {
		e.minFee = DefaultMinimumFee
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Fee returns the handling fee charged on an aggregate claim of amount.
func (e *Engine) Fee(amount decimal.Decimal) decimal.Decimal {
	return decimal.Max(amount.Mul(e.feeRate), e.minFee).Round(2)
}

// RecordTip registers an incoming tip: a discrete tip record tied to the
// campaign, a tips balance credit and a ledger entry, all in one transaction.
func (e *Engine) RecordTip(ctx context.Context, creatorID, campaignID uuid.UUID, amount decimal.Decimal, note string) (*models.TipRecord, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount = amount.Round(2)
	record := &models.TipRecord{
		ID:         uuid.New(),
		CampaignID: campaignID,
		CreatorID:  creatorID,
		Amount:     amount,
		CreatedAt:  e.now(),
	}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		if err := e.balances.Credit(tx, creatorID, models.BalanceTips, amount); err != nil {
			return err
		}
		reference := fmt.Sprintf("tip for campaign %s", campaignID)
		if trimmed := strings.TrimSpace(note); trimmed != "" {
			reference += ": " + trimmed
		}
		return e.balances.Append(tx, models.LedgerEntry{
			UserID:    creatorID,
			Type:      models.EntryTip,
			Amount:    amount,
			Reference: reference,
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RecordContribution credits the contributions balance, advances the campaign
// progress towards its minimum and records a ledger entry, atomically.
func (e *Engine) RecordContribution(ctx context.Context, creatorID, campaignID uuid.UUID, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	amount = amount.Round(2)
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, "id = ?", campaignID).Error
		switch {
		case err == nil:
			next := campaign.CurrentAmount.Add(amount).Round(2)
			if err := tx.Model(&models.Campaign{}).Where("id = ?", campaignID).Update("current_amount", next).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Campaign rows are owned elsewhere; the balance credit still applies.
		default:
			return err
		}
		if err := e.balances.Credit(tx, creatorID, models.BalanceContributions, amount); err != nil {
			return err
		}
		return e.balances.Append(tx, models.LedgerEntry{
			UserID:    creatorID,
			Type:      models.EntryContribution,
			Amount:    amount,
			Reference: fmt.Sprintf("contribution for campaign %s", campaignID),
		})
	})
}

// ClaimTips settles tip earnings into the spendable balance, net of the
// handling fee. A nil requested amount claims the full tips balance. Returns
// the net amount credited.
func (e *Engine) ClaimTips(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (decimal.Decimal, error) {
	return e.claimAggregate(ctx, userID, models.BalanceTips, requested)
}

// ClaimContributions settles contribution earnings into the spendable
// balance, net of the handling fee. A nil requested amount claims the full
// contributions balance. Returns the net amount credited.
func (e *Engine) ClaimContributions(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (decimal.Decimal, error) {
	return e.claimAggregate(ctx, userID, models.BalanceContributions, requested)
}

func (e *Engine) claimAggregate(ctx context.Context, userID uuid.UUID, kind models.BalanceKind, requested *decimal.Decimal) (decimal.Decimal, error) {
	var net, fee decimal.Decimal
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := ledger.LockUser(tx, userID)
		if err != nil {
			return err
		}
		balance := user.Balance(kind)
		if balance.Sign() <= 0 {
			return ErrNoClaimableFunds
		}
		amount := balance
		if requested != nil {
			amount = requested.Round(2)
		}
		if amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if amount.GreaterThan(balance) {
			return ErrInsufficientBalance
		}
		fee = e.Fee(amount)
		net = amount.Sub(fee)
		if net.Sign() <= 0 {
			return ErrAmountBelowFee
		}
		if err := e.balances.Debit(tx, userID, kind, amount); err != nil {
			return err
		}
		if err := e.balances.Credit(tx, userID, models.BalanceSpendable, net); err != nil {
			return err
		}
		return e.balances.Append(tx, models.LedgerEntry{
			UserID:    userID,
			Type:      models.EntryClaim,
			Amount:    amount,
			Reference: fmt.Sprintf("%s claim: fee %s, net %s", kind, fee.StringFixed(2), net.StringFixed(2)),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.metrics.AddFees(fee.InexactFloat64())
	return net, nil
}

// CampaignClaim reports the outcome of a campaign-scoped tip claim.
type CampaignClaim struct {
	ClaimedAmount   decimal.Decimal
	RecordsConsumed int
}

// ClaimCampaignTips settles requested against the discrete tip records tied
// to (userID, campaignID). Records are consumed most-recent-first; the first
// record that would overshoot the request is split in place so that the sum
// of surviving record amounts plus the claimed amount equals the pre-claim
// sum exactly. No fee is charged on campaign-scoped claims.
func (e *Engine) ClaimCampaignTips(ctx context.Context, userID, campaignID uuid.UUID, requested decimal.Decimal) (*CampaignClaim, error) {
	requested = requested.Round(2)
	if requested.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	result := &CampaignClaim{}
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the user row first, then the record set, so concurrent claims
		// for the same creator serialize instead of double-spending.
		if _, err := ledger.LockUser(tx, userID); err != nil {
			return err
		}
		var records []models.TipRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("creator_id = ? AND campaign_id = ?", userID, campaignID).
			Order("created_at DESC, id DESC").
			Find(&records).Error
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return ErrNoClaimableFunds
		}
		available := decimal.Zero
		for _, record := range records {
			available = available.Add(record.Amount)
		}
		if requested.GreaterThan(available) {
			return ErrInsufficientBalance
		}

		claimed := decimal.Zero
		consumed := make([]uuid.UUID, 0, len(records))
		var split *models.TipRecord
		for i := range records {
			record := &records[i]
			if claimed.Add(record.Amount).LessThanOrEqual(requested) {
				claimed = claimed.Add(record.Amount)
				consumed = append(consumed, record.ID)
				if claimed.Equal(requested) {
					break
				}
				continue
			}
			remainder := requested.Sub(claimed)
			record.Amount = record.Amount.Sub(remainder).Round(2)
			claimed = requested
			if record.Amount.Sign() == 0 {
				consumed = append(consumed, record.ID)
			} else {
				split = record
			}
			break
		}
		if claimed.Sign() == 0 {
			// Fallback kept from the reference behavior: consume what the
			// first record can cover. The ordered walk above always places
			// the full request, so this only guards a future regression.
			first := &records[0]
			take := decimal.Min(requested, first.Amount)
			first.Amount = first.Amount.Sub(take).Round(2)
			claimed = take
			if first.Amount.Sign() == 0 {
				consumed = append(consumed, first.ID)
			} else {
				split = first
			}
		}

		if len(consumed) > 0 {
			if err := tx.Delete(&models.TipRecord{}, "id IN ?", consumed).Error; err != nil {
				return err
			}
		}
		if split != nil {
			if err := tx.Model(&models.TipRecord{}).Where("id = ?", split.ID).Update("amount", split.Amount).Error; err != nil {
				return err
			}
		}
		if err := e.balances.Debit(tx, userID, models.BalanceTips, claimed); err != nil {
			return err
		}
		if err := e.balances.Credit(tx, userID, models.BalanceSpendable, claimed); err != nil {
			return err
		}
		var campaign models.Campaign
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, "id = ?", campaignID).Error
		switch {
		case err == nil:
			next := campaign.ClaimedAmount.Add(claimed).Round(2)
			if err := tx.Model(&models.Campaign{}).Where("id = ?", campaignID).Update("claimed_amount", next).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Claim still settles when the campaign row lives elsewhere.
		default:
			return err
		}
		if err := e.balances.Append(tx, models.LedgerEntry{
			UserID:    userID,
			Type:      models.EntryClaim,
			Amount:    claimed,
			Reference: fmt.Sprintf("campaign %s tip claim, %d records consumed", campaignID, len(consumed)),
		}); err != nil {
			return err
		}
		result.ClaimedAmount = claimed
		result.RecordsConsumed = len(consumed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.AddConsumedRecords(result.RecordsConsumed)
	return result, nil
}

// ClaimableCampaignTips returns the sum of unclaimed tip records for the
// creator and campaign without mutating state.
func (e *Engine) ClaimableCampaignTips(ctx context.Context, userID, campaignID uuid.UUID) (decimal.Decimal, error) {
	var records []models.TipRecord
	err := e.db.WithContext(ctx).
		Where("creator_id = ? AND campaign_id = ?", userID, campaignID).
		Find(&records).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.Amount)
	}
	return total, nil
}
