// Package ledger implements the per-user three-balance store and the
// append-only transaction ledger behind it. Balance mutations are designed to
// run inside a caller supplied transaction together with the ledger entry that
// caused them, so either every row changes or none do.
package ledger

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

	"fundcore/models"
)

var (
	// ErrInvalidAmount indicates a non-positive amount was supplied.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrInsufficientBalance indicates a debit would drive a balance negative.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrUserNotFound indicates the user row does not exist.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrUnknownBalanceKind indicates an unrecognised balance selector.
	ErrUnknownBalanceKind = errors.New("ledger: unknown balance kind")
)

// Store wraps balance and ledger persistence.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore constructs a store backed by the provided database.
func NewStore(db *gorm.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

func balanceColumn(kind models.BalanceKind) (string, error) {
	switch kind {
	case models.BalanceSpendable:
		return "spendable_balance", nil
	case models.BalanceTips:
		return "tips_balance", nil
	case models.BalanceContributions:
		return "contributions_balance", nil
	}
	return "", ErrUnknownBalanceKind
}

// LockUser loads the user row under a FOR UPDATE lock within tx.
func LockUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Credit adds amount to the selected balance inside tx. The new balance is
// persisted with two-decimal rounding.
func (s *Store) Credit(tx *gorm.DB, userID uuid.UUID, kind models.BalanceKind, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	column, err := balanceColumn(kind)
	if err != nil {
		return err
	}
	user, err := LockUser(tx, userID)
	if err != nil {
		return err
	}
	next := user.Balance(kind).Add(amount).Round(2)
	return tx.Model(&models.User{}).Where("id = ?", userID).Update(column, next).Error
}

// Debit subtracts amount from the selected balance inside tx. The balance is
// never allowed below zero.
func (s *Store) Debit(tx *gorm.DB, userID uuid.UUID, kind models.BalanceKind, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	column, err := balanceColumn(kind)
	if err != nil {
		return err
	}
	user, err := LockUser(tx, userID)
	if err != nil {
		return err
	}
	next := user.Balance(kind).Sub(amount).Round(2)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Update(column, next).Error
}

// Append inserts a ledger entry inside tx. Missing identifiers, timestamps
// and status are filled in; completed status is the default.
func (s *Store) Append(tx *gorm.DB, entry models.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.EntryCompleted
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.UpdatedAt = entry.CreatedAt
	entry.Amount = entry.Amount.Round(2)
	return tx.Create(&entry).Error
}

// RecordDeposit credits the spendable balance from an external payment rail
// event and records the matching ledger entry in one transaction.
func (s *Store) RecordDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Credit(tx, userID, models.BalanceSpendable, amount); err != nil {
			return err
		}
		return s.Append(tx, models.LedgerEntry{
			UserID:    userID,
			Type:      models.EntryDeposit,
			Amount:    amount,
			Reference: strings.TrimSpace(reference),
		})
	})
}

// RecordWithdrawal debits the spendable balance for an external payout event
// and records the matching ledger entry in one transaction.
func (s *Store) RecordWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reference string) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.Debit(tx, userID, models.BalanceSpendable, amount); err != nil {
			return err
		}
		return s.Append(tx, models.LedgerEntry{
			UserID:    userID,
			Type:      models.EntryWithdrawal,
			Amount:    amount,
			Reference: strings.TrimSpace(reference),
		})
	})
}

// Correction sets a balance column directly, bypassing debit validation. The
// reason is mandatory and lands in the audit trail alongside the new value.
func (s *Store) Correction(ctx context.Context, userID uuid.UUID, kind models.BalanceKind, balance decimal.Decimal, reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return errors.New("ledger: correction reason required")
	}
	column, err := balanceColumn(kind)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := LockUser(tx, userID)
		if err != nil {
			return err
		}
		next := balance.Round(2)
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update(column, next).Error; err != nil {
			return err
		}
		delta := next.Sub(user.Balance(kind))
		return s.Append(tx, models.LedgerEntry{
			UserID:    userID,
			Type:      models.EntryCorrection,
			Amount:    delta,
			Reference: fmt.Sprintf("%s balance set to %s: %s", kind, next.StringFixed(2), trimmed),
		})
	})
}

// Entries returns the user's ledger entries, newest first.
func (s *Store) Entries(ctx context.Context, userID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// HasClaimHistory reports whether the user has ever settled a claim.
func (s *Store) HasClaimHistory(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("user_id = ? AND type = ? AND status = ?", userID, models.EntryClaim, models.EntryCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
