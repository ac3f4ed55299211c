package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fundcore/models"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, spendable, tips, contributions string) uuid.UUID {
	t.Helper()
	user := models.User{
		ID:                   uuid.New(),
		Email:                uuid.NewString() + "@example.com",
		SpendableBalance:     decimal.RequireFromString(spendable),
		TipsBalance:          decimal.RequireFromString(tips),
		ContributionsBalance: decimal.RequireFromString(contributions),
		AccountStatus:        models.StatusActive,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

func loadUser(t *testing.T, db *gorm.DB, id uuid.UUID) models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user
}

func TestCreditAndDebitRoundTrip(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "0", "0", "0")

	err := db.Transaction(func(tx *gorm.DB) error {
		return store.Credit(tx, userID, models.BalanceTips, decimal.RequireFromString("10.505"))
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	user := loadUser(t, db, userID)
	if !user.TipsBalance.Equal(decimal.RequireFromString("10.51")) {
		t.Fatalf("expected rounded tips balance 10.51 got %s", user.TipsBalance)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.Debit(tx, userID, models.BalanceTips, decimal.RequireFromString("10.51"))
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	user = loadUser(t, db, userID)
	if !user.TipsBalance.IsZero() {
		t.Fatalf("expected zero tips balance got %s", user.TipsBalance)
	}
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "0", "0", "0")

	for _, raw := range []string{"0", "-5"} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return store.Credit(tx, userID, models.BalanceSpendable, decimal.RequireFromString(raw))
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for %s got %v", raw, err)
		}
	}
}

func TestDebitNeverDrivesBalanceNegative(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "25.00", "0", "0")

	err := db.Transaction(func(tx *gorm.DB) error {
		return store.Debit(tx, userID, models.BalanceSpendable, decimal.RequireFromString("25.01"))
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance got %v", err)
	}
	user := loadUser(t, db, userID)
	if !user.SpendableBalance.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("balance mutated on failed debit: %s", user.SpendableBalance)
	}
}

func TestDebitUnknownUser(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)

	err := db.Transaction(func(tx *gorm.DB) error {
		return store.Debit(tx, uuid.New(), models.BalanceSpendable, decimal.NewFromInt(1))
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found got %v", err)
	}
}

func TestRecordDepositWritesLedgerEntry(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "0", "0", "0")

	if err := store.RecordDeposit(context.Background(), userID, decimal.RequireFromString("120.00"), "bank ref 42"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	user := loadUser(t, db, userID)
	if !user.SpendableBalance.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("expected spendable 120.00 got %s", user.SpendableBalance)
	}

	var entry models.LedgerEntry
	if err := db.First(&entry, "user_id = ? AND type = ?", userID, models.EntryDeposit).Error; err != nil {
		t.Fatalf("load deposit entry: %v", err)
	}
	if entry.Status != models.EntryCompleted {
		t.Fatalf("expected completed entry got %s", entry.Status)
	}
	if entry.Reference != "bank ref 42" {
		t.Fatalf("unexpected reference %q", entry.Reference)
	}
}

func TestRecordWithdrawalRollsBackOnInsufficientFunds(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "10.00", "0", "0")

	err := store.RecordWithdrawal(context.Background(), userID, decimal.RequireFromString("11.00"), "")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance got %v", err)
	}
	var count int64
	if err := db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ledger entries after rollback got %d", count)
	}
}

func TestCorrectionBypassesValidationAndAudits(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "50.00", "0", "0")

	err := store.Correction(context.Background(), userID, models.BalanceSpendable, decimal.RequireFromString("5.00"), "chargeback adjustment")
	if err != nil {
		t.Fatalf("correction: %v", err)
	}
	user := loadUser(t, db, userID)
	if !user.SpendableBalance.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("expected spendable 5.00 got %s", user.SpendableBalance)
	}

	var entry models.LedgerEntry
	if err := db.First(&entry, "user_id = ? AND type = ?", userID, models.EntryCorrection).Error; err != nil {
		t.Fatalf("load correction entry: %v", err)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("-45.00")) {
		t.Fatalf("expected correction delta -45.00 got %s", entry.Amount)
	}
	if entry.Reference == "" {
		t.Fatalf("expected correction reason in audit trail")
	}
}

func TestCorrectionRequiresReason(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "50.00", "0", "0")

	if err := store.Correction(context.Background(), userID, models.BalanceSpendable, decimal.Zero, "  "); err == nil {
		t.Fatalf("expected error for missing correction reason")
	}
}

func TestHasClaimHistory(t *testing.T) {
	db := setupLedgerTestDB(t)
	store := NewStore(db, time.Now)
	userID := seedUser(t, db, "0", "0", "0")

	has, err := store.HasClaimHistory(context.Background(), userID)
	if err != nil {
		t.Fatalf("claim history: %v", err)
	}
	if has {
		t.Fatalf("expected no claim history")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return store.Append(tx, models.LedgerEntry{
			UserID: userID,
			Type:   models.EntryClaim,
			Amount: decimal.NewFromInt(10),
		})
	})
	if err != nil {
		t.Fatalf("append claim entry: %v", err)
	}

	has, err = store.HasClaimHistory(context.Background(), userID)
	if err != nil {
		t.Fatalf("claim history: %v", err)
	}
	if !has {
		t.Fatalf("expected claim history after claim entry")
	}
}
