package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountStatus represents the credibility-derived standing of a creator.
type AccountStatus string

// All account statuses.
const (
	StatusActive    AccountStatus = "active"
	StatusLimited   AccountStatus = "limited"
	StatusSuspended AccountStatus = "suspended"
	StatusBlocked   AccountStatus = "blocked"
)

// BalanceKind selects one of the three balance columns on the user row.
type BalanceKind string

// All balance kinds.
const (
	BalanceSpendable     BalanceKind = "spendable"
	BalanceTips          BalanceKind = "tips"
	BalanceContributions BalanceKind = "contributions"
)

// EntryType classifies the business reason for a ledger entry.
type EntryType string

// All ledger entry types.
const (
	EntryDeposit      EntryType = "deposit"
	EntryWithdrawal   EntryType = "withdrawal"
	EntryContribution EntryType = "contribution"
	EntryTip          EntryType = "tip"
	EntryClaim        EntryType = "claim"
	EntryCorrection   EntryType = "correction"
)

// EntryStatus tracks the lifecycle of a ledger entry. Entries are immutable
// once completed.
type EntryStatus string

// All ledger entry statuses.
const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// CampaignStatus represents a campaign lifecycle state.
type CampaignStatus string

// All campaign statuses.
const (
	CampaignDraft            CampaignStatus = "draft"
	CampaignPublished        CampaignStatus = "published"
	CampaignCompleted        CampaignStatus = "completed"
	CampaignClosedWithRefund CampaignStatus = "closed_with_refund"
	CampaignFlagged          CampaignStatus = "flagged"
)

// DocumentKind identifies a progress report document category. The credit
// score measures how many distinct kinds a report covers.
type DocumentKind string

// All document kinds counted towards the document-completion credit score.
const (
	DocumentReceipt   DocumentKind = "receipt"
	DocumentInvoice   DocumentKind = "invoice"
	DocumentPhoto     DocumentKind = "photo"
	DocumentStatement DocumentKind = "statement"
)

// RequiredDocumentKinds is the variety denominator for the credit score.
const RequiredDocumentKinds = 4

// User is the aggregate root carrying the three-balance ledger and the
// credibility standing of a creator.
type User struct {
	ID                       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Email                    string          `gorm:"uniqueIndex;size:255"`
	SpendableBalance         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	TipsBalance              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ContributionsBalance     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CredibilityScore         int             `gorm:"not null;default:100"`
	AccountStatus            AccountStatus   `gorm:"size:16;not null;default:'active'"`
	RemainingCampaignChances int             `gorm:"not null;default:0"`
	Flagged                  bool            `gorm:"not null;default:false"`
	Suspended                bool            `gorm:"not null;default:false"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Balance returns the column value selected by kind.
func (u *User) Balance(kind BalanceKind) decimal.Decimal {
	switch kind {
	case BalanceSpendable:
		return u.SpendableBalance
	case BalanceTips:
		return u.TipsBalance
	case BalanceContributions:
		return u.ContributionsBalance
	}
	return decimal.Zero
}

// SetBalance assigns the column value selected by kind.
func (u *User) SetBalance(kind BalanceKind, amount decimal.Decimal) {
	switch kind {
	case BalanceSpendable:
		u.SpendableBalance = amount
	case BalanceTips:
		u.TipsBalance = amount
	case BalanceContributions:
		u.ContributionsBalance = amount
	}
}

// Campaign is referenced by settlement and quota decisions. A campaign is
// operational once its current amount has reached the configured minimum.
type Campaign struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CreatorID     uuid.UUID       `gorm:"type:uuid;index"`
	Title         string          `gorm:"size:255"`
	Status        CampaignStatus  `gorm:"size:32;index"`
	CurrentAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ClaimedAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	MinimumAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt     time.Time       `gorm:"index"`
	UpdatedAt     time.Time
}

// Operational reports whether the campaign has reached its minimum amount.
func (c *Campaign) Operational() bool {
	return c.CurrentAmount.GreaterThanOrEqual(c.MinimumAmount)
}

// TipRecord is a discrete slice of unclaimed tip money tied to one campaign
// and one creator. Records are deleted when fully consumed by a claim and
// reduced in place when split.
type TipRecord struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CampaignID uuid.UUID       `gorm:"type:uuid;index:idx_tip_records_creator_campaign,priority:2"`
	CreatorID  uuid.UUID       `gorm:"type:uuid;index:idx_tip_records_creator_campaign,priority:1"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt  time.Time       `gorm:"index"`
}

// LedgerEntry is one row of the append-only transaction ledger.
type LedgerEntry struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID       `gorm:"type:uuid;index"`
	Type      EntryType       `gorm:"size:16;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status    EntryStatus     `gorm:"size:16;index"`
	Reference string          `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyCampaignQuota tracks per-creator campaign creation for one calendar
// month. Rows are created lazily on first read and only CampaignsCreated
// changes afterwards.
type MonthlyCampaignQuota struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID       `gorm:"type:uuid;uniqueIndex:uk_quota_user_month,priority:1"`
	Year                int             `gorm:"uniqueIndex:uk_quota_user_month,priority:2"`
	Month               int             `gorm:"uniqueIndex:uk_quota_user_month,priority:3"`
	CampaignsCreated    int             `gorm:"not null;default:0"`
	MaxAllowed          int             `gorm:"not null;default:0"`
	PaidSlotsAvailable  int             `gorm:"not null;default:0"`
	PaidSlotPrice       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreditScoreSnapshot int             `gorm:"not null;default:0"`
	FirstMonth          bool            `gorm:"not null;default:false"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CampaignRating stores a 1-5 star rating left on a campaign.
type CampaignRating struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CampaignID uuid.UUID `gorm:"type:uuid;index"`
	RaterID    uuid.UUID `gorm:"type:uuid"`
	Stars      int       `gorm:"not null"`
	CreatedAt  time.Time
}

// ProgressReport is a creator update on a campaign. The attached documents
// feed the document-completion credit score.
type ProgressReport struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CampaignID uuid.UUID `gorm:"type:uuid;index"`
	CreatorID  uuid.UUID `gorm:"type:uuid;index"`
	Summary    string    `gorm:"type:text"`
	CreatedAt  time.Time
	Documents  []ProgressReportDocument
}

// ProgressReportDocument records one uploaded document on a progress report.
// Storage of the document itself lives outside this module; only the kind is
// needed for scoring.
type ProgressReportDocument struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey"`
	ProgressReportID uuid.UUID    `gorm:"type:uuid;index"`
	Kind             DocumentKind `gorm:"size:32"`
	ObjectKey        string       `gorm:"size:255"`
	CreatedAt        time.Time
}

// AutoMigrate performs all schema migrations for the core.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Campaign{},
		&TipRecord{},
		&LedgerEntry{},
		&MonthlyCampaignQuota{},
		&CampaignRating{},
		&ProgressReport{},
		&ProgressReportDocument{},
	)
}
