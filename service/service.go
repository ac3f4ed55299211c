// Package service composes the ledger, settlement, credibility and quota
// engines behind the programmatic surface consumed by request handlers.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"fundcore/config"
	"fundcore/credibility"
	"fundcore/ledger"
	"fundcore/models"
	"fundcore/observability"
	"fundcore/observability/logging"
	otelinit "fundcore/observability/otel"
	"fundcore/quota"
	"fundcore/settlement"
	"fundcore/storage"
)

// Config captures the service dependencies and policy knobs.
type Config struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FeeRate       decimal.Decimal
	MinimumFee    decimal.Decimal
	PaidSlotPrice decimal.Decimal
	Now           func() time.Time
}

// Service is the single entry point for the claim-settlement and quota core.
type Service struct {
	db          *gorm.DB
	ledger      *ledger.Store
	settlement  *settlement.Engine
	credibility *credibility.Engine
	quota       *quota.Engine
	metrics     *observability.SettlementMetrics
	log         *slog.Logger
	tracer      trace.Tracer
}

// New wires the engines over a shared database handle.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := ledger.NewStore(cfg.DB, cfg.Now)
	settlementMetrics := observability.Settlement()
	return &Service{
		db:     cfg.DB,
		ledger: store,
		settlement: settlement.NewEngine(settlement.Config{
			DB:         cfg.DB,
			Balances:   store,
			FeeRate:    cfg.FeeRate,
			MinimumFee: cfg.MinimumFee,
			Metrics:    settlementMetrics,
			Now:        cfg.Now,
		}),
		credibility: credibility.NewEngine(cfg.DB, cfg.Now),
		quota: quota.NewEngine(quota.Config{
			DB:            cfg.DB,
			Ledger:        store,
			PaidSlotPrice: cfg.PaidSlotPrice,
			Metrics:       observability.Quota(),
			Now:           cfg.Now,
		}),
		metrics: settlementMetrics,
		log:     logger,
		tracer:  otel.Tracer("fundcore/service"),
	}
}

// NewFromConfig opens the configured database, installs the process logger
// and, when enabled, the telemetry exporters, then wires the service over
// them. The returned shutdown function flushes telemetry during teardown.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Service, func(context.Context) error, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup("fundcore", cfg.Environment)
	shutdown := func(context.Context) error { return nil }
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		stop, err := otelinit.Init(ctx, otelinit.Config{
			ServiceName: "fundcore",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otelinit.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return nil, nil, err
		}
		shutdown = stop
	}
	svc := New(Config{
		DB:            db,
		Logger:        logger,
		FeeRate:       cfg.Fees.FeeRate(),
		MinimumFee:    cfg.Fees.Minimum(),
		PaidSlotPrice: cfg.Quota.SlotPrice(),
	})
	return svc, shutdown, nil
}

// Ledger exposes the underlying balance store for deposit, withdrawal and
// correction event handlers.
func (s *Service) Ledger() *ledger.Store { return s.ledger }

// Credibility exposes the rating-based score engine.
func (s *Service) Credibility() *credibility.Engine { return s.credibility }

// ClaimTips settles tip earnings into the spendable balance and returns the
// net amount after the handling fee. A nil amount claims the full balance.
func (s *Service) ClaimTips(ctx context.Context, userID uuid.UUID, amount *decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "ClaimTips", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()
	start := time.Now()
	net, err := s.settlement.ClaimTips(ctx, userID, amount)
	s.metrics.ObserveClaim("tips", time.Since(start), err)
	if err != nil {
		s.log.WarnContext(ctx, "tips claim rejected", "user_id", userID, "error", err)
		return decimal.Zero, err
	}
	s.log.InfoContext(ctx, "tips claim settled", "user_id", userID, "net", net.StringFixed(2))
	return net, nil
}

// ClaimContributions settles contribution earnings into the spendable balance
// and returns the net amount after the handling fee.
func (s *Service) ClaimContributions(ctx context.Context, userID uuid.UUID, amount *decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "ClaimContributions", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()
	start := time.Now()
	net, err := s.settlement.ClaimContributions(ctx, userID, amount)
	s.metrics.ObserveClaim("contributions", time.Since(start), err)
	if err != nil {
		s.log.WarnContext(ctx, "contributions claim rejected", "user_id", userID, "error", err)
		return decimal.Zero, err
	}
	s.log.InfoContext(ctx, "contributions claim settled", "user_id", userID, "net", net.StringFixed(2))
	return net, nil
}

// ClaimCampaignTips settles tips tied to one campaign at tip-record
// granularity, without a fee.
func (s *Service) ClaimCampaignTips(ctx context.Context, userID, campaignID uuid.UUID, amount decimal.Decimal) (*settlement.CampaignClaim, error) {
	ctx, span := s.tracer.Start(ctx, "ClaimCampaignTips", trace.WithAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("campaign_id", campaignID.String()),
	))
	defer span.End()
	start := time.Now()
	claim, err := s.settlement.ClaimCampaignTips(ctx, userID, campaignID, amount)
	s.metrics.ObserveClaim("campaign_tips", time.Since(start), err)
	if err != nil {
		s.log.WarnContext(ctx, "campaign tip claim rejected", "user_id", userID, "campaign_id", campaignID, "error", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "campaign tip claim settled",
		"user_id", userID,
		"campaign_id", campaignID,
		"claimed", claim.ClaimedAmount.StringFixed(2),
		"records_consumed", claim.RecordsConsumed,
	)
	return claim, nil
}

// RecordTip registers an incoming tip event.
func (s *Service) RecordTip(ctx context.Context, creatorID, campaignID uuid.UUID, amount decimal.Decimal, note string) (*models.TipRecord, error) {
	return s.settlement.RecordTip(ctx, creatorID, campaignID, amount, note)
}

// RecordContribution registers an incoming contribution event.
func (s *Service) RecordContribution(ctx context.Context, creatorID, campaignID uuid.UUID, amount decimal.Decimal) error {
	return s.settlement.RecordContribution(ctx, creatorID, campaignID, amount)
}

// CanCreateCampaign evaluates the campaign-creation gates for the user.
func (s *Service) CanCreateCampaign(ctx context.Context, userID uuid.UUID) (*quota.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "CanCreateCampaign", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()
	decision, err := s.quota.CanCreateCampaign(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.log.InfoContext(ctx, "campaign creation denied", "user_id", userID, "reason", decision.Reason)
	}
	return decision, nil
}

// CampaignSlotInfo reports the user's quota standing for the current month.
func (s *Service) CampaignSlotInfo(ctx context.Context, userID uuid.UUID) (*quota.SlotInfo, error) {
	return s.quota.CampaignSlotInfo(ctx, userID)
}

// RecordCampaignCreated consumes one campaign slot for the current month.
func (s *Service) RecordCampaignCreated(ctx context.Context, userID uuid.UUID) error {
	return s.quota.RecordCampaignCreated(ctx, userID)
}

// UpdateCredibility recomputes the user's rating-derived score and persists
// the resulting account status.
func (s *Service) UpdateCredibility(ctx context.Context, userID uuid.UUID) (int, models.AccountStatus, error) {
	return s.credibility.UpdateStatus(ctx, userID)
}
