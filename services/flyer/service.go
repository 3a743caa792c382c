package flyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flyerportal/pkg/db"
	"flyerportal/pkg/errutil"
	"flyerportal/pkg/events"
	"flyerportal/pkg/featureflags"
	"flyerportal/pkg/repository"
	"flyerportal/pkg/sequence"
	"flyerportal/pkg/task"
	"flyerportal/pkg/taskname"
	"flyerportal/services/lottery"
	"flyerportal/services/statistic"
	"flyerportal/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidType       = errutil.BadRequest("Flyer type must be one of leaflet, query, qr", nil)
	ErrInvalidBudget     = errutil.BadRequest("Budget must be positive", nil)
	ErrCompanyIDRequired = errutil.BadRequest("Company ID is required", nil)
	ErrFlyerNotFound     = errutil.NotFound("Flyer not found", nil)
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	enqueuer  task.Enqueuer
	flags     featureflags.FeatureFlag
	publisher events.Publisher
	lottery   *lottery.Service
	stats     *statistic.Service
	wallets   *wallet.Service
	now       func() time.Time

	repo repository.Repository[Flyer]
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Seq        sequence.Generator
	Lottery    *lottery.Service
	Statistics *statistic.Service
	Wallets    *wallet.Service
	Enqueuer   task.Enqueuer            `optional:"true"`
	Flags      featureflags.FeatureFlag `optional:"true"`
	Publisher  events.Publisher         `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoop()
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		enqueuer:  p.Enqueuer,
		flags:     p.Flags,
		publisher: publisher,
		lottery:   p.Lottery,
		stats:     p.Statistics,
		wallets:   p.Wallets,
		now:       func() time.Time { return time.Now().UTC() },
		repo:      repository.ProvideStore[Flyer](p.DB),
	}
}

func (r CreateFlyerRequest) validate() error {
	if r.CompanyID == "" {
		return ErrCompanyIDRequired
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	if !r.Budget.IsPositive() {
		return ErrInvalidBudget
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errutil.BadRequest("Flyer data must be valid JSON", nil)
	}
	return nil
}

// CreateFlyer stores the flyer together with its lottery pool and the company
// statistics in one transaction.
func (s *Service) CreateFlyer(ctx context.Context, req CreateFlyerRequest) (*Flyer, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("company_id", req.CompanyID),
	)

	if err := req.validate(); err != nil {
		return nil, err
	}

	code, err := s.seq.NextFlyerCode(ctx, req.CompanyID)
	if err != nil {
		zapLog.Error("failed to generate flyer code", zap.Error(err))
		return nil, errutil.Internal("Failed to create flyer", err)
	}

	title := req.Title
	if title == "" {
		title = fmt.Sprintf("%s flyer", req.Type)
	}

	now := s.now()
	flyer := &Flyer{
		ID:              s.node.Generate().String(),
		Code:            code,
		Slug:            slug.Make(fmt.Sprintf("%s %s", title, code)),
		Title:           title,
		Type:            req.Type,
		CompanyID:       req.CompanyID,
		CreatedBy:       req.CreatedBy,
		Status:          StatusActive,
		Budget:          req.Budget.Round(2),
		Payload:         datatypes.JSON(req.Payload),
		CouponType:      req.Coupon.CouponType,
		CouponFile:      req.Coupon.CouponFile,
		TermsConditions: req.Coupon.TermsConditions,
		ExpiredDate:     req.Coupon.ExpiredDate,
		DiscountValue:   req.Coupon.DiscountValue,
		ItemDescription: req.Coupon.ItemDescription,
		CompanyIcon:     req.Coupon.CompanyIcon,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var pool *lottery.Pool
	if err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, flyer); err != nil {
			return fmt.Errorf("failed to create flyer: %w", err)
		}

		p, err := s.lottery.Provision(ctx, tx, flyer.ID, flyer.Budget)
		if err != nil {
			return fmt.Errorf("failed to create lottery pool: %w", err)
		}
		pool = p

		if err := s.stats.IncrementFlyer(ctx, tx, flyer.CompanyID, now, p.MaxUsers, p.EventMoney); err != nil {
			return fmt.Errorf("failed to update statistics: %w", err)
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to create flyer", zap.Error(err))
		return nil, err
	}

	zapLog.Info("flyer created",
		zap.String("flyer_id", flyer.ID),
		zap.String("code", flyer.Code),
		zap.Int64("max_users", pool.MaxUsers),
		zap.String("lottery_money", pool.LotteryMoney.StringFixed(2)),
	)

	events.PublishQuietly(ctx, s.publisher, events.Event{
		Subject: events.SubjectFlyerCreated,
		Key:     flyer.ID,
		Payload: flyer,
	})

	s.scheduleDistribution(ctx, flyer)

	return flyer, nil
}

func (s *Service) scheduleDistribution(ctx context.Context, f *Flyer) {
	zapLog := zap.L().With(zap.String("flyer_id", f.ID))

	if s.flags != nil && !s.flags.IsEnabled(ctx, f.CompanyID, featureflags.FlyerTokenDistribution) {
		zapLog.Info("token distribution disabled")
		return
	}
	if s.enqueuer == nil {
		zapLog.Warn("task enqueuer not configured, skipping token distribution")
		return
	}

	payload, err := json.Marshal(DistributePayload{FlyerID: f.ID})
	if err != nil {
		zapLog.Error("failed to marshal distribution payload", zap.Error(err))
		return
	}

	_, err = s.enqueuer.Enqueue(ctx,
		asynq.NewTask(taskname.FlyerDistribute, payload),
		asynq.Queue(taskname.QueueDefault),
		asynq.TaskID(fmt.Sprintf("%s:%s", taskname.FlyerDistribute, f.ID)),
		asynq.MaxRetry(10),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		zapLog.Error("failed to enqueue token distribution", zap.Error(err))
	}
}

func (s *Service) GetFlyer(ctx context.Context, flyerID string) (*Flyer, error) {
	if flyerID == "" {
		return nil, ErrFlyerNotFound
	}
	f, err := s.repo.FindOne(ctx, &Flyer{ID: flyerID})
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrFlyerNotFound
	}
	return f, nil
}

// DistributionKey is the idempotency key of a flyer's share credited to one wallet.
func DistributionKey(flyerID string) string {
	return fmt.Sprintf("flyer:%s:distribution", flyerID)
}
