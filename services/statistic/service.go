package statistic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flyerportal/pkg/errutil"
	"flyerportal/pkg/repository"
	"flyerportal/pkg/task"
	"flyerportal/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer

	statistic repository.Repository[CompanyStatistic]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,

		statistic: repository.ProvideStore[CompanyStatistic](p.DB),
	}
}

// IncrementClaim records one rewarded claim. It must run inside the claim transaction.
func (s *Service) IncrementClaim(ctx context.Context, tx *gorm.DB, companyID string, at time.Time, reward decimal.Decimal) error {
	return s.increment(ctx, tx, companyID, at, Delta{ClaimCount: 1, TotalReward: reward})
}

// IncrementFlyer records one created flyer. It must run inside the creating transaction.
func (s *Service) IncrementFlyer(ctx context.Context, tx *gorm.DB, companyID string, at time.Time, maxUsers int64, eventMoney decimal.Decimal) error {
	return s.increment(ctx, tx, companyID, at, Delta{FlyerCount: 1, TotalMaxUsers: maxUsers, TotalEventMoney: eventMoney})
}

// increment is an additive upsert; concurrent writers never lose updates
// because the sums are computed by the database.
func (s *Service) increment(ctx context.Context, tx *gorm.DB, companyID string, at time.Time, d Delta) error {
	if companyID == "" {
		return nil
	}

	at = at.UTC()
	now := time.Now().UTC()
	row := &CompanyStatistic{
		ID:              s.node.Generate().String(),
		CompanyID:       companyID,
		Period:          Period(at),
		Year:            at.Year(),
		Month:           int(at.Month()),
		ClaimCount:      d.ClaimCount,
		TotalReward:     d.TotalReward,
		FlyerCount:      d.FlyerCount,
		TotalMaxUsers:   d.TotalMaxUsers,
		TotalEventMoney: d.TotalEventMoney,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]any{
			"claim_count":       gorm.Expr("company_statistics.claim_count + ?", d.ClaimCount),
			"total_reward":      gorm.Expr("company_statistics.total_reward + ?", d.TotalReward),
			"flyer_count":       gorm.Expr("company_statistics.flyer_count + ?", d.FlyerCount),
			"total_max_users":   gorm.Expr("company_statistics.total_max_users + ?", d.TotalMaxUsers),
			"total_event_money": gorm.Expr("company_statistics.total_event_money + ?", d.TotalEventMoney),
			"updated_at":        now,
		}),
	}).Create(row).Error
}

func (s *Service) Get(ctx context.Context, companyID, period string) (*CompanyStatistic, error) {
	return s.statistic.FindOne(ctx, &CompanyStatistic{CompanyID: companyID, Period: period})
}

type flyerAggregate struct {
	FlyerCount      int64
	TotalMaxUsers   int64
	TotalEventMoney decimal.NullDecimal
}

type claimAggregate struct {
	ClaimCount  int64
	TotalReward decimal.NullDecimal
}

// Rebuild recomputes one company month from flyers and lottery claims and
// overwrites the stored row.
func (s *Service) Rebuild(ctx context.Context, companyID, period string) (*CompanyStatistic, error) {
	logger := zap.L().With(zap.String("company_id", companyID), zap.String("period", period))

	if companyID == "" {
		return nil, errutil.BadRequest("Company ID is required", nil)
	}
	start, end, err := PeriodRange(period)
	if err != nil {
		return nil, errutil.BadRequest("Invalid period", err)
	}

	var flyers flyerAggregate
	if err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS flyer_count,
		       COALESCE(SUM(p.max_users), 0) AS total_max_users,
		       SUM(p.event_money) AS total_event_money
		FROM flyers f
		JOIN lottery_pools p ON p.flyer_id = f.id
		WHERE f.company_id = ? AND f.created_at >= ? AND f.created_at < ?`,
		companyID, start, end,
	).Scan(&flyers).Error; err != nil {
		logger.Error("failed to aggregate flyers", zap.Error(err))
		return nil, err
	}

	var claims claimAggregate
	if err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS claim_count,
		       SUM(c.reward) AS total_reward
		FROM lottery_claims c
		JOIN flyers f ON f.id = c.flyer_id
		WHERE f.company_id = ? AND c.claimed_at >= ? AND c.claimed_at < ?`,
		companyID, start, end,
	).Scan(&claims).Error; err != nil {
		logger.Error("failed to aggregate claims", zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	row := &CompanyStatistic{
		ID:              s.node.Generate().String(),
		CompanyID:       companyID,
		Period:          period,
		Year:            start.Year(),
		Month:           int(start.Month()),
		ClaimCount:      claims.ClaimCount,
		TotalReward:     claims.TotalReward.Decimal.Round(2),
		FlyerCount:      flyers.FlyerCount,
		TotalMaxUsers:   flyers.TotalMaxUsers,
		TotalEventMoney: flyers.TotalEventMoney.Decimal.Round(2),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]any{
			"claim_count":       row.ClaimCount,
			"total_reward":      row.TotalReward,
			"flyer_count":       row.FlyerCount,
			"total_max_users":   row.TotalMaxUsers,
			"total_event_money": row.TotalEventMoney,
			"updated_at":        now,
		}),
	}).Create(row).Error; err != nil {
		logger.Error("failed to store rebuilt statistics", zap.Error(err))
		return nil, err
	}

	logger.Info("statistics rebuilt",
		zap.Int64("claim_count", row.ClaimCount),
		zap.Int64("flyer_count", row.FlyerCount),
	)

	return s.Get(ctx, companyID, period)
}

// EnqueueRebuildAll schedules a rebuild of period for every company owning a flyer.
func (s *Service) EnqueueRebuildAll(ctx context.Context, period string) (int, error) {
	if s.enqueuer == nil {
		return 0, fmt.Errorf("task enqueuer is not configured")
	}

	var companies []string
	if err := s.db.WithContext(ctx).
		Table("flyers").
		Where("company_id <> ?", "").
		Distinct().
		Pluck("company_id", &companies).Error; err != nil {
		return 0, err
	}

	enqueued := 0
	for _, companyID := range companies {
		payload, err := json.Marshal(RebuildPayload{CompanyID: companyID, Period: period})
		if err != nil {
			return enqueued, err
		}

		_, err = s.enqueuer.Enqueue(ctx,
			asynq.NewTask(taskname.StatisticRebuild, payload),
			asynq.Queue(taskname.QueueLow),
			asynq.TaskID(fmt.Sprintf("%s:%s:%s", taskname.StatisticRebuild, companyID, period)),
			asynq.Retention(time.Hour),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			zap.L().Error("failed to enqueue statistic rebuild", zap.String("company_id", companyID), zap.Error(err))
			return enqueued, err
		}
		enqueued++
	}

	return enqueued, nil
}
