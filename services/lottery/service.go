package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flyerportal/pkg/config"
	"flyerportal/pkg/db"
	"flyerportal/pkg/db/option"
	"flyerportal/pkg/errutil"
	"flyerportal/pkg/events"
	"flyerportal/pkg/repository"
	"flyerportal/services/statistic"
	"flyerportal/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserIDRequired  = errutil.BadRequest("User ID is required", nil)
	ErrFlyerIDRequired = errutil.BadRequest("Flyer ID is required", nil)
	ErrFlyerNotFound   = errutil.NotFound("Flyer not found", nil)
	ErrBudgetMissing   = errutil.BadRequest("Flyer budget is missing", nil)
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	publisher events.Publisher
	wallets   *wallet.Service
	stats     *statistic.Service
	cache     *SummaryCache
	rng       RandomSource
	now       func() time.Time

	pool  repository.Repository[Pool]
	claim repository.Repository[Claim]
	flyer repository.Repository[flyer]
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Config     *config.Config `optional:"true"`
	Wallets    *wallet.Service
	Statistics *statistic.Service
	Publisher  events.Publisher `optional:"true"`
	Random     RandomSource     `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoop()
	}

	rng := p.Random
	if rng == nil {
		rng = DefaultRandomSource()
	}

	ttl := time.Minute
	if p.Config != nil && p.Config.Lottery.SummaryCacheTTL > 0 {
		ttl = p.Config.Lottery.SummaryCacheTTL
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		publisher: publisher,
		wallets:   p.Wallets,
		stats:     p.Statistics,
		cache:     NewSummaryCache(ttl),
		rng:       rng,
		now:       func() time.Time { return time.Now().UTC() },

		pool:  repository.ProvideStore[Pool](p.DB),
		claim: repository.ProvideStore[Claim](p.DB),
		flyer: repository.ProvideStore[flyer](p.DB),
	}
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Provision inserts the pool for flyerID if it does not exist yet and returns
// the stored row locked for update.
func (s *Service) Provision(ctx context.Context, tx *gorm.DB, flyerID string, budget decimal.Decimal) (*Pool, error) {
	fresh := NewPool(flyerID, budget, s.now())
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, err
	}

	stored, err := s.pool.WithTrx(tx).FindOne(ctx, &Pool{FlyerID: flyerID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("lottery pool %s missing after provisioning", flyerID)
	}
	return stored, nil
}

func (s *Service) lockPool(ctx context.Context, tx *gorm.DB, f *flyer) (*Pool, error) {
	p, err := s.pool.WithTrx(tx).FindOne(ctx, &Pool{FlyerID: f.ID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	zap.L().With(spanFields(ctx)...).Warn("lottery pool missing, provisioning from flyer budget", zap.String("flyer_id", f.ID))
	return s.Provision(ctx, tx, f.ID, f.Budget)
}

// Claim grants userID at most one reward from flyerID's pool. AlreadyClaimed
// and PoolDepleted are outcomes, not errors; neither writes anything.
func (s *Service) Claim(ctx context.Context, userID, flyerID string) (*ClaimResult, error) {
	logger := zap.L().With(spanFields(ctx)...).With(
		zap.String("user_id", userID),
		zap.String("flyer_id", flyerID),
	)

	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if flyerID == "" {
		return nil, ErrFlyerIDRequired
	}

	var result *ClaimResult
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		result = nil

		f, err := s.flyer.WithTrx(tx).FindOne(ctx, &flyer{ID: flyerID})
		if err != nil {
			return err
		}
		if f == nil {
			return ErrFlyerNotFound
		}
		if !f.Budget.IsPositive() {
			return ErrBudgetMissing
		}

		pool, err := s.lockPool(ctx, tx, f)
		if err != nil {
			return err
		}

		existing, err := s.claim.WithTrx(tx).FindOne(ctx, &Claim{FlyerID: flyerID, UserID: userID})
		if err != nil {
			return err
		}
		if existing != nil {
			result = &ClaimResult{Outcome: ClaimOutcomeAlreadyClaimed, Claim: existing, Summary: pool.Summary()}
			return nil
		}

		if pool.Depleted() {
			result = &ClaimResult{Outcome: ClaimOutcomePoolDepleted, Summary: pool.Summary()}
			return nil
		}

		w, err := s.wallets.FindActiveWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		// All reads are done; writes follow.
		now := s.now()
		reward := pool.DrawReward(s.rng)
		pool.Settle(reward, now)

		if err := s.pool.WithTrx(tx).Update(ctx, pool.FlyerID, map[string]any{
			"claims":     pool.Claims,
			"remaining":  pool.Remaining,
			"status":     pool.Status,
			"updated_at": now,
		}); err != nil {
			return err
		}

		record := &Claim{
			ID:             s.node.Generate().String(),
			FlyerID:        flyerID,
			UserID:         userID,
			WalletID:       w.ID,
			Reward:         reward,
			ClaimNumber:    pool.Claims,
			RemainingAfter: pool.Remaining,
			ClaimedAt:      now,
		}
		if err := s.claim.WithTrx(tx).Create(ctx, record); err != nil {
			return err
		}

		if err := s.wallets.Apply(ctx, tx, w, wallet.TransactionTypeAdd, reward); err != nil {
			return err
		}

		if err := s.stats.IncrementClaim(ctx, tx, f.CompanyID, now, reward); err != nil {
			return err
		}

		result = &ClaimResult{Outcome: ClaimOutcomeClaimed, Claim: record, Summary: pool.Summary()}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		logger.Info("concurrent claim by the same user, returning stored claim")
		return s.alreadyClaimed(ctx, userID, flyerID)
	}
	if err != nil {
		if _, ok := errutil.As(err); ok {
			return nil, err
		}
		logger.Error("lottery claim failed", zap.Error(err))
		return nil, fmt.Errorf("lottery claim: %w", err)
	}

	switch result.Outcome {
	case ClaimOutcomeClaimed:
		s.cache.Invalidate(flyerID)
		logger.Info("lottery reward claimed",
			zap.String("reward", result.Claim.Reward.StringFixed(2)),
			zap.Int64("claim_number", result.Claim.ClaimNumber),
		)
		events.PublishQuietly(ctx, s.publisher, events.Event{
			Subject: events.SubjectLotteryClaimed,
			Key:     flyerID,
			Payload: result.Claim,
		})
	case ClaimOutcomeAlreadyClaimed:
		logger.Info("lottery already claimed")
	case ClaimOutcomePoolDepleted:
		logger.Info("lottery pool depleted")
	}

	return result, nil
}

func (s *Service) alreadyClaimed(ctx context.Context, userID, flyerID string) (*ClaimResult, error) {
	existing, err := s.claim.FindOne(ctx, &Claim{FlyerID: flyerID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("read claim: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("claim %s:%s missing after duplicate key", flyerID, userID)
	}

	summary, err := s.Summary(ctx, flyerID)
	if err != nil {
		return nil, err
	}

	return &ClaimResult{Outcome: ClaimOutcomeAlreadyClaimed, Claim: existing, Summary: summary}, nil
}

// Summary returns the cached display view of a flyer's pool. Flyers whose pool
// has not been provisioned yet report the values the pool would start with.
func (s *Service) Summary(ctx context.Context, flyerID string) (Summary, error) {
	if flyerID == "" {
		return Summary{}, ErrFlyerIDRequired
	}

	return s.cache.Load(flyerID, func() (Summary, error) {
		p, err := s.pool.FindOne(ctx, &Pool{FlyerID: flyerID})
		if err != nil {
			return Summary{}, err
		}
		if p != nil {
			return p.Summary(), nil
		}

		f, err := s.flyer.FindOne(ctx, &flyer{ID: flyerID})
		if err != nil {
			return Summary{}, err
		}
		if f == nil {
			return Summary{}, ErrFlyerNotFound
		}
		if !f.Budget.IsPositive() {
			return Summary{}, ErrBudgetMissing
		}
		return NewPool(f.ID, f.Budget, s.now()).Summary(), nil
	})
}
