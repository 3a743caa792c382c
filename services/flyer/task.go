package flyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"flyerportal/services/lottery"
	"flyerportal/services/wallet"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	distributionPageSize    = 500
	distributionConcurrency = 8
)

// HandleDistribute credits the event cost share of a flyer's budget evenly to
// every active wallet. Each credit carries the same idempotency key, so a
// retried task only credits the wallets it missed.
func (s *Service) HandleDistribute(ctx context.Context, t *asynq.Task) error {
	var payload DistributePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("flyer_id", payload.FlyerID),
	)

	f, err := s.GetFlyer(ctx, payload.FlyerID)
	if errors.Is(err, ErrFlyerNotFound) {
		zapLog.Warn("flyer not found, dropping distribution")
		return fmt.Errorf("flyer %s not found: %w", payload.FlyerID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	total, err := s.wallets.CountActiveWallets(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		zapLog.Info("no active wallets, nothing to distribute")
		return nil
	}

	amount := DistributionShare(f.Budget, total)
	if !amount.IsPositive() {
		zapLog.Info("distribution share rounds to zero", zap.Int64("wallets", total))
		return nil
	}

	zapLog.Info("start token distribution",
		zap.Int64("wallets", total),
		zap.String("amount_per_wallet", amount.StringFixed(2)),
	)

	var (
		cursor   string
		credited atomic.Int64
		replayed atomic.Int64
	)
	for {
		wallets, page, err := s.wallets.ListActiveWallets(ctx, cursor, distributionPageSize)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(distributionConcurrency)
		for _, w := range wallets {
			g.Go(func() error {
				res, err := s.wallets.AddTokens(gctx, wallet.AddTokensRequest{
					UserID:         w.UserID,
					Amount:         amount,
					IdempotencyKey: DistributionKey(f.ID),
					Description:    fmt.Sprintf("Flyer %s distribution", f.Code),
				})
				if errors.Is(err, wallet.ErrWalletNotFound) {
					zapLog.Warn("wallet deactivated during distribution", zap.String("user_id", w.UserID))
					return nil
				}
				if err != nil {
					zapLog.Error("failed to credit wallet", zap.String("user_id", w.UserID), zap.Error(err))
					return err
				}
				if res.Outcome == wallet.TransactionOutcomeReplayed {
					replayed.Add(1)
				} else {
					credited.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if page == nil || !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	zapLog.Info("token distribution finished",
		zap.Int64("credited", credited.Load()),
		zap.Int64("replayed", replayed.Load()),
	)
	return nil
}

// DistributionShare is budget * eventCostPercent split over wallets, floored to cents.
func DistributionShare(budget decimal.Decimal, wallets int64) decimal.Decimal {
	if wallets <= 0 {
		return decimal.Zero
	}
	return budget.Mul(lottery.EventCostPercent).
		Div(decimal.NewFromInt(wallets)).
		Truncate(2)
}
