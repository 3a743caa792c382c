package statistic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleRebuild processes taskname.StatisticRebuild.
func (s *Service) HandleRebuild(ctx context.Context, t *asynq.Task) error {
	var payload RebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("company_id", payload.CompanyID),
		zap.String("period", payload.Period),
	)
	zapLog.Info("start statistic rebuild")

	if _, err := s.Rebuild(ctx, payload.CompanyID, payload.Period); err != nil {
		zapLog.Error("statistic rebuild failed", zap.Error(err))
		return err
	}

	return nil
}
