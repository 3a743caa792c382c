package statistic

import (
	"flyerportal/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("statistic.service",
	fx.Provide(NewService),
)

// Worker registers the rebuild handler and the daily scheduler.
var Worker = fx.Module("statistic.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(registerHandlers, StartScheduler),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.StatisticRebuild, s.HandleRebuild)
}
