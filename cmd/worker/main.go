package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"flyerportal/pkg/config"
	"flyerportal/pkg/db"
	"flyerportal/pkg/events"
	"flyerportal/pkg/featureflags"
	"flyerportal/pkg/gen"
	"flyerportal/pkg/hashistack/secretmanager"
	"flyerportal/pkg/logger"
	"flyerportal/pkg/otelcol"
	"flyerportal/pkg/profiling"
	"flyerportal/pkg/redis"
	"flyerportal/pkg/sequence"
	"flyerportal/pkg/task"
	"flyerportal/services/flyer"
	"flyerportal/services/lottery"
	"flyerportal/services/statistic"
	"flyerportal/services/wallet"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		events.Module,
		featureflags.Module,
		task.Client,
		task.Server,

		wallet.Module,
		statistic.Module,
		lottery.Module,
		flyer.Module,

		statistic.Worker,
		flyer.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ConsoleLogger{W: log.Writer()}
})
