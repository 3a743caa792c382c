package main

import (
	"log"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"flyerportal/pkg/config"
	"flyerportal/pkg/db"
	"flyerportal/pkg/events"
	"flyerportal/pkg/featureflags"
	"flyerportal/pkg/gen"
	"flyerportal/pkg/hashistack/secretmanager"
	"flyerportal/pkg/hashistack/servicediscover"
	"flyerportal/pkg/health"
	"flyerportal/pkg/logger"
	"flyerportal/pkg/middleware"
	"flyerportal/pkg/otelcol"
	"flyerportal/pkg/profiling"
	"flyerportal/pkg/redis"
	"flyerportal/pkg/sequence"
	"flyerportal/pkg/server"
	"flyerportal/pkg/task"
	"flyerportal/services/coupon"
	"flyerportal/services/flyer"
	"flyerportal/services/lottery"
	"flyerportal/services/statistic"
	"flyerportal/services/wallet"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

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
		health.Module,
		middleware.Module,

		wallet.Module,
		statistic.Module,
		lottery.Module,
		flyer.Module,
		coupon.Module,

		server.ProvideHTTPServer,
		wallet.HTTP,
		lottery.HTTP,
		flyer.HTTP,
		coupon.HTTP,

		server.ProvideGRPCServer,
		servicediscover.Module,

		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func() fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(cfg *config.Config, conn *gorm.DB) error {
	if err := db.AutoMigrate(cfg, conn,
		&wallet.Wallet{},
		&wallet.Transaction{},
		&flyer.Flyer{},
		&lottery.Pool{},
		&lottery.Claim{},
		&statistic.CompanyStatistic{},
		&coupon.Coupon{},
	); err != nil {
		zap.L().Error("[DB] migration failed", zap.Error(err))
		return err
	}
	return nil
}
