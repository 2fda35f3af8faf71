package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewards-engine/pkg/celengine"
	"rewards-engine/pkg/chain"
	"rewards-engine/pkg/config"
	"rewards-engine/pkg/db"
	"rewards-engine/pkg/featureflags"
	"rewards-engine/pkg/gen"
	"rewards-engine/pkg/health"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/otelcol"
	"rewards-engine/pkg/pricing"
	"rewards-engine/pkg/profiling"
	"rewards-engine/pkg/ratelimit"
	"rewards-engine/pkg/redis"
	"rewards-engine/pkg/sequence"
	"rewards-engine/pkg/server"
	"rewards-engine/services/campaign"
	"rewards-engine/services/entries"
	"rewards-engine/services/ledger"
	"rewards-engine/services/membership"
	"rewards-engine/services/payment"
	"rewards-engine/services/purchase"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		health.Module,
		featureflags.Module,
		celengine.Module,
		chain.Module,
		pricing.Module,
		payment.Module,
		entries.Module,
		ratelimit.Module,
		campaign.Module,
		campaign.HTTP,
		membership.Module,
		membership.HTTP,
		ledger.Module,
		ledger.HTTP,
		purchase.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
