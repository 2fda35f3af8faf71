package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"rewards-engine/pkg/config"
	"rewards-engine/pkg/db"
	"rewards-engine/pkg/gen"
	"rewards-engine/pkg/logger"
	"rewards-engine/pkg/otelcol"
	"rewards-engine/pkg/redis"
	"rewards-engine/pkg/sequence"
	"rewards-engine/pkg/task"
	"rewards-engine/services/membership"
	tasksvc "rewards-engine/services/task"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		task.Server,
		membership.Module,
		tasksvc.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
