package task

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"rewards-engine/pkg/taskname"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(
		registerHandlers,
		StartScheduler,
	),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.MembershipExpirySweep, svc.HandleExpirySweep)
}
