package ledger

import (
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("ledger.http",
	fx.Invoke(RegisterRoutes),
)
