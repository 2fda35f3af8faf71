package membership

import "go.uber.org/fx"

var Module = fx.Module("membership.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("membership.http",
	fx.Invoke(RegisterRoutes),
)
