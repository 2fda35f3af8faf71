package purchase

import "go.uber.org/fx"

var Module = fx.Module("purchase.service",
	fx.Provide(NewService),
	fx.Invoke(RegisterRoutes),
)
