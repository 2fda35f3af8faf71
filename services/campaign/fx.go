package campaign

import (
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("campaign.http",
	fx.Invoke(RegisterRoutes),
)
