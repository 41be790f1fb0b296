package invite

import (
	"github.com/smallbiznis/matrixgw/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(
		service.NewFilter,
		service.NewNotifier,
	),
)
