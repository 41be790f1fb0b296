package synapse

import (
	invitedomain "github.com/smallbiznis/matrixgw/internal/invite/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.synapse",
	fx.Provide(
		NewDirectory,
		func(d *Directory) invitedomain.ProfileDirectory { return d },
		func(d *Directory) invitedomain.RoomDirectory { return d },
	),
)
