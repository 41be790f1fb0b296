package notification

import (
	"github.com/smallbiznis/matrixgw/internal/notification/domain"
	"github.com/smallbiznis/matrixgw/internal/notification/service"
	"github.com/smallbiznis/matrixgw/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.service",
	email.Module,
	fx.Provide(
		service.NewEmailHandler,
		newSender,
	),
)

func newSender(log *zap.Logger, emails *service.EmailHandler) domain.Sender {
	return service.NewManager(log, emails)
}
