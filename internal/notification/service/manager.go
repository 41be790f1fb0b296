package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/matrixgw/internal/notification/domain"
	"go.uber.org/zap"
)

// Handler delivers invite notifications over one medium.
type Handler interface {
	Medium() string
	Send(ctx context.Context, payload domain.Payload) error
}

// Manager routes notification payloads to the handler registered for their
// medium.
type Manager struct {
	log      *zap.Logger
	handlers map[string]Handler
}

func NewManager(log *zap.Logger, handlers ...Handler) *Manager {
	byMedium := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byMedium[h.Medium()] = h
	}
	return &Manager{
		log:      log.Named("notification.manager"),
		handlers: byMedium,
	}
}

func (m *Manager) SendForInvite(ctx context.Context, payload domain.Payload) error {
	handler, ok := m.handlers[payload.Medium]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMedium, payload.Medium)
	}

	m.log.Debug("dispatching invite notification",
		zap.String("medium", payload.Medium),
		zap.String("address", payload.Address))

	return handler.Send(ctx, payload)
}
