package db

import (
	"context"
	"time"

	"github.com/smallbiznis/matrixgw/internal/config"
	"github.com/smallbiznis/matrixgw/internal/observability/logger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("db",
	fx.Provide(New, NewStore),
)

// Store is the connection holding the gateway's own tables. It is distinct
// from the homeserver connection so deployments can keep the latter
// read-only; with no STORE_DATABASE_* configuration both share one
// connection.
type Store struct {
	*gorm.DB
}

// New opens the homeserver database connection used for directory lookups.
func New(lc fx.Lifecycle, cfg config.Config) (*gorm.DB, error) {
	return open(lc, cfg.DB)
}

// NewStore opens the gateway's own store, falling back to the homeserver
// connection when no separate store database is configured.
func NewStore(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB) (Store, error) {
	if cfg.Store.Type == "" {
		return Store{conn}, nil
	}
	own, err := open(lc, cfg.Store)
	if err != nil {
		return Store{}, err
	}
	return Store{own}, nil
}

// open applies pool settings and registers a lifecycle hook to close the
// connection on shutdown.
func open(lc fx.Lifecycle, cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(logger.DefaultGormLoggerConfig()),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = ctx
				return sqlDB.Close()
			},
		})
	}

	return conn, nil
}
