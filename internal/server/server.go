package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/matrixgw/internal/config"
	"github.com/smallbiznis/matrixgw/internal/invite"
	"github.com/smallbiznis/matrixgw/internal/notification"
	"github.com/smallbiznis/matrixgw/internal/observability"
	obsmiddleware "github.com/smallbiznis/matrixgw/internal/observability/logger"
	obstracing "github.com/smallbiznis/matrixgw/internal/observability/tracing"
	"github.com/smallbiznis/matrixgw/internal/providers/synapse"
	"github.com/smallbiznis/matrixgw/internal/transaction"
	transactiondomain "github.com/smallbiznis/matrixgw/internal/transaction/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	synapse.Module,
	notification.Module,
	invite.Module,
	transaction.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server exposes the appservice listener over HTTP.
type Server struct {
	engine *gin.Engine
	cfg    config.Config
	gate   transactiondomain.Service
}

type ServerParams struct {
	fx.In

	Gin  *gin.Engine
	Cfg  config.Config
	Gate transactiondomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		gate:   p.Gate,
	}
}

// RegisterAppServiceRoutes registers the transaction push endpoints. The
// unprefixed route serves homeservers that predate the /_matrix/app/v1
// prefix.
func (s *Server) RegisterAppServiceRoutes() {
	s.engine.PUT("/_matrix/app/v1/transactions/:txnId", s.PushTransaction)
	s.engine.PUT("/transactions/:txnId", s.PushTransaction)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
