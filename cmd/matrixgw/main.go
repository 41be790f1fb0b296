package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/matrixgw/internal/clock"
	"github.com/smallbiznis/matrixgw/internal/config"
	"github.com/smallbiznis/matrixgw/internal/observability"
	"github.com/smallbiznis/matrixgw/internal/server"
	"github.com/smallbiznis/matrixgw/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,

		fx.Invoke(func(s *server.Server) {
			s.RegisterAppServiceRoutes()
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
