package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/internal/clock"
	"github.com/stafflane/stafflane/internal/config"
	"github.com/stafflane/stafflane/internal/logger"
	"github.com/stafflane/stafflane/internal/migration"
	obsmetrics "github.com/stafflane/stafflane/internal/observability/metrics"
	"github.com/stafflane/stafflane/internal/server"
	"github.com/stafflane/stafflane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		obsmetrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
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
