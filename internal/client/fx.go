package client

import (
	"github.com/stafflane/stafflane/internal/client/repository"
	"github.com/stafflane/stafflane/internal/client/service"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
