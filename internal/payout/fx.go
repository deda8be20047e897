package payout

import (
	"github.com/stafflane/stafflane/internal/payout/repository"
	"github.com/stafflane/stafflane/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
