package billing

import (
	"github.com/stafflane/stafflane/internal/billing/repository"
	"github.com/stafflane/stafflane/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
