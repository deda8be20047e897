package credit

import (
	"github.com/stafflane/stafflane/internal/credit/repository"
	"github.com/stafflane/stafflane/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
