package webhook

import (
	"github.com/stafflane/stafflane/internal/webhook/repository"
	"github.com/stafflane/stafflane/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
