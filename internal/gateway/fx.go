package gateway

import (
	"github.com/stafflane/stafflane/internal/config"
	"github.com/stafflane/stafflane/internal/gateway/domain"
	"github.com/stafflane/stafflane/internal/gateway/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config) (domain.Adapter, error) {
		return stripe.New(cfg)
	}),
)
