package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(NewLocker),
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, sched *Scheduler, locker *Locker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return locker.Close()
				},
			})

			return nil
		},
	})
}
