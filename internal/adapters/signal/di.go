package signal

import (
	"github.com/jonboulle/clockwork"
	"github.com/samber/do/v2"

	"github.com/dkeye/Hearing/internal/app/hub"
	"github.com/dkeye/Hearing/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*EventRateLimiter, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewEventRateLimiter(cfg.Server.ClientEventLimit, cfg.Server.ClientEventWindow, clockwork.NewRealClock()), nil
	})
	do.Provide(injector, func(i do.Injector) (*SignalWSController, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewSignalWSController(
			do.MustInvoke[*hub.Hub](i),
			do.MustInvoke[*EventRateLimiter](i),
			Options{
				ReadLimit:  cfg.Server.ReadLimit,
				PingPeriod: cfg.Server.PingPeriod,
				SendBuffer: cfg.Server.SendBuffer,
			},
		), nil
	})
}
