package auth

import (
	"github.com/samber/do/v2"

	"github.com/dkeye/Hearing/internal/config"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Verifier, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewVerifier(cfg.Server.Secret)
	})
}
