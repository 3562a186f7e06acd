package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do/v2"

	"github.com/dkeye/Hearing/internal/config"
	"github.com/dkeye/Hearing/internal/core"
)

const databaseInitTimeout = 15 * time.Second

// RegisterDI provides the core.HeartbeatStore selected by heartbeat.driver.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (core.HeartbeatStore, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		switch cfg.Heartbeat.Driver {
		case "postgres":
			s, err := OpenPostgres(ctx, cfg.Heartbeat.DSN)
			if err != nil {
				return nil, err
			}
			return s, nil
		case "sqlite":
			s, err := OpenSQLite(ctx, cfg.Heartbeat.DSN)
			if err != nil {
				return nil, err
			}
			return s, nil
		case "none", "":
			return LogStore{}, nil
		}
		return nil, fmt.Errorf("unknown heartbeat driver %q", cfg.Heartbeat.Driver)
	})
}
