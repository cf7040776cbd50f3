package main

import (
	"context"

	"github.com/alljoynjs/ajcore/internal/config"
	"github.com/alljoynjs/ajcore/internal/fakebus"
	"github.com/alljoynjs/ajcore/internal/fakescript"
	"github.com/alljoynjs/ajcore/internal/logging"
	"github.com/alljoynjs/ajcore/internal/runtime"
	"github.com/alljoynjs/ajcore/internal/scriptwatch"
)

// runHost assembles and runs a Runtime. The real AllJoyn Thin-Client
// transport and embedded script engine are excluded collaborators (spec
// §6) supplied by the embedding platform; this reference build links the
// in-memory fakes so the daemon is runnable standalone for bring-up and
// integration testing.
func runHost(ctx context.Context, cfg *config.Config, scriptPath string) error {
	bus := fakebus.New(cfg.DeviceName)
	engine := fakescript.New()

	if scriptPath != "" {
		logging.Info("ajcored: script loading deferred to the embedding platform's engine", "path", scriptPath)
		watcher, err := scriptwatch.New(scriptPath)
		if err != nil {
			logging.Warn("ajcored: could not watch script file for hot-install", "err", err)
		} else {
			defer watcher.Close()
			go func() {
				for changed := range watcher.Changes() {
					logging.Info("ajcored: script file changed on disk, reinstall required", "path", changed)
				}
			}()
		}
	}

	r, err := runtime.New(cfg, bus, engine, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run(ctx)
}
