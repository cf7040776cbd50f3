package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/alljoynjs/ajcore/internal/config"
	"github.com/alljoynjs/ajcore/internal/logging"
)

func main() {
	var (
		debug      bool
		daemonize  bool
		logFile    string
		nvramFile  string
		deviceName string
		configFile string
	)

	root := &cobra.Command{
		Use:   "ajcored [script]",
		Short: "AllJoyn.js embeddable bus runtime host",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(logLevel(debug), logFile); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if nvramFile != "" {
				cfg.NVRAMPath = nvramFile
			}
			if deviceName != "" {
				cfg.DeviceName = deviceName
			}
			cfg.DebugEnabled = debug

			var scriptPath string
			if len(args) == 1 {
				scriptPath = args[0]
			}

			logging.Info("ajcored starting", "script", scriptPath, "daemon", daemonize, "nvram", cfg.NVRAMPath)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return runHost(ctx, cfg, scriptPath)
		},
	}

	root.Flags().BoolVar(&debug, "debug", false, "enable the debugger service")
	root.Flags().BoolVar(&daemonize, "daemon", false, "mark the run as daemon mode in the startup log (the process is not detached)")
	root.Flags().StringVar(&logFile, "log-file", "", "write logs to this file in addition to stdout")
	root.Flags().StringVar(&nvramFile, "nvram-file", "", "override the configured NVRAM database path")
	root.Flags().StringVar(&deviceName, "name", "", "override the configured device name")
	root.Flags().StringVar(&configFile, "config", "", "path to a YAML configuration file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func logLevel(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}
