package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/stepguard/cmd/stepguard-monitor/app/options"
	"github.com/autopeer-io/stepguard/pkg/app"
	"github.com/autopeer-io/stepguard/pkg/log"
)

const (
	commandName = "stepguard-monitor"
	commandDesc = `The StepGuard monitor subscribes to the heartbeats StepGuard devices publish
over MQTT, keeps an online/offline status and a last-seen time per device,
and reports every change. Devices silent for longer than --watchdog.timeout
are marked offline. Display names are kept in a JSON alias document.`
)

func NewApp() *app.App {
	opts := options.NewMonitorOptions()
	application := app.NewApp(
		commandName,
		"Launch the StepGuard presence monitor",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithSubCommands(newDevicesCommand(), newRenameCommand(), newSimulateCommand()),
	)
	return application
}

func run(opts *options.MonitorOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		log.Init(opts.Log)
		defer log.Sync() // nolint: errcheck

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		mon, err := cfg.NewMonitor(ctx)
		if err != nil {
			return fmt.Errorf("failed to create monitor: %w", err)
		}

		return mon.Run(ctx)
	}
}
