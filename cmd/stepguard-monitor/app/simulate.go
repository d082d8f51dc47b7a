package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/stepguard/internal/simulator"
	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/mqtt"
	"github.com/autopeer-io/stepguard/pkg/mqtt/topic"
	"github.com/autopeer-io/stepguard/pkg/options"
)

type simulateOptions struct {
	Mqtt     *options.MqttOptions
	Log      *log.Options
	Devices  []string
	Count    int
	Interval time.Duration
	Offline  bool
}

func (o *simulateOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Mqtt.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if len(o.Devices) == 0 && o.Count <= 0 {
		errs = append(errs, errors.New("either --device or a positive --count is required"))
	}
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("--interval must be positive, got %s", o.Interval))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *simulateOptions) deviceIDs() []string {
	if len(o.Devices) > 0 {
		return o.Devices
	}
	return simulator.GenerateIDs(o.Count)
}

func newSimulateCommand() *cobra.Command {
	o := &simulateOptions{
		Mqtt:     options.NewMqttOptions(),
		Log:      log.NewOptions(),
		Count:    3,
		Interval: 5 * time.Second,
	}
	o.Mqtt.ClientID = "stepguard-simulator"

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish heartbeats for fake devices",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := o.Validate(); err != nil {
				return err
			}
			log.Init(o.Log)
			defer log.Sync() // nolint: errcheck

			client, err := mqtt.NewClient(o.Mqtt.ToClientConfig())
			if err != nil {
				return err
			}
			sim, err := simulator.New(client, topic.NewBuilder(o.Mqtt.TopicRoot), o.deviceIDs(), o.Interval,
				simulator.WithQoS(o.Mqtt.QoS), simulator.WithOfflineOnExit(o.Offline))
			if err != nil {
				return err
			}
			return sim.Run(genericapiserver.SetupSignalContext())
		},
	}

	fs := cmd.Flags()
	o.Mqtt.AddFlags(fs)
	o.Log.AddFlags(fs)
	fs.StringSliceVar(&o.Devices, "device", o.Devices, "Device IDs to simulate. Overrides --count.")
	fs.IntVar(&o.Count, "count", o.Count, "Number of generated device IDs.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Heartbeat period of every device.")
	fs.BoolVar(&o.Offline, "offline-on-exit", o.Offline, "Publish \"offline\" for every device on exit.")
	return cmd
}
