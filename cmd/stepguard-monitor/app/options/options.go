package options

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/stepguard/internal/monitor"
	"github.com/autopeer-io/stepguard/pkg/app"
	"github.com/autopeer-io/stepguard/pkg/log"
	"github.com/autopeer-io/stepguard/pkg/options"
)

type MonitorOptions struct {
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	WatchdogOptions *options.WatchdogOptions `json:"watchdog" mapstructure:"watchdog"`
	AliasOptions    *options.AliasOptions    `json:"alias" mapstructure:"alias"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	Log             *log.Options             `json:"log" mapstructure:"log"`

	// Console prints the device table to stdout on every transition.
	Console bool `json:"console" mapstructure:"console"`
}

var _ app.NamedFlagSetOptions = (*MonitorOptions)(nil)

func NewMonitorOptions() *MonitorOptions {
	o := &MonitorOptions{
		MqttOptions:     options.NewMqttOptions(),
		WatchdogOptions: options.NewWatchdogOptions(),
		AliasOptions:    options.NewAliasOptions(),
		S3Options:       options.NewS3Options(),
		HttpOptions:     options.NewHttpOptions(),
		Log:             log.NewOptions(),
	}

	return o
}

func (o *MonitorOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.WatchdogOptions.AddFlags(fss.FlagSet("watchdog"))
	o.AliasOptions.AddFlags(fss.FlagSet("alias"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	o.addMonitorFlags(fss.FlagSet("monitor"))
	return fss
}

func (o *MonitorOptions) addMonitorFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Console, "console", o.Console, "Print the device table on every presence change.")
}

// Complete fills the broker password from STEPGUARD_MQTT_PASSWORD when it is
// not given otherwise, so it does not have to appear on the command line.
func (o *MonitorOptions) Complete() error {
	if o.MqttOptions.Password == "" {
		o.MqttOptions.Password = os.Getenv("STEPGUARD_MQTT_PASSWORD")
	}
	o.MqttOptions.TopicRoot = strings.Trim(o.MqttOptions.TopicRoot, "/")
	return nil
}

func (o *MonitorOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.WatchdogOptions.Validate()...)
	errs = append(errs, o.AliasOptions.Validate()...)
	if o.AliasOptions.Backend == options.AliasBackendS3 {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *MonitorOptions) Config() (*monitor.Config, error) {
	cfg := &monitor.Config{
		MqttOptions:     o.MqttOptions,
		WatchdogOptions: o.WatchdogOptions,
		AliasOptions:    o.AliasOptions,
		S3Options:       o.S3Options,
		HttpOptions:     o.HttpOptions,
	}
	if o.Console {
		cfg.Console = os.Stdout
	}
	return cfg, nil
}
