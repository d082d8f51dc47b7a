package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*WatchdogOptions)(nil)

// Rename policies accepted by --watchdog.rename-policy.
const (
	RenamePolicyPlaceholder = "placeholder"
	RenamePolicyReject      = "reject"
)

// WatchdogOptions controls liveness detection.
type WatchdogOptions struct {
	// Timeout is how long a device may stay silent before it is considered offline.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// Period is the interval between two sweeps of the registry.
	Period time.Duration `json:"period" mapstructure:"period"`

	// HonorOfflinePayload demotes a device immediately when it publishes "offline".
	HonorOfflinePayload bool `json:"honor-offline-payload" mapstructure:"honor-offline-payload"`

	// RenamePolicy decides what renaming a never-seen device does.
	RenamePolicy string `json:"rename-policy" mapstructure:"rename-policy"`

	// QueueSize bounds the number of transitions waiting for delivery.
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`
}

// NewWatchdogOptions creates a WatchdogOptions object with default parameters.
func NewWatchdogOptions() *WatchdogOptions {
	return &WatchdogOptions{
		Timeout:      15 * time.Second,
		Period:       time.Second,
		RenamePolicy: RenamePolicyPlaceholder,
		QueueSize:    256,
	}
}

func (o *WatchdogOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("--watchdog.timeout must be positive, got %s", o.Timeout))
	}
	if o.Period <= 0 {
		errs = append(errs, fmt.Errorf("--watchdog.period must be positive, got %s", o.Period))
	}
	switch o.RenamePolicy {
	case RenamePolicyPlaceholder, RenamePolicyReject:
	default:
		errs = append(errs, fmt.Errorf("--watchdog.rename-policy %q must be %q or %q", o.RenamePolicy, RenamePolicyPlaceholder, RenamePolicyReject))
	}
	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("--watchdog.queue-size must be positive, got %d", o.QueueSize))
	}

	return errs
}

func (o *WatchdogOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Timeout, "watchdog.timeout", o.Timeout, "Silence after which a device is marked offline.")
	fs.DurationVar(&o.Period, "watchdog.period", o.Period, "Interval between two liveness sweeps.")
	fs.BoolVar(&o.HonorOfflinePayload, "watchdog.honor-offline-payload", o.HonorOfflinePayload, "Mark a device offline as soon as it publishes \"offline\".")
	fs.StringVar(&o.RenamePolicy, "watchdog.rename-policy", o.RenamePolicy, "Renaming an unknown device: \"placeholder\" creates an offline record, \"reject\" fails.")
	fs.IntVar(&o.QueueSize, "watchdog.queue-size", o.QueueSize, "Capacity of the transition delivery queue.")
}
