package log

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options configures the logger.
type Options struct {
	// Name is prepended to every entry's logger field.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format is either json or console.
	Format string `json:"format,omitempty" mapstructure:"format"`

	EnableColor   bool `json:"enable-color,omitempty" mapstructure:"enable-color"`
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip is the number of frames skipped when annotating the caller.
	// The package level helpers add two frames.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`
}

// NewOptions returns Options with defaults suitable for a console process.
func NewOptions() *Options {
	return &Options{
		Name:        "stepguard",
		Level:       "info",
		Format:      "console",
		EnableColor: true,
		CallerSkip:  2,
		OutputPaths: []string{"stdout"},
	}
}

// Validate checks level and format.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unsupported level %q", o.Level))
	}
	switch o.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported format %q", o.Format))
	}
	return errs
}

// AddFlags binds the options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "Logger name added to every entry.")
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level ('debug', 'info', 'warn', 'error').")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output format ('json' or 'console').")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Colorize levels in console format.")
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, "Omit the caller field.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "Number of caller frames to skip.")
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, "Log sinks, e.g. 'stdout' or '/var/log/stepguard.log'.")
}
