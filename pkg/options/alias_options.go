package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AliasOptions)(nil)

// Alias storage backends.
const (
	AliasBackendFile = "file"
	AliasBackendS3   = "s3"
)

// AliasOptions configures where device display names are persisted.
type AliasOptions struct {
	Backend string `json:"backend" mapstructure:"backend"`

	// File is the JSON document used by the file backend.
	File string `json:"file" mapstructure:"file"`

	// Watch reloads the file when it is edited outside the process.
	Watch bool `json:"watch" mapstructure:"watch"`

	// ObjectKey is the object name used by the s3 backend.
	ObjectKey string `json:"object-key" mapstructure:"object-key"`
}

func NewAliasOptions() *AliasOptions {
	return &AliasOptions{
		Backend:   AliasBackendFile,
		File:      "device_names.json",
		Watch:     true,
		ObjectKey: "device_names.json",
	}
}

func (o *AliasOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	switch o.Backend {
	case AliasBackendFile:
		if o.File == "" {
			errs = append(errs, fmt.Errorf("--alias.file is required by the %q backend", AliasBackendFile))
		}
	case AliasBackendS3:
		if o.ObjectKey == "" {
			errs = append(errs, fmt.Errorf("--alias.object-key is required by the %q backend", AliasBackendS3))
		}
	default:
		errs = append(errs, fmt.Errorf("--alias.backend %q must be %q or %q", o.Backend, AliasBackendFile, AliasBackendS3))
	}

	return errs
}

func (o *AliasOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "alias.backend", o.Backend, "Where display names are stored: file or s3.")
	fs.StringVar(&o.File, "alias.file", o.File, "JSON file mapping device IDs to display names.")
	fs.BoolVar(&o.Watch, "alias.watch", o.Watch, "Reload the alias file when it changes on disk.")
	fs.StringVar(&o.ObjectKey, "alias.object-key", o.ObjectKey, "Object key of the alias document in the S3 bucket.")
}
