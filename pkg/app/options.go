package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields derived from the ones set by the user.
	Complete() error

	// Validate checks the options once flags and configuration are merged.
	Validate() error
}
