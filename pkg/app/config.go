package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

func (a *App) addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&a.cfgFile, configFlagName, "c", a.cfgFile,
		"Read configuration from specified `FILE`, support JSON, TOML, YAML, HCL, or Java properties formats.")
}

// loadConfig merges the configuration file and the environment into the
// viper instance. Flags set on the command line still win.
func (a *App) loadConfig() error {
	v := a.viper

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+a.name))
		}
		v.AddConfigPath(filepath.Join("/etc", a.name))
		v.SetConfigName(a.name)
	}

	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read configuration file(%s): %w", a.cfgFile, err)
		}
	}
	return nil
}

// envPrefix turns stepguard-monitor into STEPGUARD_MONITOR.
func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
