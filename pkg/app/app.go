// Package app builds cobra commands whose options are merged from flags,
// environment variables and a configuration file.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"
)

// RunFunc is the entrypoint of the application once options are valid.
type RunFunc func() error

// Option customizes an App.
type Option func(*App)

// App is the root command of a binary.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	args        cobra.PositionalArgs
	commands    []*cobra.Command

	cfgFile string
	viper   *viper.Viper
	cmd     *cobra.Command
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag and the environment lookup.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects every positional argument.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithSubCommands attaches extra commands under the root.
func WithSubCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	// Sub commands keep cobra's help instead of the sectioned one of the root.
	plain := &cobra.Command{}
	for _, sub := range a.commands {
		sub.SetHelpFunc(plain.HelpFunc())
		sub.SetUsageFunc(plain.UsageFunc())
	}
	cmd.AddCommand(a.commands...)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		a.addConfigFlag(fss.FlagSet("global"))
	}
	fss.FlagSet("global").BoolP("help", "h", false, fmt.Sprintf("help for %s", a.name))

	for _, f := range fss.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if a.options != nil {
		if !a.noConfig {
			if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := a.loadConfig(); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(a.options); err != nil {
				return fmt.Errorf("failed to decode configuration: %w", err)
			}
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	return a.runFunc()
}
