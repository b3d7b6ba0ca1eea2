// Package cmd implements the luactor command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/lguibr/luactor/actor"
	"github.com/lguibr/luactor/utils"
	"github.com/spf13/cobra"
)

// phaseFlags are the script files shared by serve and repl.
type phaseFlags struct {
	started string
	handle  string
	stopped string
	config  string
}

func (f *phaseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.started, "started", "", "Lua file run once when the actor starts")
	cmd.Flags().StringVar(&f.handle, "handle", "", "Lua file run for every message")
	cmd.Flags().StringVar(&f.stopped, "stopped", "", "Lua file run once when the actor stops")
	cmd.Flags().StringVar(&f.config, "config", "", "JSON config file overriding the defaults")
}

func (f *phaseFlags) loadConfig() (utils.Config, error) {
	if f.config == "" {
		return utils.DefaultConfig(), nil
	}
	return utils.LoadConfigFromFile(f.config)
}

func (f *phaseFlags) builder(cfg utils.Config) *actor.Builder {
	b := actor.NewBuilder().WithConfig(cfg)
	if f.started != "" {
		b = b.OnStarted(f.started)
	}
	if f.handle != "" {
		b = b.OnHandle(f.handle)
	}
	if f.stopped != "" {
		b = b.OnStopped(f.stopped)
	}
	return b
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "luactor",
		Short:         "Run Lua scripts as actors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newReplCommand(), newVersionCommand())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
