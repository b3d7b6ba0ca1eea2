package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lguibr/luactor/actor"
	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/message"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const historyFile = ".luactor_history"

func newReplCommand() *cobra.Command {
	var phases phaseFlags
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Send lines to a script actor and print its replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if phases.handle == "" {
				return errors.New("repl needs a --handle script")
			}
			cfg, err := phases.loadConfig()
			if err != nil {
				return err
			}
			a, err := phases.builder(cfg).Build()
			if err != nil {
				return err
			}

			engine := bollywood.NewEngine()
			defer engine.Shutdown(cfg.ShutdownTimeout)
			pid := actor.Spawn(engine, a)

			ln := liner.NewLiner()
			defer ln.Close()
			ln.SetCtrlCAborts(true)

			home, _ := os.UserHomeDir()
			histPath := filepath.Join(home, historyFile)
			if f, err := os.Open(histPath); err == nil {
				_, _ = ln.ReadHistory(f)
				_ = f.Close()
			}
			defer func() {
				if f, err := os.Create(histPath); err == nil {
					_, _ = ln.WriteHistory(f)
					_ = f.Close()
				}
			}()

			out := cmd.OutOrStdout()
			for {
				line, err := ln.Prompt("> ")
				if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
					fmt.Fprintln(out)
					return nil
				}
				if err != nil {
					return err
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == ":quit" {
					return nil
				}
				ln.AppendHistory(line)

				if !engine.Alive(pid) {
					return fmt.Errorf("script actor %s has stopped", pid)
				}
				reply, err := actor.Ask(engine, pid, message.String(line), cfg.AskTimeout)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					continue
				}
				fmt.Fprintln(out, reply)
			}
		},
	}
	phases.register(cmd)
	return cmd
}
