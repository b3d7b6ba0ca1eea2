package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lguibr/luactor/actor"
	"github.com/lguibr/luactor/bollywood"
	"github.com/lguibr/luactor/script"
	"github.com/lguibr/luactor/server"
	"github.com/lguibr/luactor/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	var (
		phases phaseFlags
		addr   string
		reload bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a script actor over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := phases.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("watch") {
				cfg.WatchScripts = reload
			}

			a, err := phases.builder(cfg).Build()
			if err != nil {
				return err
			}

			engine := bollywood.NewEngine()
			defer engine.Shutdown(cfg.ShutdownTimeout)
			pid := actor.Spawn(engine, a)
			if pid == nil {
				return errors.New("engine refused to spawn the script actor")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			srv := server.New(engine, pid, cfg)
			httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Handler()}
			g.Go(func() error {
				fmt.Printf("Serving %s on %s\n", pid, cfg.ListenAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				srv.CloseAll()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			if cfg.WatchScripts {
				w, err := watch.New(engine, cfg)
				if err != nil {
					return err
				}
				defer w.Close()
				files := map[string]string{
					script.PhaseStarted: phases.started,
					script.PhaseHandle:  phases.handle,
					script.PhaseStopped: phases.stopped,
				}
				for phase, path := range files {
					if path == "" {
						continue
					}
					if err := w.Watch(path, pid, phase); err != nil {
						return err
					}
				}
				g.Go(func() error {
					if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}

			return g.Wait()
		},
	}
	phases.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")
	cmd.Flags().BoolVar(&reload, "watch", false, "reload phase files when they change")
	return cmd
}
