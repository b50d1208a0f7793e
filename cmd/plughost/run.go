package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(root *rootOptions) *cobra.Command {
	var exitSafeMode bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Activate enabled plugins and serve until interrupted",
		Long: `run boots the host, activates every enabled plugin and keeps running
until SIGINT or SIGTERM. With plugins.watch (or --watch) plugin directories
are hot-reloaded on change. With metrics.addr set, Prometheus metrics are
served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := boot(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := s.close(sctx); err != nil {
					s.log.Error().Err(err).Msg("shutdown")
				}
			}()

			if exitSafeMode {
				if err := s.host.Orchestrator().ExitSafeMode(ctx); err != nil {
					return err
				}
			}

			err = s.host.Start(ctx, s.projects)
			switch {
			case errors.Is(err, plugin.ErrSafeMode):
				s.log.Warn().Msg("safe mode: plugins stay inactive; restart with --exit-safe-mode once the culprit is disabled")
			case err != nil:
				return err
			}

			pc := s.cfg.Plugins()
			if watch || pc.Watch {
				roots := append(append([]string(nil), pc.Dirs...), pc.MarketplaceDirs...)
				if err := s.host.Watch(roots...); err != nil {
					return err
				}
				s.log.Info().Strs("roots", roots).Dur("delay", pc.WatchDelay).Msg("watching plugin directories")
			}

			if addr := s.cfg.Metrics().Addr; addr != "" {
				srv, err := serveMetrics(addr, s)
				if err != nil {
					return err
				}
				defer srv.Shutdown(context.Background())
			}

			st := s.host.Stats()
			s.log.Info().Int("plugins", st.Plugins).Int("contexts", st.Contexts).Bool("safe_mode", st.SafeMode).Msg("host running")
			<-ctx.Done()
			s.log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitSafeMode, "exit-safe-mode", false, "Clear the crash marker before starting")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Hot-reload plugins when their files change")
	return cmd
}

func serveMetrics(addr string, s *session) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server")
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, nil
}
