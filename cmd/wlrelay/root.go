package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wlrelay/wlrelay/relay"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "wlrelay",
	Short:         "Transparent forwarding proxy for the Wayland display protocol",
	SilenceUsage:  true,
	RunE:          run,
}

// errInterrupted is the sentinel returned by waitInterrupted when a
// SIGINT/SIGTERM cleanly ends the process, following the same
// "signal is not a failure" distinction _examples/sakateka-yanet2's
// coordinator draws for its own Interrupted type.
var errInterrupted = errors.New("interrupted")

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the wlrelay TOML configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := relay.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("wlrelay: building logger: %w", err)
	}
	defer logger.Sync()

	metrics := relay.NewMetrics()

	local, err := dialOrListenUnix(cfg.LocalSocket, cfg.DialLocal)
	if err != nil {
		return fmt.Errorf("wlrelay: local socket: %w", err)
	}
	defer local.Close()
	logger.Info("local connection established", zap.String("socket", cfg.LocalSocket), zap.Bool("dial", cfg.DialLocal))

	var peer net.Conn
	if cfg.PeerDial != "" {
		peer, err = net.Dial("unix", cfg.PeerDial)
	} else {
		peer, err = acceptOnceUnix(cfg.PeerListen)
	}
	if err != nil {
		return fmt.Errorf("wlrelay: peer socket: %w", err)
	}
	defer peer.Close()
	logger.Info("peer connection established", zap.Bool("on_display_side", cfg.OnDisplaySide))

	session, err := relay.NewSession(local, peer, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("wlrelay: constructing session: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error {
		err := waitInterrupted(ctx)
		logger.Info("shutting down", zap.Error(err))
		return err
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errInterrupted) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if level != "" {
		l, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = l
	}
	return config.Build()
}

// waitInterrupted blocks until SIGINT, SIGTERM, or ctx cancellation,
// following _examples/sakateka-yanet2 coordinator's own signal-waiting
// helper.
func waitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)
	select {
	case <-ch:
		return errInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func dialOrListenUnix(path string, dial bool) (*net.UnixConn, error) {
	if dial {
		addr, err := net.ResolveUnixAddr("unix", path)
		if err != nil {
			return nil, err
		}
		return net.DialUnix("unix", nil, addr)
	}
	return acceptOnceUnix(path)
}

func acceptOnceUnix(path string) (*net.UnixConn, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.AcceptUnix()
}
