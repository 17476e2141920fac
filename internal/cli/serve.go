package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cadre-oss/patternmem/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the patternmem HTTP API",
	Long: `Start a local HTTP API over the pattern store. Expired patterns are
pruned and the snapshot is flushed on the configured interval and on
shutdown.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	interval, err := eng.Config.Snapshot.ParsedFlushInterval()
	if err != nil {
		return fmt.Errorf("invalid flush interval: %w", err)
	}

	addr := eng.Config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(eng.Store, eng.Bus, eng.Logger,
		server.WithVersion(Version),
		server.WithMetrics(eng.Metrics),
		server.WithSessionOptions(eng.SessionOptions()...),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx, addr)
	})
	g.Go(func() error {
		return eng.Store.Run(gctx, interval)
	})
	return g.Wait()
}
