package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/galley/internal/httpapi"
	"github.com/roach88/galley/internal/metrics"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ordering and KDS HTTP API",
		Long: `Run the HTTP API for menu clients and kitchen stations.

The catalog named by catalog.path is imported at startup (stock levels of
existing rows are kept). Station views are published to RabbitMQ when
amqp.url is set. The server stops gracefully on SIGINT or SIGTERM.

Example:
  galley serve --config galley.yaml
  GALLEY_STORE_DRIVER=memory GALLEY_CATALOG_PATH=menu.yaml galley serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("galley")
	e, err := loadEngine(ctx, opts.RootOptions, f, engineOptions{metrics: m, publish: true})
	if err != nil {
		return err
	}
	defer e.Close()

	addr := e.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	srv := httpapi.New(e.queue, e.dispatcher, e.ledger,
		httpapi.WithLogger(e.logger),
		httpapi.WithMetrics(m),
		httpapi.WithRetry(e.retry),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		e.logger.Info("shutting down", "timeout", shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return f.Fail(ExitFailure, ErrCodeBackend, "server error", err)
	}
	e.logger.Info("server stopped")
	return nil
}
