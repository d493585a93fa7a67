package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/galley/internal/catalog"
	"github.com/roach88/galley/internal/config"
	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/kds"
	"github.com/roach88/galley/internal/ledger"
	"github.com/roach88/galley/internal/metrics"
	"github.com/roach88/galley/internal/pgstock"
	"github.com/roach88/galley/internal/queue"
	"github.com/roach88/galley/internal/recipe"
	"github.com/roach88/galley/internal/redisstock"
	"github.com/roach88/galley/internal/retry"
	"github.com/roach88/galley/internal/store"
)

// newLogger builds the process logger from the log config. --verbose forces
// debug level.
func newLogger(cfg config.LogConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// errCatalog marks engine startup failures caused by the catalog file.
var errCatalog = errors.New("load catalog")

// engine is the wired queue, dispatcher and ledger for one process.
type engine struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	store      *store.Store  // nil with the memory driver
	data       *catalog.Data // nil when no catalog was imported
	ledger     *ledger.Ledger
	queue      *queue.Queue
	dispatcher *kds.Dispatcher
	retry      retry.Policy
	closers    []func() error
}

type engineOptions struct {
	metrics *metrics.Metrics

	// publish enables the AMQP sink when amqp.url is configured. Read-only
	// commands leave it off.
	publish bool

	// catalogPath overrides catalog.path.
	catalogPath string
}

// openEngine wires the stores, stock backend, ledger, queue and dispatcher
// described by cfg. The catalog at catalog.path is imported first when set;
// existing stock levels are kept.
func openEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, eo engineOptions) (_ *engine, err error) {
	e := &engine{cfg: cfg, logger: logger, metrics: eo.metrics}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	var data *catalog.Data
	if cfg.Catalog.Path != "" {
		if data, err = catalog.Load(cfg.Catalog.Path); err != nil {
			return nil, fmt.Errorf("%w: %w", errCatalog, err)
		}
		logger.Info("catalog loaded",
			"path", cfg.Catalog.Path,
			"menu_items", len(data.MenuItems),
			"inventory_items", len(data.Inventory),
		)
		e.data = data
		for _, o := range data.Orphans() {
			logger.Warn("catalog references a missing inventory row",
				"tenant", o.TenantID,
				"source", o.Source,
				"inventory_item_id", o.InventoryItemID,
			)
		}
	}

	var (
		cat    catalog.Reader
		orders queue.Store
		stock  ledger.StockStore
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		if data == nil {
			return nil, errors.New("catalog.path: required for the memory driver")
		}
		mem, err := catalog.NewMemory(*data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errCatalog, err)
		}
		cat, orders, stock = mem, queue.NewMemoryStore(), ledger.NewMemoryStore(data.Inventory)
	default:
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		e.store = st
		e.closers = append(e.closers, st.Close)
		if data != nil {
			if err := st.ImportCatalog(ctx, *data); err != nil {
				return nil, fmt.Errorf("%w: %w", errCatalog, err)
			}
		}
		logger.Debug("store ready", "path", cfg.Store.Path)
		cat, orders, stock = st, st, st
	}

	switch cfg.Stock.Backend {
	case config.StockBackendPostgres:
		pg, err := pgstock.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		if data != nil {
			if err := pg.SeedInventory(ctx, data.Inventory); err != nil {
				return nil, err
			}
		}
		stock = pg
	case config.StockBackendRedis:
		rs, err := redisstock.Dial(ctx, cfg.Redis.Addr, redisstock.WithKeyTTL(cfg.Redis.TTL))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, rs.Close)
		if data != nil {
			if err := rs.SeedInventory(ctx, data.Inventory); err != nil {
				return nil, err
			}
		}
		stock = rs
	}

	policy, err := ledger.ParsePolicy(cfg.StockPolicy)
	if err != nil {
		return nil, err
	}
	e.ledger = ledger.New(stock, policy,
		ledger.WithLogger(logger),
		ledger.WithMetrics(eo.metrics),
	)

	resolver := recipe.NewResolver(cat, recipe.NewNameMatcher(cfg.Decaf.Markers...))
	e.queue = queue.New(cat, resolver, e.ledger,
		queue.WithStore(orders),
		queue.WithAppendPolicy(queue.AppendPolicy(cfg.AppendPolicy)),
		queue.WithEpsilon(cfg.PositionEpsilon),
		queue.WithStoreTimeout(cfg.Store.Timeout),
		queue.WithLogger(logger),
		queue.WithMetrics(eo.metrics),
	)

	e.retry = retry.Policy{
		Attempts: cfg.Retry.Attempts,
		Initial:  cfg.Retry.Initial,
		Max:      cfg.Retry.Max,
		Logger:   logger,
		Metrics:  eo.metrics,
	}
	dopts := []kds.Option{
		kds.WithLabeler(kds.NewLabeler(cfg.KDS.MilkMarkers, cfg.KDS.HiddenMarkers)),
		kds.WithRetry(e.retry),
		kds.WithLogger(logger),
		kds.WithMetrics(eo.metrics),
	}
	if eo.publish && cfg.AMQP.URL != "" {
		sink, err := kds.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, sink.Close)
		dopts = append(dopts, kds.WithSink(sink))
		logger.Info("publishing station views", "exchange", sink.Exchange())
	}
	e.dispatcher = kds.New(e.queue, dopts...)

	logger.Debug("engine wired",
		"store_driver", cfg.Store.Driver,
		"stock_backend", cfg.Stock.Backend,
		"stock_policy", string(policy),
		"append_policy", cfg.AppendPolicy,
	)
	return e, nil
}

// inventoryIDs lists the tenant's inventory rows, sorted by id.
func (e *engine) inventoryIDs(ctx context.Context, tenant domain.TenantID) ([]string, error) {
	var ids []string
	if e.store != nil {
		items, err := e.store.Inventory(ctx, tenant)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		return ids, nil
	}
	if e.data != nil {
		for _, it := range e.data.Inventory {
			if it.TenantID == tenant {
				ids = append(ids, it.ID)
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Close releases backends in reverse order of opening.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Error("error closing backend", "error", err)
		}
	}
	e.closers = nil
}

// loadEngine loads the config named by the root flags, builds the logger
// and opens the engine. Failures are reported through f.
func loadEngine(ctx context.Context, opts *RootOptions, f *OutputFormatter, eo engineOptions) (*engine, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	if eo.catalogPath != "" {
		cfg.Catalog.Path = eo.catalogPath
	}
	logger := newLogger(cfg.Log, opts.Verbose, f.GetErrWriter())

	e, err := openEngine(ctx, cfg, logger, eo)
	if err != nil {
		code := ErrCodeBackend
		if errors.Is(err, errCatalog) {
			code = ErrCodeCatalog
		}
		return nil, f.Fail(ExitCommandError, errorCode(err, code), "failed to start engine", err)
	}
	return e, nil
}
