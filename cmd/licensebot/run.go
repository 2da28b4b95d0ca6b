package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Opizontas-Studio/dc-license-bot/pkg/config"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/catalog"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/dedup"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/discord"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/editor"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	metrics "github.com/Opizontas-Studio/dc-license-bot/runtime/metrics/prometheus"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/notify"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/publish"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/store"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/telemetry"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/trigger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/workflow"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve auto-publish sessions",
	Long: `Connect to the Discord gateway and start an auto-publish session for
every new forum post. SIGHUP reloads the template file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateForRun(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBot(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// bot holds the components built from the configuration.
type bot struct {
	bus      *events.EventBus
	store    *store.SQLStore
	catalog  *catalog.FileCatalog
	seen     dedup.Set
	redis    redis.UniversalClient
	adapter  *discord.Adapter
	gate     *trigger.Gate
	exporter *metrics.Exporter
}

func runBot(ctx context.Context, cfg *config.Config) error {
	telemetry.SetServiceVersion(GetVersion())
	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	b, err := build(ctx, cfg, session)
	if err != nil {
		return err
	}
	defer b.close()

	tp, err := telemetry.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Tracing.Insecure, b.bus)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.adapter.Run(gctx, session)
	})
	if b.exporter != nil {
		g.Go(func() error {
			logger.Info("metrics exporter listening", "addr", cfg.Metrics.Addr)
			if err := b.exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics exporter: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return b.exporter.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		b.watchReload(gctx)
		return nil
	})

	logger.Info("licensebot started", "version", GetVersion())
	err = g.Wait()
	b.gate.Wait()
	logger.Info("licensebot stopped")
	return err
}

// build wires every component on top of the Discord REST api.
func build(ctx context.Context, cfg *config.Config, api discord.API) (*bot, error) {
	b := &bot{bus: events.NewEventBus()}
	b.bus.SubscribeAll(metrics.NewMetricsListener().Listener())

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	b.store = st

	b.catalog, err = catalog.NewFileCatalog(cfg.Templates.Path)
	if err != nil {
		b.close()
		return nil, err
	}

	switch cfg.Dedup.Backend {
	case config.DedupRedis:
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.seen = dedup.NewRedisSet(b.redis, dedup.WithTTL(cfg.Dedup.Window), dedup.WithPrefix(cfg.Redis.Prefix))
	default:
		b.seen = dedup.NewMemorySet(dedup.WithWindow(cfg.Dedup.Window))
	}

	b.adapter = discord.NewAdapter(api)

	notifier := notify.NewWebhookNotifier(cfg.Notify.Endpoint, cfg.Notify.Enabled,
		notify.WithToken(cfg.Notify.Token),
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithRateLimit(cfg.Notify.RatePerSecond),
	)
	publisher := publish.NewCoordinator(b.store, b.adapter,
		publish.WithNotifier(notifier),
		publish.WithEventBus(b.bus),
	)

	engine, err := workflow.NewEngine(b.adapter, b.store, b.catalog, publisher,
		workflow.WithEventBus(b.bus),
		workflow.WithMaxThreadAge(cfg.Flow.MaxThreadAge),
		workflow.WithTimeouts(workflow.Timeouts{
			Guidance:     cfg.Flow.Guidance,
			Selection:    cfg.Flow.Selection,
			Publish:      cfg.Flow.Publish,
			SetupPublish: cfg.Flow.SetupPublish,
		}),
		workflow.WithEditor(editor.New(b.adapter,
			editor.WithIdleTimeout(cfg.Flow.EditorIdle),
			editor.WithFormTimeout(cfg.Flow.Form),
		)),
	)
	if err != nil {
		b.close()
		return nil, err
	}

	b.gate = trigger.New(b.seen, engine,
		trigger.WithForums(cfg.Discord.AllowedForums...),
		trigger.WithEventBus(b.bus),
	)
	b.adapter.SetDispatcher(b.gate)

	if cfg.Metrics.Addr != "" {
		b.exporter = metrics.NewExporter(cfg.Metrics.Addr, metrics.WithHealthCheck(b.health))
	}
	return b, nil
}

// health fails while the gateway is down or a backing service is unreachable.
func (b *bot) health(ctx context.Context) error {
	if err := b.adapter.Health(ctx); err != nil {
		return err
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *bot) watchReload(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := b.catalog.Reload(); err != nil {
				logger.Error("template reload failed, keeping previous templates", "error", err)
			}
		}
	}
}

func (b *bot) close() {
	b.bus.Wait()
	b.bus.Close()
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			logger.Warn("database close failed", "error", err)
		}
	}
}
