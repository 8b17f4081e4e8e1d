package cmd

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/adapter"
	"github.com/BD4L/breachwatch/internal/archive"
	"github.com/BD4L/breachwatch/internal/clock"
	"github.com/BD4L/breachwatch/internal/config"
	"github.com/BD4L/breachwatch/internal/docfetch"
	"github.com/BD4L/breachwatch/internal/extract"
	"github.com/BD4L/breachwatch/internal/logging"
	"github.com/BD4L/breachwatch/internal/metrics"
	"github.com/BD4L/breachwatch/internal/normalize"
	"github.com/BD4L/breachwatch/internal/pipeline"
	storememory "github.com/BD4L/breachwatch/internal/store/memory"
	storepostgres "github.com/BD4L/breachwatch/internal/store/postgres"

	"github.com/BD4L/breachwatch/internal/notify"
)

// runtime holds the shared service dependencies built from configuration.
type runtime struct {
	cfg        config.Config
	logger     *zap.Logger
	store      pipeline.Store
	archive    pipeline.Archive
	dispatcher pipeline.Dispatcher
	clock      pipeline.Clock
	runs       *pipeline.RunLog
	closers    []func()
}

// newRuntime wires the store, archive, and dispatcher per configuration.
func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		clock:  clock.New(),
		runs:   pipeline.NewRunLog(0),
	}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	if err := rt.initStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.initArchive(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.initDispatcher(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) initStore(ctx context.Context) error {
	if rt.cfg.DB.DSN == "" {
		rt.logger.Warn("db.dsn is empty, records will not survive the process")
		rt.store = storememory.New()
		return nil
	}
	store, err := storepostgres.New(ctx, storepostgres.Config{
		DSN:             rt.cfg.DB.DSN,
		MaxConns:        rt.cfg.DB.MaxConns,
		MinConns:        rt.cfg.DB.MinConns,
		MaxConnLifetime: rt.cfg.DB.ConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)
	return nil
}

func (rt *runtime) initArchive(ctx context.Context) error {
	switch rt.cfg.Archive.Backend {
	case "", "none":
		return nil
	case "local":
		local, err := archive.NewLocal(rt.cfg.Archive.LocalDir)
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		rt.archive = local
		return nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		gcs, err := archive.NewGCS(client, archive.GCSConfig{
			Bucket: rt.cfg.Archive.GCSBucket,
			Prefix: rt.cfg.Archive.Prefix,
		})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs archive: %w", err)
		}
		rt.archive = gcs
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		return nil
	default:
		return fmt.Errorf("unknown archive backend %q", rt.cfg.Archive.Backend)
	}
}

func (rt *runtime) initDispatcher(ctx context.Context) error {
	if rt.cfg.PubSub.ProjectID == "" || rt.cfg.PubSub.TopicName == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, rt.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	dispatcher, err := notify.NewPubSub(client.Topic(rt.cfg.PubSub.TopicName))
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("init dispatcher: %w", err)
	}
	rt.dispatcher = dispatcher
	rt.closers = append(rt.closers, dispatcher.Stop)
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	return nil
}

// Close releases runtime resources in reverse acquisition order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// runIngest executes one ingestion pass over the configured sources. A
// failing source is logged and skipped so the remaining sources still run.
func (rt *runtime) runIngest(ctx context.Context, sourceFilter string) error {
	matched := 0
	for _, src := range rt.cfg.Sources {
		if sourceFilter != "" && src.ID != sourceFilter {
			continue
		}
		matched++
		if err := rt.runSource(ctx, src); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rt.logger.Error("source run failed",
				zap.String("source_id", src.ID),
				zap.Error(err),
			)
		}
	}
	if matched == 0 {
		if sourceFilter != "" {
			return fmt.Errorf("no configured source with id %q", sourceFilter)
		}
		return fmt.Errorf("no sources configured")
	}
	return nil
}

func (rt *runtime) runSource(ctx context.Context, src adapter.Config) error {
	if src.UserAgent == "" {
		src.UserAgent = rt.cfg.HTTP.UserAgent
	}
	if src.Timeout <= 0 {
		src.Timeout = rt.cfg.HTTPTimeout()
	}
	sourceAdapter, err := adapter.New(src, rt.logger)
	if err != nil {
		return fmt.Errorf("init adapter: %w", err)
	}
	fetcher := docfetch.New(docfetch.Config{
		SourceID:    src.ID,
		UserAgent:   src.UserAgent,
		Timeout:     src.Timeout,
		MaxRetries:  rt.cfg.HTTP.MaxRetries,
		MinDelay:    rt.cfg.MinDelay(),
		MaxDelay:    rt.cfg.MaxDelay(),
		BackoffStep: time.Duration(rt.cfg.HTTP.BackoffStepMs) * time.Millisecond,
	}, rt.logger)

	orchestrator := pipeline.NewOrchestrator(
		sourceAdapter,
		normalize.New(rt.logger),
		fetcher,
		extract.NewTextExtractor(rt.logger),
		extract.NewFieldExtractor(),
		pipeline.NewUpserter(rt.store, rt.clock),
		rt.dispatcher,
		rt.archive,
		rt.clock,
		pipeline.OrchestratorConfig{
			Tier:          rt.cfg.Tier(),
			Workers:       rt.cfg.Ingest.Workers,
			RecencyCutoff: rt.cfg.RecencyCutoff(rt.clock.Now()),
		},
		rt.logger,
	)

	report, err := orchestrator.Run(ctx)
	rt.runs.Add(report)
	return err
}
