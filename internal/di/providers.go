package di

import (
	"context"
	"fmt"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/handler/api"
	internalrepo "github.com/Vestika/portfolio-sub001/internal/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/finnhub"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/service/quotegate"
	"github.com/Vestika/portfolio-sub001/internal/usecase"
	pkgcache "github.com/Vestika/portfolio-sub001/pkg/cache"
	pkgch "github.com/Vestika/portfolio-sub001/pkg/clickhouse"
	"github.com/Vestika/portfolio-sub001/pkg/config"
	xhttp "github.com/Vestika/portfolio-sub001/pkg/http"
	pkgkafka "github.com/Vestika/portfolio-sub001/pkg/kafka"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
	"github.com/Vestika/portfolio-sub001/pkg/metrics"
	"github.com/Vestika/portfolio-sub001/pkg/server"
)

const (
	barTable    = "daily_bars"
	symbolTable = "tracked_symbols"
)

// ProvideLogger creates the process logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// price schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database)}
	stmts = append(stmts, internalrepo.BarArchiveSchema(cfg.ClickHouse.Database, barTable)...)
	stmts = append(stmts, internalrepo.SymbolRegistrySchema(cfg.ClickHouse.Database, symbolTable)...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideLiveCache creates the in-memory live price cache.
func ProvideLiveCache() *livecache.Cache {
	return livecache.New()
}

// ProvideGate creates the process-wide quote source gate, instrumented with
// the wait histogram.
func ProvideGate(m repository.Metrics) *quotegate.Gate {
	return quotegate.New(quotegate.WithWaitObserver(m.RecordGateWait))
}

// ProvideQuoteSource creates the REST quote client.
func ProvideQuoteSource(cfg *config.Config) (repository.QuoteSource, error) {
	client, err := finnhub.New(
		cfg.Quotes.APIKey,
		cfg.Quotes.Timeout,
		finnhub.WithBaseURL(cfg.Quotes.BaseURL),
		finnhub.WithRateLimit(cfg.Quotes.BurstSize, cfg.Quotes.MaxRPS),
		finnhub.WithRetryBudget(cfg.Quotes.RetryBudget),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ProvideSymbolRegistry creates the ClickHouse symbol registry.
func ProvideSymbolRegistry(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.SymbolRegistry {
	reg := internalrepo.NewCHSymbolRegistry(chClient, cfg.ClickHouse.Database+"."+symbolTable)
	reg.SetLogger(l)
	return reg
}

// ProvideRedisCache creates the Redis read cache, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideBarArchive creates the ClickHouse bar archive, wrapped in the Redis
// read cache when one is configured.
func ProvideBarArchive(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger, rc pkgcache.Service) repository.BarArchive {
	archive := internalrepo.NewCHBarArchive(chClient, cfg.ClickHouse.Database+"."+barTable)
	archive.SetLogger(l)
	if rc == nil {
		return archive
	}
	return internalrepo.NewCachedBarArchive(archive, rc, cfg.Redis.TTL)
}

// ProvideKafkaPublisher creates the archived-bar event publisher, or a no-op
// when Kafka is disabled.
func ProvideKafkaPublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideLiveUpdater creates the periodic live price updater.
func ProvideLiveUpdater(
	cache *livecache.Cache,
	registry repository.SymbolRegistry,
	source repository.QuoteSource,
	gate *quotegate.Gate,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.LiveUpdater {
	return usecase.NewLiveUpdater(
		registry, source, gate, cache, m, l,
		cfg.Scheduler.UpdateInterval,
		cfg.Quotes.Timeout,
		cfg.Scheduler.StopTimeout,
	)
}

// ProvideSynchronizer creates the two-stage historical synchronizer.
func ProvideSynchronizer(
	cache *livecache.Cache,
	registry repository.SymbolRegistry,
	archive repository.BarArchive,
	source repository.QuoteSource,
	gate *quotegate.Gate,
	publisher repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Synchronizer {
	return usecase.NewSynchronizer(
		cache, registry, archive, source, gate, publisher, m, l,
		cfg.Scheduler.StalenessThreshold,
		cfg.Scheduler.BackfillDays,
		cfg.Quotes.Timeout,
	)
}

// ProvideQuoteService creates the on-demand lookup service.
func ProvideQuoteService(
	cache *livecache.Cache,
	registry repository.SymbolRegistry,
	archive repository.BarArchive,
	source repository.QuoteSource,
	gate *quotegate.Gate,
	sync *usecase.Synchronizer,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.QuoteService {
	return usecase.NewQuoteService(
		cache, registry, archive, source, gate, sync, m, l,
		cfg.Quotes.Timeout,
		cfg.Scheduler.BackfillDays,
	)
}

// ProvideScheduler creates the job scheduler.
func ProvideScheduler(
	updater *usecase.LiveUpdater,
	sync *usecase.Synchronizer,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Scheduler {
	return usecase.NewScheduler(
		updater, sync, l,
		cfg.Scheduler.SyncInterval,
		cfg.Scheduler.StartupDelay,
		cfg.Scheduler.StopTimeout,
	)
}

// ProvideStreamFeeder creates the WebSocket stream feeder when enabled;
// returns nil otherwise.
func ProvideStreamFeeder(
	cfg *config.Config,
	registry repository.SymbolRegistry,
	cache *livecache.Cache,
	l *applogger.Logger,
) *usecase.StreamFeeder {
	if !cfg.Stream.Enabled {
		return nil
	}
	stream := finnhub.NewStream(
		cfg.Quotes.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
	return usecase.NewStreamFeeder(stream, registry, cache, l, cfg.Stream.ReconnectDelay)
}

// ProvidePricesHandler creates the HTTP surface.
func ProvidePricesHandler(
	l *applogger.Logger,
	quotes *usecase.QuoteService,
	updater *usecase.LiveUpdater,
	sync *usecase.Synchronizer,
	cache *livecache.Cache,
	registry repository.SymbolRegistry,
	archive repository.BarArchive,
) xhttp.Handler {
	return api.NewPricesHandler(l, quotes, updater, sync, cache, registry, archive)
}

// ProvideApp creates the application server and registers resource closers.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.Scheduler,
	feeder *usecase.StreamFeeder,
	handler xhttp.Handler,
	publisher repository.Publisher,
	chClient *pkgch.Client,
	rc pkgcache.Service,
) *server.App {
	app := server.New(cfg, l, scheduler, feeder, handler, publisher, chClient)
	if closer, ok := rc.(interface{ Close() error }); ok {
		app.AddCloser(closer.Close)
	}
	return app
}
