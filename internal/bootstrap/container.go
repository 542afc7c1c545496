package bootstrap

import (
	"fmt"
	"time"

	"notesync-be/internal/config"
	"notesync-be/internal/controller"
	"notesync-be/internal/handler"
	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/pkg/serverutils"
	"notesync-be/internal/repository/contract"
	"notesync-be/internal/repository/implementation"
	"notesync-be/internal/repository/memory"
	"notesync-be/internal/repository/replica"
	"notesync-be/internal/service"
	"notesync-be/internal/websocket"
	"notesync-be/internal/worker"
	"notesync-be/pkg/database"
	"notesync-be/pkg/embedding"
	"notesync-be/pkg/objectstore"
	"notesync-be/pkg/relay"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

const jobCacheTTL = 10 * time.Minute

type Container struct {
	Config   *config.Config
	Logger   logger.ILogger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Controllers
	RecordController controller.IRecordController
	SyncController   controller.ISyncController
	JobController    controller.IJobController

	// Realtime
	RealtimeHandler *handler.RealtimeHandler
	WebSocketHub    *websocket.Hub
	Transport       relay.Transport

	// Background Services (Exposed for main.go to run)
	Pool             *worker.Pool
	BroadcastService service.IBroadcastService
	RetryQueue       service.IRetryQueueService
	Reaper           service.IReaperService

	closers []func() error
}

type stores struct {
	primary    contract.VectorStore
	replica    contract.VectorStore
	tombstones contract.TombstoneRepository
	retryQueue contract.RetryQueueRepository
	longJobs   contract.LongJobRepository
}

func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	c := &Container{
		Config:   cfg,
		Logger:   sysLogger,
		Registry: registry,
		Metrics:  m,
	}

	// 2. Storage
	st, err := c.openStores(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 3. Infrastructure
	embedder, err := embedding.NewEmbedder(embedding.Config{
		Provider:     cfg.Ai.EmbeddingProvider,
		OllamaURL:    cfg.Ai.OllamaBaseURL,
		OllamaModel:  cfg.Ai.OllamaModel,
		GeminiAPIKey: cfg.Ai.GeminiAPIKey,
		MaxChars:     cfg.Ai.MaxInputChars,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	transport, err := relay.New(relay.Config{
		Transport:  cfg.Relay.Transport,
		BaseURL:    cfg.Relay.BaseURL,
		Resource:   cfg.Relay.Resource,
		Timeout:    cfg.Relay.Timeout,
		NatsURL:    cfg.App.NatsURL,
		RedisURL:   cfg.App.RedisURL,
		InstanceID: cfg.App.InstanceID,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("relay transport: %w", err)
	}
	c.Transport = transport
	c.closers = append(c.closers, transport.Close)

	blobs, err := newBlobStore(cfg.Reaper)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, pubSub.Close)

	c.Pool = worker.NewPool(cfg.Worker.Size, cfg.Worker.QueueDepth, sysLogger, m)
	c.WebSocketHub = websocket.NewHub(logger.NewIsolatedLogger(cfg.App.WsLogFilePath), m)

	// 4. Services
	fetcher := service.NewBatchFetcher(sysLogger, m)
	longJobService := service.NewLongJobService(st.longJobs, memory.NewJobCache(jobCacheTTL), sysLogger)
	tombstoneService := service.NewTombstoneService(st.tombstones, sysLogger, m)
	c.RetryQueue = service.NewRetryQueueService(st.retryQueue, st.primary, st.replica, embedder,
		cfg.Vector.Dimension, cfg.Retry.DefaultRetries, sysLogger, m)
	c.BroadcastService = service.NewBroadcastService(pubSub, transport, c.Pool, sysLogger, m)
	c.Reaper = service.NewReaperService(st.tombstones, blobs, cfg.Reaper.Retention, sysLogger, m)

	dualWriteService := service.NewDualWriteService(st.primary, st.replica, tombstoneService, c.RetryQueue,
		c.BroadcastService, longJobService, fetcher, c.Pool, embedder, cfg.Vector.Dimension, sysLogger, m)
	queryService := service.NewRecordQueryService(st.primary, fetcher, embedder, cfg.Vector.Dimension, sysLogger)

	syncSource := st.primary
	if cfg.Sync.ReadSource == "replica" && st.replica != nil {
		syncSource = st.replica
	}
	syncService := service.NewSyncService(syncSource, fetcher, tombstoneService, longJobService, c.Pool, sysLogger)

	// 5. Transport layer
	auth := serverutils.JwtMiddleware(cfg.App.JWTSecret)
	c.RecordController = controller.NewRecordController(dualWriteService, queryService, auth)
	c.SyncController = controller.NewSyncController(syncService, auth)
	c.JobController = controller.NewJobController(longJobService, auth)
	c.RealtimeHandler = handler.NewRealtimeHandler(c.WebSocketHub, cfg.App.JWTSecret, sysLogger)

	return c, nil
}

// openStores falls back to in-memory stores when no DSN is configured.
func (c *Container) openStores(cfg *config.Config) (*stores, error) {
	st := &stores{}

	if cfg.Database.Connection == "" {
		c.Logger.Warn("Bootstrap", "DB_CONNECTION_STRING not set, using in-memory stores", nil)
		st.primary = memory.NewRecordStore("primary")
		st.tombstones = memory.NewTombstoneRepository()
		st.retryQueue = memory.NewRetryQueueRepository()
		st.longJobs = memory.NewLongJobRepository()
	} else {
		verbose := cfg.App.Environment != "production"
		primaryDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, verbose)
		if err != nil {
			return nil, err
		}
		c.closeDB(primaryDB)

		ledgerDB := primaryDB
		if cfg.LedgerDSN() != cfg.Database.Connection {
			if ledgerDB, err = database.NewGormDBFromDSN(cfg.LedgerDSN(), verbose); err != nil {
				return nil, fmt.Errorf("ledger database: %w", err)
			}
			c.closeDB(ledgerDB)
		}

		st.primary = implementation.NewPrimaryStore(primaryDB)
		st.tombstones = implementation.NewTombstoneRepository(ledgerDB)
		st.retryQueue = implementation.NewRetryQueueRepository(ledgerDB)
		st.longJobs = implementation.NewLongJobRepository(ledgerDB)
	}

	if cfg.Replica.Enabled {
		sqlite, err := replica.NewSQLiteStore(cfg.Replica.Path, cfg.Vector.Dimension)
		if err != nil {
			return nil, fmt.Errorf("replica: %w", err)
		}
		c.closers = append(c.closers, sqlite.Close)
		st.replica = sqlite
	}
	return st, nil
}

func (c *Container) closeDB(db *gorm.DB) {
	c.closers = append(c.closers, func() error { return database.Close(db) })
}

func newBlobStore(cfg config.ReaperConfig) (objectstore.Store, error) {
	if cfg.Endpoint == "" {
		return objectstore.NewMemoryStore(), nil
	}
	return objectstore.NewS3Store(objectstore.S3Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Region:    cfg.Region,
		UseSSL:    cfg.UseSSL,
	})
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Bootstrap", "Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	c.closers = nil
}
