package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/vectorstore/internal/api/consumer"
	"github.com/Zereker/vectorstore/internal/api/http"
	"github.com/Zereker/vectorstore/internal/api/mcp"
	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/embedding"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/mq"
	"github.com/Zereker/vectorstore/pkg/redis"
	"github.com/Zereker/vectorstore/pkg/vector"
	"github.com/Zereker/vectorstore/pkg/vector/cache"
	"github.com/Zereker/vectorstore/pkg/vector/memory"
	"github.com/Zereker/vectorstore/pkg/vector/monitor"
	"github.com/Zereker/vectorstore/pkg/vector/opensearch"
	"github.com/Zereker/vectorstore/pkg/vector/postgres"
	"github.com/Zereker/vectorstore/pkg/vector/qdrant"
)

// Server represents the vector store server
type Server struct {
	config   Config
	logger   *slog.Logger
	registry *prometheus.Registry
	monitor  *monitor.Monitor
	engine   *memory.Store // set only for the memory backend
	tier     cache.Cache
	service  *service.Service
	consumer *consumer.Consumer
}

// NewServer creates a new server with the given configuration
func NewServer(conf Config) (*Server, error) {
	server := &Server{
		config: conf,
	}

	ctx := context.Background()

	if err := server.initDepend(ctx); err != nil {
		return nil, errors.WithMessage(err, "init server dependency failed")
	}

	if err := server.initService(ctx); err != nil {
		return nil, errors.WithMessage(err, "init service failed")
	}

	if err := server.initConsumer(); err != nil {
		return nil, errors.WithMessage(err, "init consumer failed")
	}

	return server, nil
}

// initDepend initializes all dependencies
func (s *Server) initDepend(ctx context.Context) error {
	// Initialize log first
	if err := log.Init(s.config.Log); err != nil {
		return errors.WithMessage(err, "failed to init log")
	}

	// Create logger for this module
	s.logger = log.Logger("server")
	s.logger.Info("initializing dependencies")

	if s.config.Models.Enabled() {
		s.logger.Info("initializing genkit embedders")
		if err := embedding.Init(ctx, s.config.Models); err != nil {
			return errors.WithMessage(err, "failed to init embedders")
		}
	}

	if s.config.Kafka.Enabled {
		s.logger.Info("initializing message queue")
		if err := mq.Init(s.config.Kafka); err != nil {
			return errors.WithMessage(err, "failed to init message queue")
		}
	}

	if s.config.Redis.Enabled {
		s.logger.Info("initializing redis")
		if err := redis.Init(ctx, s.config.Redis); err != nil {
			return errors.WithMessage(err, "failed to init redis")
		}
	}

	return nil
}

// openBackend connects the configured storage backend.
func (s *Server) openBackend(ctx context.Context) (vector.Store, error) {
	b := s.config.Backend
	s.logger.Info("opening backend", "type", b.Type)

	switch b.Type {
	case "opensearch":
		return opensearch.New(b.OpenSearch)
	case "qdrant":
		return qdrant.New(ctx, b.Qdrant)
	case "postgres":
		return postgres.New(ctx, b.Postgres)
	default:
		s.engine = memory.New(b.Memory)
		return s.engine, nil
	}
}

// initService builds backend → monitor → cache and the service on top.
func (s *Server) initService(ctx context.Context) error {
	backend, err := s.openBackend(ctx)
	if err != nil {
		return errors.WithMessagef(err, "failed to open %s backend", s.config.Backend.Type)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.monitor = monitor.New(s.registry)

	store := monitor.Wrap(backend, s.monitor)
	opts := service.Options{Monitor: s.monitor, Topic: s.config.Kafka.Topic}

	if s.config.Cache.Enabled {
		switch s.config.Cache.Type {
		case "redis":
			s.tier = cache.NewRedis(redis.Client(), s.config.Cache.KeyPrefix, s.config.Cache.TTL.Duration)
		default:
			s.tier = cache.NewLRU(s.config.Cache.MaxEntries, s.config.Cache.TTL.Duration)
		}
		cached := cache.Wrap(store, s.tier, s.monitor)
		opts.Cache = cached
		store = cached
		s.logger.Info("search cache enabled", "type", s.config.Cache.Type, "ttl", s.config.Cache.TTL.Duration)
	}

	if s.engine != nil {
		s.engine.OnMemoryPressure(s.relieveMemory)
	}

	if s.config.Embedding.Name != "" {
		e, err := embedding.NewEmbedder(embedding.Genkit(), s.config.Embedding)
		if err != nil {
			return errors.WithMessage(err, "failed to create embedder")
		}
		opts.Embedder = e
	}

	if producer := mq.Producer(); producer != nil {
		opts.Queue = producer
	}

	s.service = service.New(store, opts)
	return nil
}

// relieveMemory drops cached responses once the engine passes its threshold.
func (s *Server) relieveMemory(usageBytes int64) {
	s.logger.Warn("memory pressure", "usage_bytes", usageBytes)
	if s.tier == nil {
		return
	}
	if err := s.tier.Purge(context.Background()); err != nil {
		s.logger.Error("failed to purge cache", "error", err)
	}
}

// initConsumer initializes the async write consumer
func (s *Server) initConsumer() error {
	s.logger.Info("initializing consumer")

	c, err := consumer.NewConsumer(s.service, consumer.Config{
		Kafka: s.config.Kafka,
	})
	if err != nil {
		return errors.WithMessage(err, "failed to create consumer")
	}

	s.consumer = c
	return nil
}

// Start starts the server based on configuration mode
func (s *Server) Start() error {
	s.logger.Info("starting", "mode", s.config.Server.Mode, "port", s.config.Server.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runConsumer(ctx)
	})

	if s.engine != nil {
		g.Go(func() error {
			return s.runCleanup(ctx)
		})
	}

	switch s.config.Server.Mode {
	case "http":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
	case "mcp":
		g.Go(func() error {
			// stdin closing ends the process
			defer cancel()
			return s.runMCPServer(ctx)
		})
	case "both":
		g.Go(func() error {
			return s.runHTTPServer(ctx)
		})
		g.Go(func() error {
			return s.runMCPServer(ctx)
		})
	default:
		cancel()
		return errors.Errorf("unknown mode: %s", s.config.Server.Mode)
	}

	return g.Wait()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
		}
	}

	if err := mq.Close(); err != nil {
		s.logger.Error("failed to close message queue", "error", err)
	}

	if s.service != nil {
		if err := s.service.Close(); err != nil {
			s.logger.Error("failed to close store", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		s.logger.Error("failed to close redis", "error", err)
	}

	return nil
}

func (s *Server) runHTTPServer(ctx context.Context) error {
	serverCfg := http.DefaultServerConfig()
	serverCfg.Host = s.config.Server.Host
	serverCfg.Port = s.config.Server.Port
	serverCfg.ReadTimeout = s.config.Server.ReadTimeout.Duration
	serverCfg.WriteTimeout = s.config.Server.WriteTimeout.Duration
	serverCfg.MetricsPath = ""
	if s.config.Metrics.Enabled {
		serverCfg.MetricsPath = s.config.Metrics.Path
		serverCfg.Gatherer = s.registry
	}

	srv := http.NewServer(s.service, serverCfg)

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Duration)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(); err != nil && ctx.Err() == nil {
		return errors.WithMessage(err, "http server error")
	}
	return nil
}

func (s *Server) runMCPServer(ctx context.Context) error {
	server := mcp.NewServer(s.service, mcp.ServerConfig{
		Name:    s.config.MCP.Name,
		Version: s.config.MCP.Version,
	})

	if err := server.RunStdio(ctx); err != nil {
		return errors.WithMessage(err, "mcp server error")
	}
	return nil
}

func (s *Server) runConsumer(ctx context.Context) error {
	if err := s.consumer.Start(ctx); err != nil && ctx.Err() == nil {
		return errors.WithMessage(err, "consumer start error")
	}

	// Wait for context cancellation
	<-ctx.Done()

	return nil
}

// runCleanup periodically lets the memory engine react to its threshold.
func (s *Server) runCleanup(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Backend.CleanupInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.engine.Cleanup(ctx)
		}
	}
}
