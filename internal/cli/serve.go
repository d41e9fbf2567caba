package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ops-reports/internal/client"
	"github.com/pesio-ai/be-ops-reports/internal/handler"
	"github.com/pesio-ai/be-ops-reports/internal/platform/auth"
	"github.com/pesio-ai/be-ops-reports/internal/platform/config"
	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
	"github.com/pesio-ai/be-ops-reports/internal/service"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Reports Service")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.New(ctx, cfg.DatabaseOptions())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Approval chains, cached in Redis when configured
	var chains service.ApprovalChainStore = repository.NewApprovalChainRepository(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable; chain cache will fall through to the database")
		}
		chains = repository.NewCachedApprovalChainStore(repository.NewApprovalChainRepository(db), rdb, cfg.Redis.ChainTTL, log.Logger)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.ChainTTL).Msg("Approval chain cache enabled")
	}

	// Notifications
	var publisher *client.NotificationPublisher
	nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable; notifications disabled")
		publisher = client.NewNotificationPublisher(nil, cfg.NATS.SubjectPrefix, log.Logger)
	} else {
		defer nc.Drain()
		publisher = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connected")
	}

	// Workflow engine
	directory := repository.NewDirectoryRepository(db)
	resolver := service.NewApprovalChainResolver(chains, directory, cfg.Workflow.DefaultApprovalOrgID)
	if err := resolver.Verify(ctx); err != nil {
		return err
	}
	workflow := service.NewReportWorkflowService(repository.NewStore(db), resolver, directory, publisher, log)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// HTTP
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.NewHTTPHandler(workflow, log).Router(verifier, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryAuthInterceptor(verifier)))
	handler.RegisterReportWorkflowServer(grpcServer, handler.NewGRPCHandler(workflow, log.Logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.ReportWorkflowServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return err
}
