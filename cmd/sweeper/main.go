// Sweeper is the long-running daemon: it expires overdue sessions on a
// fixed interval and serves a gRPC health endpoint. Set DATABASE_URL,
// ISSUER_BASE_URL, and ISSUER_API_KEY; everything else has defaults.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"temp-access-vendor/internal/audit"
	auditrepo "temp-access-vendor/internal/audit/repository"
	"temp-access-vendor/internal/config"
	"temp-access-vendor/internal/db"
	"temp-access-vendor/internal/issuer"
	"temp-access-vendor/internal/notify"
	policyrepo "temp-access-vendor/internal/policy/repository"
	"temp-access-vendor/internal/policy/render"
	"temp-access-vendor/internal/security"
	sessionrepo "temp-access-vendor/internal/session/repository"
	"temp-access-vendor/internal/session/service"
	"temp-access-vendor/internal/sweep"
	"temp-access-vendor/internal/telemetry"
	tavotel "temp-access-vendor/internal/telemetry/otel"
	"temp-access-vendor/internal/telemetry/producer"
	"temp-access-vendor/internal/tier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	tiers, err := tier.LoadFile(cfg.TiersFile)
	if err != nil {
		log.Fatalf("tiers: %v", err)
	}

	valCfg := security.DefaultConfig()
	if ranges := cfg.AllowedIPRangesList(); len(ranges) > 0 {
		cidrs, err := security.ParseCIDRs(ranges)
		if err != nil {
			log.Fatalf("ALLOWED_IP_RANGES: %v", err)
		}
		valCfg.AllowedCIDRs = cidrs
	}
	if deps := cfg.AllowedDepartmentsList(); len(deps) > 0 {
		valCfg.AllowedDepartments = deps
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	providers, err := tavotel.NewProviders(ctx, cfg.OTLPEndpoint, "tav-sweeper", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	var emitters []telemetry.EventEmitter
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}
	emitters = append(emitters, tavotel.NewEventEmitter(providers.LoggerProvider))
	recorder := audit.NewRecorder(auditrepo.NewPostgresRepository(conn), telemetry.Multi(emitters...))

	var notifier notify.Notifier
	if cfg.BreakGlassWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.BreakGlassWebhookURL)
	}

	lifecycle := service.NewLifecycle(
		sessionrepo.NewPostgresStore(conn),
		policyrepo.NewPostgresRepository(conn),
		render.NewRenderer(cfg.MaxPolicyBytes),
		security.NewValidator(valCfg, tiers),
		tiers,
		issuer.NewHTTPIssuer(cfg.IssuerAPIKey, cfg.IssuerBaseURL, cfg.IssueTimeout()),
		notifier,
		recorder,
		service.Options{
			ResourcePrefix: cfg.ResourcePrefix,
			IssueTimeout:   cfg.IssueTimeout(),
			SourceCIDRs:    cfg.AllowedIPRangesList(),
			MFAMaxAge:      cfg.MFAMaxAge(),
		},
	)
	sweeper := sweep.NewSweeper(sessionrepo.NewPostgresStore(conn), lifecycle, recorder, cfg.SweepBatchSize)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.Printf("health server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("sweeper: shutting down...")
		cancel()
	}()

	interval := cfg.SweepInterval()
	log.Printf("sweeper: interval %s, batch size %d", interval, cfg.SweepBatchSize)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runSweep(runCtx, sweeper)
	for {
		select {
		case <-runCtx.Done():
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			grpcServer.GracefulStop()
			// Let in-flight async audit emits finish before tearing down
			// the providers.
			time.Sleep(telemetry.ShutdownDrainDuration)
			if kafkaProducer != nil {
				_ = kafkaProducer.Close()
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = providers.Shutdown(shutdownCtx)
			shutdownCancel()
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			runSweep(runCtx, sweeper)
		}
	}
}

func runSweep(ctx context.Context, s *sweep.Sweeper) {
	rep, err := s.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("sweep: %v", err)
		}
		return
	}
	if rep.Scanned > 0 {
		log.Printf("sweep: %s", rep)
	}
}
