// cmd/worker-manager/main.go
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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loan-funnel-workers/internal/api"
	awsclient "loan-funnel-workers/internal/common/aws"
	"loan-funnel-workers/internal/common/camunda"
	"loan-funnel-workers/internal/common/config"
	"loan-funnel-workers/internal/common/database"
	commonhttp "loan-funnel-workers/internal/common/http"
	"loan-funnel-workers/internal/common/logger"
	"loan-funnel-workers/internal/common/observability"
	"loan-funnel-workers/internal/draft"
	"loan-funnel-workers/internal/emi"
	"loan-funnel-workers/internal/flow"
	"loan-funnel-workers/internal/models"
	"loan-funnel-workers/internal/otp"
	"loan-funnel-workers/internal/permission"
	"loan-funnel-workers/internal/verification"
	"loan-funnel-workers/internal/workers"

	// Funnel Workers (4)
	sessionstart "loan-funnel-workers/internal/workers/funnel/session-start"
	stepback "loan-funnel-workers/internal/workers/funnel/step-back"
	stepcontinue "loan-funnel-workers/internal/workers/funnel/step-continue"
	stepenter "loan-funnel-workers/internal/workers/funnel/step-enter"

	// Verification Workers (3)
	otpissue "loan-funnel-workers/internal/workers/verification/otp-issue"
	otpverify "loan-funnel-workers/internal/workers/verification/otp-verify"
	permissionreport "loan-funnel-workers/internal/workers/verification/permission-report"

	// Loan Workers (4)
	disbursalcomplete "loan-funnel-workers/internal/workers/loan/disbursal-complete"
	emicalculate "loan-funnel-workers/internal/workers/loan/emi-calculate"
	ifsclookup "loan-funnel-workers/internal/workers/loan/ifsc-lookup"
	sanctionrecord "loan-funnel-workers/internal/workers/loan/sanction-record"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// workerFactory builds the handler for one catalog entry.
type workerFactory func() (camunda.JobHandler, error)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = zapLog.Sync() }()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...", zap.String("environment", cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		zapLog.Fatal("tracing setup failed", zap.Error(err))
	}

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("metrics exporter unavailable, job metrics disabled", zap.Error(err))
	}

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("postgres migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	// The branch index and application search are optional; the workers run
	// without them.
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Warn("elasticsearch unavailable, running without search index", zap.Error(err))
		esClient = nil
	} else {
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Funnel services ---
	funnel := cfg.Funnel
	draftTTL := config.GetSeconds(funnel.Draft.TTL)
	drafts := draft.NewRedisStore(rdb.GetClient(), draft.RedisOptions{
		Prefix:   funnel.Draft.KeyPrefix,
		TTL:      draftTTL,
		Registry: draft.DefaultRegistry(),
		Logger:   log,
	})
	perms := permission.NewReportedChecker(rdb.GetClient(), draftTTL)

	flowCfg := flow.ConfigFromApp(cfg)
	loanFlow, err := flow.LoanFlow(flowCfg)
	if err != nil {
		zapLog.Fatal("invalid loan flow", zap.Error(err))
	}
	onboardingFlow, err := flow.OnboardingFlow(flowCfg)
	if err != nil {
		zapLog.Fatal("invalid onboarding flow", zap.Error(err))
	}
	controller, err := flow.NewController(flow.Options{
		Flows:       []*flow.Definition{loanFlow, onboardingFlow},
		Drafts:      drafts,
		Permissions: perms,
		Logger:      log,
	})
	if err != nil {
		zapLog.Fatal("failed to create flow controller", zap.Error(err))
	}

	codes, err := newOTPService(ctx, cfg, rdb, log)
	if err != nil {
		zapLog.Fatal("failed to create otp service", zap.Error(err))
	}
	verifier, err := verification.NewService(controller, codes, perms)
	if err != nil {
		zapLog.Fatal("failed to create verification service", zap.Error(err))
	}

	var email awsclient.SESService
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err := awsclient.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("failed to create SES client", zap.Error(err))
		}
		email = sesClient
	}

	var (
		branchIndex ifsclookup.BranchIndex
		appIndex    sanctionrecord.Indexer
	)
	if esClient != nil {
		branchIndex = esClient
		appIndex = esClient
	}
	directory := commonhttp.NewClient(config.GetDuration(cfg.Integrations.IFSC.Timeout))

	zapLog.Info("All funnel services initialized")

	// --- START: Register ALL 11 Workers ---
	factories := map[string]workerFactory{
		// --- 1. Funnel Workers (4) ---
		"funnel-session-start": func() (camunda.JobHandler, error) {
			return sessionstart.NewHandler(sessionstart.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Controller: controller})
		},
		"funnel-step-enter": func() (camunda.JobHandler, error) {
			return stepenter.NewHandler(stepenter.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Controller: controller})
		},
		"funnel-step-continue": func() (camunda.JobHandler, error) {
			return stepcontinue.NewHandler(stepcontinue.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Controller: controller})
		},
		"funnel-step-back": func() (camunda.JobHandler, error) {
			return stepback.NewHandler(stepback.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Controller: controller})
		},

		// --- 2. Verification Workers (3) ---
		"verification-otp-issue": func() (camunda.JobHandler, error) {
			return otpissue.NewHandler(otpissue.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Verification: verifier})
		},
		"verification-otp-verify": func() (camunda.JobHandler, error) {
			return otpverify.NewHandler(otpverify.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Verification: verifier})
		},
		"verification-permission-report": func() (camunda.JobHandler, error) {
			return permissionreport.NewHandler(permissionreport.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs, Verification: verifier})
		},

		// --- 3. Loan Workers (4) ---
		"loan-emi-calculate": func() (camunda.JobHandler, error) {
			return emicalculate.NewHandler(emicalculate.HandlerOptions{AppConfig: cfg, Logger: log, Observability: obs})
		},
		"loan-ifsc-lookup": func() (camunda.JobHandler, error) {
			return ifsclookup.NewHandler(ifsclookup.HandlerOptions{
				AppConfig:     cfg,
				Logger:        log,
				Observability: obs,
				Index:         branchIndex,
				Directory:     directory,
				Drafts:        drafts,
				Sessions:      controller,
			})
		},
		"loan-sanction-record": func() (camunda.JobHandler, error) {
			return sanctionrecord.NewHandler(sanctionrecord.HandlerOptions{
				AppConfig:     cfg,
				Logger:        log,
				Observability: obs,
				DB:            pg,
				Drafts:        drafts,
				Index:         appIndex,
				Email:         email,
			})
		},
		"loan-disbursal-complete": func() (camunda.JobHandler, error) {
			return disbursalcomplete.NewHandler(disbursalcomplete.HandlerOptions{
				AppConfig:     cfg,
				Logger:        log,
				Observability: obs,
				DB:            pg,
				Drafts:        drafts,
			})
		},
	}

	var running []*camunda.CamundaWorker
	for _, entry := range workers.Catalog() {
		wcfg := config.GetWorkerConfig(cfg, entry.ConfigKey)
		if !wcfg.Enabled {
			zapLog.Info("worker disabled", zap.String("worker", entry.ConfigKey))
			continue
		}
		build, ok := factories[entry.ConfigKey]
		if !ok {
			zapLog.Fatal("no factory for worker", zap.String("worker", entry.ConfigKey))
		}
		handler, err := build()
		if err != nil {
			zapLog.Fatal("failed to create handler", zap.String("worker", entry.ConfigKey), zap.Error(err))
		}
		running = append(running, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      entry.TaskType,
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, handler, log))
	}
	zapLog.Info("workers registered", zap.Int("count", len(running)))

	// --- Funnel API, Health & Metrics Server ---
	apiHandler, err := api.NewHandler(api.Options{
		Controller:   controller,
		Verification: verifier,
		Calculator:   emi.FreeCalculator,
		Publisher:    api.MessageStepPublisher{Client: zeebe},
		Checks:       readinessChecks(pg, rdb, esClient),
		Logger:       log,
	})
	if err != nil {
		zapLog.Fatal("failed to create api handler", zap.Error(err))
	}
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(apiHandler),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLog.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, stopping workers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		zapLog.Error("server stopped with error", zap.Error(err))
	}

	// --- Graceful Shutdown ---
	for _, w := range running {
		w.Stop()
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obs.Shutdown(flushCtx); err != nil {
		zapLog.Warn("metrics shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(flushCtx); err != nil {
		zapLog.Warn("tracing shutdown failed", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// newOTPService picks the code sender and the per-flow verifiers. Codes go
// out over SNS when it is enabled and to the log otherwise.
func newOTPService(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, log logger.Logger) (*otp.Service, error) {
	o := cfg.Funnel.OTP

	var sender otp.Sender = otp.NewLogSender(log)
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, err
		}
		sender = otp.NewSNSSender(snsClient, cfg.Integrations.AWS.SNS.DefaultSMSSenderID)
	}

	loanVerifier, err := otp.NewVerifier(o.LoanMode, o.FixedCode)
	if err != nil {
		return nil, fmt.Errorf("loan otp mode: %w", err)
	}
	onboardingVerifier, err := otp.NewVerifier(o.OnboardingMode, o.FixedCode)
	if err != nil {
		return nil, fmt.Errorf("onboarding otp mode: %w", err)
	}

	return otp.NewService(otp.Options{
		Store:  otp.NewRedisStore(rdb.GetClient()),
		Sender: sender,
		Verifiers: map[string]otp.Verifier{
			models.FlowLoan:       loanVerifier,
			models.FlowOnboarding: onboardingVerifier,
		},
		Length:      o.Length,
		ResendAfter: config.GetSeconds(o.ResendAfter),
		TTL:         config.GetSeconds(o.TTL),
		Logger:      log,
	})
}

func readinessChecks(pg *database.PostgresClient, rdb *database.RedisClient, es *database.ElasticsearchClient) map[string]api.CheckFunc {
	checks := map[string]api.CheckFunc{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}
	if es != nil {
		checks["elasticsearch"] = es.Ping
	}
	return checks
}
