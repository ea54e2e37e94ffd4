package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/ReportFox/app/controllers"
	"github.com/ManuelReschke/ReportFox/app/repository"
	apiv1 "github.com/ManuelReschke/ReportFox/internal/api/v1"
	"github.com/ManuelReschke/ReportFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReportFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReportFox/internal/pkg/database"
	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
	"github.com/ManuelReschke/ReportFox/internal/pkg/identity"
	"github.com/ManuelReschke/ReportFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
	"github.com/ManuelReschke/ReportFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReportFox/internal/pkg/proofstore"
	"github.com/ManuelReschke/ReportFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ReportFox/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	manager.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/reportfox to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + apiv1.FilePath); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	if _, err := apiv1.Load(context.Background()); err != nil {
		log.Fatalf("Invalid API document: %v", err)
	}

	verifier, err := identity.NewVerifierFromEnv()
	if err != nil {
		log.Fatalf("Identity verification is not configured: %v", err)
	}

	jobsCfg := jobqueue.ManagerConfigFromEnv()
	queue := jobqueue.NewQueue(jobsCfg.Workers)
	queue.RegisterHandler(jobqueue.JobTypeSendEmail, jobqueue.EmailHandler(mail.NewSMTPSenderFromEnv()))

	svc := billing.NewServiceFromDB(database.GetDB(),
		billing.WithConfig(billing.ConfigFromEnv()),
		billing.WithNotifier(jobqueue.NewEmailNotifier(queue)),
	)

	manager, err := jobqueue.NewManager(queue, svc, cache.GetClient(), jobsCfg)
	if err != nil {
		log.Fatalf("Invalid scheduler configuration: %v", err)
	}

	controllers.Configure(controllers.Dependencies{
		Billing: svc,
		Reports: repository.GetGlobalFactory().GetReportRepository(),
		Proofs:  setupProofStore(),
		PayPal:  billing.NewPayPalVerifierFromEnv(),
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 12 << 20, // payment proofs are capped at 10 MiB
	})

	// recovery, logging and request metrics
	app.Use(recover.New(), logger.New(), metrics.Middleware())

	// prometheus metrics and the fiber monitor behind basic auth
	ops := basicauth.New(basicauth.Config{
		Authorizer: metricsAuthorizer(env.GetEnv("METRICS_USER", "metrics"), env.GetEnv("METRICS_PASSWORD_HASH", "")),
	})
	app.Get("/metrics", ops, adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/monitor", ops, monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + apiv1.FilePath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(verifier, repository.GetGlobalFactory().GetUserRepository(), ratelimit.NewStorage()))

	return app, manager
}

// setupProofStore returns nil when proof uploads are disabled or S3 is unreachable.
func setupProofStore() proofstore.Store {
	cfg, err := proofstore.LoadConfig()
	if err != nil {
		log.Printf("Payment proof uploads disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := proofstore.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("Payment proof uploads disabled: %v", err)
		return nil
	}
	return client
}

// metricsAuthorizer checks basic-auth credentials against a bcrypt hash. An
// empty hash locks the endpoints.
func metricsAuthorizer(user, hash string) func(string, string) bool {
	return func(u, p string) bool {
		if hash == "" || u != user {
			return false
		}
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(p))
		if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			log.Printf("Invalid METRICS_PASSWORD_HASH: %v", err)
		}
		return err == nil
	}
}
