package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"databinding/core/config"
	"databinding/core/flush"
	"databinding/core/loader"
	"databinding/core/logger"
	"databinding/core/metrics"
	"databinding/core/middleware/auth"
	"databinding/core/middleware/rayid"
	"databinding/feature/grid"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "databinding/docs/swagger"
)

// @title Data Binding API
// @version 1.0
// @description Lazy, viewport driven data binding for virtualized grids.
// @host localhost:8080
// @BasePath /

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the data binding server",
	Long:  `Starts the HTTP server, opens the configured grid backend and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			rec *metrics.Recorder
			reg *prometheus.Registry
		)
		if cfg.Metrics.Enabled {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			if rec, err = metrics.New(cfg.Metrics.Namespace, reg); err != nil {
				logg.Fatal("Failed to register metrics", zap.Error(err))
			}
		}

		backend, err := openBackend(ctx, cfg, logg)
		if err != nil {
			logg.Fatal("Failed to open grid backend", zap.Error(err))
		}

		var exec flush.Executor
		if cfg.Binding.Async {
			pool := flush.NewPoolExecutor(cfg.Flush.Workers, cfg.Flush.QueueSize)
			defer pool.Close()
			exec = pool
			logg.Info("Asynchronous fetches enabled", zap.Int("workers", cfg.Flush.Workers))
		}

		svc := grid.NewService(backend, cfg.Grid, cfg.Binding, logg, rec, exec)
		go svc.Run(ctx, cfg.Server.SessionIdleTimeout, sweepInterval(cfg.Server.SessionIdleTimeout))

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		mgr := loader.NewManager(logg)
		mgr.Register(grid.NewFeature(cfg.Grid, svc, cfg.Server.Encoding))

		// RayID first so every later log line carries it
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Public routes
		app.Get("/swagger/*", swagger.HandlerDefault)
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":   "ok",
				"backend":  svc.Backend(),
				"sessions": svc.Sessions(),
			})
		})
		if reg != nil {
			app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		}

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		go func() {
			logg.Info("Starting server",
				zap.String("port", cfg.Server.Port),
				zap.String("backend", backend.Name()),
				zap.String("encoding", cfg.Server.Encoding))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		<-ctx.Done()
		logg.Info("Shutting down server...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	},
}

// sweepInterval checks for idle sessions a few times per timeout.
func sweepInterval(idle time.Duration) time.Duration {
	return max(idle/4, time.Second)
}

func init() {
	RootCmd.AddCommand(startCmd)
}
