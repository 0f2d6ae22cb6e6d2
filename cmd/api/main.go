package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/egm96/internal/adapters/gridfile"
	"github.com/samirrijal/egm96/internal/adapters/http"
	natsadapter "github.com/samirrijal/egm96/internal/adapters/nats"
	"github.com/samirrijal/egm96/internal/adapters/valkey"
	"github.com/samirrijal/egm96/internal/core/ports"
	"github.com/samirrijal/egm96/internal/core/usecases"
	"github.com/samirrijal/egm96/internal/pkg/config"
	"github.com/samirrijal/egm96/internal/pkg/logging"
	"github.com/samirrijal/egm96/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("egm96-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Valkey
	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// NATS
	var (
		nc        *natsadapter.Publisher
		publisher ports.EventPublisher
	)
	if cfg.NATS.Enabled {
		nc, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
			nc = nil
		} else {
			publisher = nc
			defer nc.Close()
		}
	}

	// Grid source
	var source ports.GridSource
	switch cfg.Grid.Source {
	case config.GridSourceValkey:
		if cache == nil {
			log.Fatalf("grid source is valkey but valkey is unavailable")
		}
		source = valkey.NewGridStore(cache, cfg.Grid.ValkeyKey)
	default:
		source = gridfile.New(cfg.Grid.Path)
	}

	geoidSvc := usecases.NewGeoidService(source, publisher)
	if _, err := geoidSvc.Load(ctx); err != nil {
		if cfg.Grid.Required {
			log.Fatalf("grid: %v", err)
		}
		slog.Warn("starting without a grid, offsets are 0 until a reload succeeds", "source", source.Describe())
	}

	reload := func(ctx context.Context) error {
		_, err := geoidSvc.Load(ctx)
		return err
	}

	// Reload on broadcast from any replica or gridctl
	if nc != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeReloadRequests(ctx, reload); err != nil {
				slog.Warn("subscribe reload requests", "error", err)
			}
		}
	}

	deps := &http.Dependencies{
		Geoid: geoidSvc,
		NATS:  nc,
		Cache: cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB, ample for a 1000-point batch
		AppName:      "EGM96 Geoid API",
	})
	app.Use(recover.New())
	if strings.EqualFold(cfg.Log.Level, "debug") {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "grid_source", source.Describe())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	// SIGHUP reloads the grid; SIGINT/SIGTERM shut down.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				slog.Info("SIGHUP received, reloading grid")
				_ = reload(ctx) // outcome is logged by the service
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	signal.Stop(hup)
	cancel()

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
