package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	httpapi "github.com/evradar/ev-radar/internal/api/http"
	"github.com/evradar/ev-radar/internal/config"
	"github.com/evradar/ev-radar/internal/locations"
	"github.com/evradar/ev-radar/internal/locations/clients"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	stations := clients.NewChargeMapClient(httpClient, cfg.ChargeMapAPIKey, cfg.ChargeMapBaseURL)
	weather := clients.NewWeatherClient(httpClient, cfg.WeatherAPIKey, cfg.WeatherBaseURL)

	service := locations.NewService(stations, weather)

	app := fiber.New(fiber.Config{
		AppName:               "ev-radar",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	httpapi.RegisterRoutes(app, service)

	// Catch-all 404 in problem-details form.
	app.Use(httpapi.NotFoundHandler)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
