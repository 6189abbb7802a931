package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moviegen/internal/adapter/repo"
	"moviegen/internal/http/handlers"
	httpapi "moviegen/internal/http/httpapi"
	"moviegen/internal/infra"
	"moviegen/internal/infra/geoip"
	"moviegen/internal/middleware"
	"moviegen/internal/planner"
	"moviegen/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := storage.NewCacheStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure movie cache")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	images := repo.NewImageRepository(dbpool)
	app := &handlers.App{
		Repo:            repo.NewMovieRepository(dbpool),
		Store:           store,
		Windows:         planner.NewWindowResolver(cfg.DefaultWindow),
		Planner:         planner.NewFramePlanner(images, cfg.GlobalMaxFrames, float64(cfg.PlaybackSeconds), cfg.MaxFrameRate),
		Logger:          logger,
		StorageBaseURL:  cfg.StorageBaseURL,
		MinRegionArcsec: cfg.MinRegionArcsec,
		Staleness:       cfg.RegenStaleness,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultLocale:  "en",
		CountryLookup:  countryLookup,
		CreateLimit:    cfg.RateLimitPerMin,
		CreateWindow:   time.Minute,
	})

	// Finished movies are plain files under the cache root; serve them
	// from the same process so small deployments need no CDN.
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(store.BasePath()))))
	mux.Handle("/", router)

	server := infra.NewHTTPServer(cfg, mux)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
