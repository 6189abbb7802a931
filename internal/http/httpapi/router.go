package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"moviegen/internal/http/handlers"
	"moviegen/internal/infra"
	"moviegen/internal/middleware"
)

// Options tune the middleware stack around the movie endpoints.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup

	// Movie creation is rate limited separately from read traffic.
	CreateLimit  int
	CreateWindow time.Duration
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/movies", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.CreateLimit, opts.CreateWindow)).
			Post("/", app.CreateMovie)
		r.Get("/{id}/status", app.MovieStatus)
		r.Post("/{id}/regenerate", app.RegenerateMovie)
	})

	return r
}
