package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"moviegen/internal/domain"
	"moviegen/internal/infra"
	"moviegen/internal/middleware"
	"moviegen/internal/msgcat"
	"moviegen/internal/planner"
	"moviegen/internal/storage"
)

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Repo    domain.MovieRepository
	Store   *storage.CacheStore
	Windows *planner.WindowResolver
	Planner *planner.FramePlanner
	Logger  infra.Logger

	// StorageBaseURL prefixes artifact keys when building download URLs.
	StorageBaseURL string
	// MinRegionArcsec rejects regions narrower than this on either axis.
	MinRegionArcsec float64
	// Staleness is how old a completed movie must be before a
	// non-forced regenerate is accepted.
	Staleness time.Duration
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]apiError{"error": {Code: errCode, Message: message}})
}

// errorKind responds with the localized message for an error category.
func (a *App) errorKind(w http.ResponseWriter, r *http.Request, code int, kind string) {
	locale := middleware.LocaleFromContext(r.Context())
	a.error(w, code, kind, msgcat.Message(locale, kind))
}
