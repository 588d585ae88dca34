package httpapi

import (
	"net/http"
	"time"

	"genqueue/internal/http/handlers"
	mw "genqueue/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Options carries the router's cross-cutting settings.
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	RateLimitPerMin int
	DefaultLocale   string
	Lookup          mw.CountryLookup
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		mw.Logger(opts.Logger),
		mw.CORS(opts.CORSOrigins),
		mw.I18N(opts.DefaultLocale, opts.Lookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	// Called by the worker tier and trusted automation, authenticated by shared token.
	r.Post("/internal/jobs/process", app.ProcessJob)

	r.Group(func(r chi.Router) {
		r.Use(mw.AuthJWT(opts.JWTSecret))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.With(mw.RateLimit(opts.RateLimitPerMin, time.Minute, mw.ByUserOrIP)).Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Get("/active", app.ActiveJobs)
			r.Get("/events", app.JobEvents)
		})
		r.Route("/v1/gallery", func(r chi.Router) {
			r.Get("/", app.ListGallery)
			r.Delete("/{type}/{id}", app.DeleteGallery)
		})
		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", app.ListNotifications)
			r.Post("/{id}/read", app.MarkNotificationRead)
		})
	})

	return r
}
