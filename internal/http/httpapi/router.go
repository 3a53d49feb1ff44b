package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"charagen/internal/http/handlers"
	"charagen/internal/metrics"
	"charagen/internal/middleware"
)

type Options struct {
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMinute int
	DefaultLocale      string
	CountryLookup      middleware.CountryLookup
	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *metrics.Registry
	Logger  zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID(opts.Logger),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(
		middleware.Logger,
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/readyz", app.Ready)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(opts.JWTSecret, app.Unauthorized),
			middleware.RateLimit(opts.RateLimitPerMinute, time.Minute, app.TooManyRequests),
		)

		r.Get("/v1/credits", app.Credits)
		r.Route("/v1/generations", func(r chi.Router) {
			r.Get("/", app.ListGenerations)
			r.Post("/", app.CreateGeneration)
			r.Get("/current", app.CurrentGeneration)
			r.Delete("/current", app.DiscardGeneration)
			r.Post("/current/cancel", app.CancelGeneration)
		})
	})

	return r
}
