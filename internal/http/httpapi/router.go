// Package httpapi assembles the chi router and middleware chain.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"pipeline/internal/http/handlers"
	"pipeline/internal/infra"
	"pipeline/internal/middleware"
)

// Options carries the cross-cutting knobs wired in front of the handlers.
type Options struct {
	Logger         infra.Logger
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup

	// SubmitRateLimit caps job submissions per client IP per SubmitRatePer.
	// Zero disables the limiter.
	SubmitRateLimit int
	SubmitRatePer   time.Duration
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Identity,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Healthz)

	r.Route("/v1/jobs", func(r chi.Router) {
		submit := chi.Router(r)
		if opts.SubmitRateLimit > 0 {
			submit = r.With(middleware.RateLimit(opts.SubmitRateLimit, opts.SubmitRatePer))
		}
		submit.Post("/", app.SubmitJob)

		r.Get("/", app.ListJobs)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Post("/cancel", app.CancelJob)
			r.Get("/artifacts", app.JobArtifacts)
			r.Get("/artifacts/archive", app.JobArchive)
			r.Get("/events", app.JobEvents)
			r.Get("/events/stream", app.JobEventsStream)
		})
	})

	r.Route("/v1/presets", func(r chi.Router) {
		r.Get("/", app.ListPresets)
		r.Get("/{preset_id}", app.PresetDetail)
	})

	r.Get("/v1/engines", app.ListEngines)

	return r
}
