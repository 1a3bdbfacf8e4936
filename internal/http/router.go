package http

import (
	"log/slog"
	"net/http"

	"beacon/internal/auth"
	"beacon/internal/config"
	"beacon/internal/digest"
	"beacon/internal/http/handler"
	mw "beacon/internal/http/middleware"
	"beacon/internal/jobs"
	"beacon/internal/mail"
	"beacon/internal/project"
	"beacon/internal/subscription"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Deps struct {
	DB        *gorm.DB
	JWT       *auth.JWT
	Projects  *project.Store
	Subs      *subscription.Store
	Jobs      *jobs.Store
	Computer  *digest.Computer
	Scheduler *digest.Scheduler
	Transport mail.Transport
	Renderer  *mail.Renderer
	Log       *slog.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	ph := &handler.ProjectHandler{Projects: d.Projects, Subs: d.Subs}
	uh := &handler.UpdateHandler{Projects: d.Projects, Digest: d.Computer, Log: d.Log}

	r.Route("/projects", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", ph.Create)
		r.Get("/", ph.List)
		r.Get("/{id}", ph.Get)
		r.Patch("/{id}", ph.UpdateBranding)
		r.Get("/{id}/subscribers", ph.Subscribers)

		r.Post("/{id}/updates", uh.Create)
		r.Patch("/{id}/updates/{updateID}", uh.Edit)
		r.Delete("/{id}/updates/{updateID}", uh.Delete)
	})

	pub := &handler.PublicHandler{
		Projects:  d.Projects,
		Subs:      d.Subs,
		Transport: d.Transport,
		Renderer:  d.Renderer,
		Log:       d.Log,
	}
	r.Route("/p/{token}", func(r chi.Router) {
		r.Get("/", pub.Timeline)
		r.Post("/subscribe", pub.Subscribe)
		r.Post("/unsubscribe", pub.Unsubscribe)
	})

	adm := &handler.AdminHandler{Jobs: d.Jobs, Scheduler: d.Scheduler}
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Get("/jobs", adm.ListJobs)
		r.Get("/jobs/stats", adm.JobStats)
		r.Post("/jobs/{id}/retry", adm.RetryJob)
		r.Delete("/jobs/{id}", adm.DeleteJob)
		r.Get("/scheduler", adm.SchedulerState)
		r.Post("/scheduler/trigger/{cadence}", adm.TriggerCadence)
	})

	return r
}
