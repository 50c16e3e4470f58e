package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
	"github.com/hiroki-koketsu/task-assignment/internal/telemetry"
)

// Services bundles the use cases the router serves.
type Services struct {
	Tasks    *service.TaskService
	Members  *service.MemberService
	Accounts *service.AccountService
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Tokens         TokenVerifier
	Metrics        *telemetry.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter builds the HTTP API.
func NewRouter(svc Services, opts RouterOptions) chi.Router {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(Metrics(opts.Metrics))

	r.Get("/health", Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", NewAccountHandler(svc.Accounts, opts.Logger).Routes())

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Tokens, opts.Logger))
			r.Mount("/tasks", NewTaskHandler(svc.Tasks, opts.Logger).Routes())
			r.Mount("/members", NewMemberHandler(svc.Members, opts.Logger).Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondStatus(w, http.StatusNotFound, model.KindNotFound, "route not found")
	})

	return r
}
