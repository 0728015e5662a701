// Package httpapi exposes the session lifecycle over JSON/HTTP: registration,
// login, refresh, logout and the protected profile and session listing, plus
// the health and metrics endpoints.
package httpapi

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/LouAnabel/someContacts/internal/server/models"
	"github.com/LouAnabel/someContacts/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Sessions is the part of services.SessionService the handlers use.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*models.User, *services.TokenPair, error)
	Issue(ctx context.Context, userID string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, p services.Principal) (bool, error)
	LogoutAll(ctx context.Context, userID string) (int64, error)
	Authorize(ctx context.Context, accessToken string) (*services.Principal, error)
	ListSessions(ctx context.Context, userID string) ([]models.TokenRecord, error)
}

// Users is the part of services.UserService the handlers use.
type Users interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Pinger reports database readiness; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
)

// Handler holds the collaborators shared by every route.
type Handler struct {
	sessions Sessions
	users    Users
	db       Pinger
	metrics  http.Handler
	validate *validator.Validate
	logger   logging.Logger
}

// NewHandler builds the API. metrics may be nil, in which case /metrics is
// not mounted.
func NewHandler(sessions Sessions, users Users, db Pinger, metrics http.Handler, logger logging.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		users:    users,
		db:       db,
		metrics:  metrics,
		validate: newValidator(),
		logger:   logger.With("module", "http"),
	}
}

// Routes returns the chi router serving the whole API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(h.requestID)
	r.Use(h.requestLogging)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/me", h.me)
			r.Get("/sessions", h.listSessions)
		})
	})

	return r
}

// newValidator reports field names by their json tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
