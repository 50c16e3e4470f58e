package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
)

// AccountHandler serves signup and login.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Routes returns the chi router with the unauthenticated account routes.
func (h *AccountHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	return r
}

// Signup registers an admin.
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AccountHandler.Signup")
	defer span.End()
	r = r.WithContext(ctx)

	var req model.SignupRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	resp, err := h.accounts.Signup(ctx, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// Login exchanges credentials for a bearer token.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AccountHandler.Login")
	defer span.End()
	r = r.WithContext(ctx)

	var req model.LoginRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	resp, err := h.accounts.Login(ctx, req)
	if err != nil {
		// Bad credentials are reported as 401, not 403.
		if model.KindOf(err) == model.KindAuthorization {
			respondStatus(w, http.StatusUnauthorized, KindUnauthenticated, err.Error())
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
