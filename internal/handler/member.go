package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/service"
	"go.opentelemetry.io/otel/attribute"
)

// MemberHandler serves the member directory.
type MemberHandler struct {
	members *service.MemberService
	logger  *slog.Logger
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(members *service.MemberService, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger}
}

// Routes returns the chi router with member routes.
func (h *MemberHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	return r
}

// List returns the members the caller provisioned.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "MemberHandler.List")
	defer span.End()
	r = r.WithContext(ctx)

	members, err := h.members.ListMembers(ctx, ActorFrom(ctx))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.Int("member.count", len(members)))
	respondJSON(w, http.StatusOK, members)
}

// Create provisions a member.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "MemberHandler.Create")
	defer span.End()
	r = r.WithContext(ctx)

	var req model.CreateMemberRequest
	if !decode(w, r, h.logger, &req) {
		return
	}
	member, err := h.members.CreateMember(ctx, ActorFrom(ctx), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}
