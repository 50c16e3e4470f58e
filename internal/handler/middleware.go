package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
)

// TokenVerifier resolves a bearer token to the caller it was issued to.
type TokenVerifier interface {
	Verify(token string) (model.Actor, error)
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying the authenticated caller.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the caller stored by Authenticate, or the zero Actor.
func ActorFrom(ctx context.Context) model.Actor {
	a, _ := ctx.Value(actorKey{}).(model.Actor)
	return a
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller in the request context.
func Authenticate(tokens TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				respondStatus(w, http.StatusUnauthorized, KindUnauthenticated, "missing bearer token")
				return
			}

			actor, err := tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(r.Context(), "token rejected", slog.Any("error", err))
				respondStatus(w, http.StatusUnauthorized, KindUnauthenticated, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
