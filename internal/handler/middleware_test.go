package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hiroki-koketsu/task-assignment/internal/model"
)

type stubVerifier map[string]model.Actor

func (s stubVerifier) Verify(token string) (model.Actor, error) {
	a, ok := s[token]
	if !ok {
		return model.Actor{}, errors.New("unknown token")
	}
	return a, nil
}

func TestAuthenticate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	want := model.Actor{ID: "u1", Role: model.RoleMember}
	mw := Authenticate(stubVerifier{"good": want}, logger)

	var got model.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusNoContent},
		{"bearer good", http.StatusNoContent},
	}
	for _, tc := range cases {
		got = model.Actor{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		if rec.Code != tc.code {
			t.Fatalf("%q: expected %d, got %d", tc.header, tc.code, rec.Code)
		}
		if tc.code == http.StatusNoContent && got != want {
			t.Fatalf("%q: expected actor %+v, got %+v", tc.header, want, got)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[model.ErrorKind]int{
		model.KindValidation:        http.StatusUnprocessableEntity,
		model.KindAuthorization:     http.StatusForbidden,
		model.KindNotFound:          http.StatusNotFound,
		model.KindBlocked:           http.StatusConflict,
		model.KindInvalidTransition: http.StatusConflict,
		model.KindConflict:          http.StatusConflict,
		model.KindStorage:           http.StatusInternalServerError,
		KindUnauthenticated:         http.StatusUnauthorized,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestRespondError_HidesStorageCause(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(rec, req, logger, model.StorageError("find tasks", errors.New("disk on fire")))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "internal server error") || strings.Contains(body, "disk on fire") {
		t.Fatalf("unexpected body %s", body)
	}
}
