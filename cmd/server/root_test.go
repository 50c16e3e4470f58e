package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hiroki-koketsu/task-assignment/internal/auth"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/repository"
)

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	dbPath := filepath.Join(dir, "tasks.db")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("TOKEN_TTL", "1h")

	ctx := context.Background()
	store, err := repository.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	user, err := store.Users.Create(ctx, &model.User{Name: "Ada", Email: "ada@example.com", Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", user.ID})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	actor, err := auth.NewTokens("cli-secret", time.Hour).Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify printed token: %v", err)
	}
	if actor.ID != user.ID || actor.Role != model.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	testChdir(t, t.TempDir())
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--user") {
		t.Fatalf("expected missing user error, got %v", err)
	}
}
