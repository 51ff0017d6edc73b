package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/botdesk-next/internal/cache"
	"github.com/botdesk-next/internal/models"
	"github.com/botdesk-next/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupAuthServiceTest(t *testing.T) (*AuthService, *ledgerTestEnv) {
	t.Helper()
	env := setupLedgerServiceTest(t)
	svc := NewAuthService(newLedgerTestConfig(), repository.NewAdminRepository(env.db), repository.NewUserRepository(env.db))
	return svc, env
}

func TestAuthLoginIssuesAdminToken(t *testing.T) {
	svc, env := setupAuthServiceTest(t)
	hash, err := HashPassword("Finance#2026")
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	admin := models.Admin{Username: "finance", PasswordHash: hash, TokenVersion: 3}
	if err := env.db.Create(&admin).Error; err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	if _, _, _, err := svc.Login("finance", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, _, err := svc.Login("nobody", "Finance#2026"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown admin must be rejected, got %v", err)
	}

	logged, token, expiresAt, err := svc.Login(" finance ", "Finance#2026")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if logged.LastLoginAt == nil || expiresAt.IsZero() {
		t.Fatalf("login must record last login: %+v", logged)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("parse admin token failed: %v", err)
	}
	if claims.AdminID != admin.ID || claims.Username != "finance" || claims.TokenVersion != 3 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := svc.ParseUserJWT(token); err == nil {
		t.Fatalf("admin token must not validate as a user token")
	}
}

func TestAuthUserTokenRoundTrip(t *testing.T) {
	svc, env := setupAuthServiceTest(t)
	user := createServiceTestUser(t, env.db, "promoter@example.com")

	token, _, err := svc.GenerateUserJWT(&user)
	if err != nil {
		t.Fatalf("generate user token failed: %v", err)
	}
	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse user token failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != "promoter@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := svc.ParseUserJWT(token + "x"); err == nil {
		t.Fatalf("tampered token must be rejected")
	}
}

func TestAuthResolveStateUsesCache(t *testing.T) {
	svc, env := setupAuthServiceTest(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.UseClient(client, "auth")
	t.Cleanup(func() { _ = client.Close() })

	user := createServiceTestUser(t, env.db, "promoter@example.com")
	ctx := context.Background()
	state, err := svc.ResolveUserAuthState(ctx, user.ID)
	if err != nil {
		t.Fatalf("resolve user state failed: %v", err)
	}
	if state.UserID != user.ID || state.Status != "active" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if !mr.Exists(cache.BuildKey(fmt.Sprintf("auth:user:%d", user.ID))) {
		t.Fatalf("resolved state must be cached")
	}

	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", "disabled").Error; err != nil {
		t.Fatalf("disable user failed: %v", err)
	}
	cached, err := svc.ResolveUserAuthState(ctx, user.ID)
	if err != nil || cached.Status != "active" {
		t.Fatalf("cache hit must serve the snapshot: %+v err=%v", cached, err)
	}

	if _, err := svc.ResolveAdminAuthState(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
