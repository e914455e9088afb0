package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

type stubAPIKeyRepo struct {
	findFn   func(ctx context.Context, tokenHash string) (domain.APIKey, error)
	upserted []domain.APIKey
}

func (s *stubAPIKeyRepo) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	if s.findFn != nil {
		return s.findFn(ctx, tokenHash)
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (s *stubAPIKeyRepo) Upsert(_ context.Context, key domain.APIKey) error {
	s.upserted = append(s.upserted, key)
	return nil
}

func TestAuthServiceAuthenticateSuccess(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(_ context.Context, tokenHash string) (domain.APIKey, error) {
		if tokenHash != HashToken("token-1") {
			t.Fatalf("unexpected token hash: %s", tokenHash)
		}
		return domain.APIKey{TenantID: "tenant-a", Active: true, CreatedAt: time.Now()}, nil
	}}

	svc := NewAuthService(repo)
	key, err := svc.Authenticate(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if key.TenantID != "tenant-a" {
		t.Fatalf("expected tenant-a, got %s", key.TenantID)
	}
}

func TestAuthServiceAuthenticateUnauthorized(t *testing.T) {
	svc := NewAuthService(&stubAPIKeyRepo{})
	_, err := svc.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAuthServiceAuthenticateInactiveKey(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(context.Context, string) (domain.APIKey, error) {
		return domain.APIKey{TenantID: "tenant-a", Active: false}, nil
	}}
	_, err := NewAuthService(repo).Authenticate(context.Background(), "token-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAuthServiceBootstrap(t *testing.T) {
	repo := &stubAPIKeyRepo{}
	svc := NewAuthService(repo)

	if err := svc.Bootstrap(context.Background(), " secret ", "tenant-a", ""); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
	got := repo.upserted[0]
	if got.TokenHash != HashToken("secret") || got.Name != "bootstrap" || !got.Active {
		t.Fatalf("unexpected key: %+v", got)
	}

	if err := svc.Bootstrap(context.Background(), "secret", "bad tenant", "x"); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected invalid tenant, got %v", err)
	}
}
