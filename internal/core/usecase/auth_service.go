package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
	"github.com/atvirokodosprendimai/strcalc/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Bootstrap upserts an active key for token so a fresh deployment can be
// reached without a separate provisioning step.
func (s *AuthService) Bootstrap(ctx context.Context, token, tenantID, name string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("bootstrap token is empty")
	}
	if name == "" {
		name = "bootstrap"
	}
	key := domain.APIKey{
		TokenHash: HashToken(token),
		TenantID:  tenantID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := key.Validate(); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, key)
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
