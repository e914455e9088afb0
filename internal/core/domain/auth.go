package domain

import (
	"errors"
	"regexp"
	"time"
)

var ErrInvalidTenant = errors.New("invalid tenant")

var (
	tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9._:/-]+$`)
	idPattern     = regexp.MustCompile(`^[a-f0-9-]{1,64}$`)
)

// APIKey binds a hashed token to the tenant whose history it can read and write.
type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
}

func (k APIKey) Validate() error {
	if k.TokenHash == "" {
		return errors.New("token hash is required")
	}
	return ValidateTenant(k.TenantID)
}

func ValidateTenant(tenantID string) error {
	if tenantID == "" || !tenantPattern.MatchString(tenantID) {
		return ErrInvalidTenant
	}
	return nil
}
