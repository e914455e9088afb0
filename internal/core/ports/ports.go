package ports

import (
	"context"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

// CalculationStore persists calculations. SaveWithEvent writes the
// calculation and its outbox event in one transaction.
type CalculationStore interface {
	SaveWithEvent(ctx context.Context, calc domain.Calculation) (domain.Calculation, error)
	Get(ctx context.Context, tenantID, id string) (domain.Calculation, error)
	List(ctx context.Context, filter domain.CalculationFilter) ([]domain.Calculation, error)
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}

type APIKeyRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Upsert(ctx context.Context, key domain.APIKey) error
}

// EventPublisher delivers one outbox event. A returned error schedules a retry.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}
