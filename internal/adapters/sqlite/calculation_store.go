package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/strcalc/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

const aggregateCalculation = "calculation"

type calculationModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	TenantID      string    `gorm:"column:tenant_id;not null"`
	Input         string    `gorm:"column:input;not null"`
	Sum           int64     `gorm:"column:sum;not null"`
	NegativesJSON string    `gorm:"column:negatives_json;not null"`
	Outcome       string    `gorm:"column:outcome;not null"`
	Token         string    `gorm:"column:malformed_token;not null"`
	TokenIndex    int       `gorm:"column:malformed_index;not null"`
	Actor         string    `gorm:"column:actor;not null"`
	Source        string    `gorm:"column:source;not null"`
	RequestID     string    `gorm:"column:request_id;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (calculationModel) TableName() string {
	return "calculations"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// CalculationStore keeps the calculation history and writes one outbox event
// per calculation in the same transaction.
type CalculationStore struct {
	db *gormsqlite.DB
}

func NewCalculationStore(db *gormsqlite.DB) *CalculationStore {
	return &CalculationStore{db: db}
}

func (s *CalculationStore) SaveWithEvent(ctx context.Context, calc domain.Calculation) (domain.Calculation, error) {
	if calc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Calculation{}, fmt.Errorf("generate calculation id: %w", err)
		}
		calc.ID = id.String()
	}
	if calc.CreatedAt.IsZero() {
		calc.CreatedAt = time.Now().UTC()
	}
	calc.CreatedAt = calc.CreatedAt.UTC()

	model, err := toCalculationModel(calc)
	if err != nil {
		return domain.Calculation{}, err
	}

	envelope := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     domain.EventType(calc.Outcome),
		SchemaVersion: domain.CurrentEventSchemaVersion,
		TenantID:      calc.TenantID,
		AggregateType: aggregateCalculation,
		AggregateID:   calc.ID,
		OccurredAt:    calc.CreatedAt,
		Actor:         calc.Actor,
		Source:        calc.Source,
		RequestID:     calc.RequestID,
		Payload: mustJSON(map[string]any{
			"calculation_id": calc.ID,
			"input":          calc.Input,
			"sum":            calc.Sum,
			"negatives":      nonNilInts(calc.Negatives),
			"outcome":        calc.Outcome,
			"token":          calc.Token,
			"token_index":    calc.TokenIndex,
		}),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return domain.Calculation{}, fmt.Errorf("marshal outbox payload: %w", err)
	}

	err = s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert calculation: %w", err)
		}
		outbox := outboxEventModel{
			EventID:       envelope.EventID,
			TenantID:      calc.TenantID,
			Topic:         "events." + calc.TenantID + "." + envelope.EventType,
			PayloadJSON:   string(payload),
			Status:        outboxStatusPending,
			NextAttemptAt: calc.CreatedAt,
			CreatedAt:     calc.CreatedAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Calculation{}, err
	}

	return calc, nil
}

func (s *CalculationStore) Get(ctx context.Context, tenantID, id string) (domain.Calculation, error) {
	var model calculationModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Calculation{}, domain.ErrNotFound
		}
		return domain.Calculation{}, fmt.Errorf("get calculation: %w", err)
	}
	return toCalculation(model)
}

// List returns calculations newest first. AfterID continues from the last id
// of a previous page.
func (s *CalculationStore) List(ctx context.Context, filter domain.CalculationFilter) ([]domain.Calculation, error) {
	var models []calculationModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&calculationModel{}).Where("tenant_id = ?", filter.TenantID)
		if filter.Outcome != "" {
			query = query.Where("outcome = ?", string(filter.Outcome))
		}
		if filter.AfterID != "" {
			query = query.Where("id < ?", filter.AfterID)
		}
		return query.Order("id DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}

	result := make([]domain.Calculation, 0, len(models))
	for _, model := range models {
		calc, err := toCalculation(model)
		if err != nil {
			return nil, err
		}
		result = append(result, calc)
	}
	return result, nil
}

func toCalculationModel(calc domain.Calculation) (calculationModel, error) {
	negatives, err := json.Marshal(nonNilInts(calc.Negatives))
	if err != nil {
		return calculationModel{}, fmt.Errorf("marshal negatives: %w", err)
	}
	return calculationModel{
		ID:            calc.ID,
		TenantID:      calc.TenantID,
		Input:         calc.Input,
		Sum:           int64(calc.Sum),
		NegativesJSON: string(negatives),
		Outcome:       string(calc.Outcome),
		Token:         calc.Token,
		TokenIndex:    calc.TokenIndex,
		Actor:         calc.Actor,
		Source:        calc.Source,
		RequestID:     calc.RequestID,
		CreatedAt:     calc.CreatedAt,
	}, nil
}

func toCalculation(model calculationModel) (domain.Calculation, error) {
	var negatives []int
	if err := json.Unmarshal([]byte(model.NegativesJSON), &negatives); err != nil {
		return domain.Calculation{}, fmt.Errorf("decode negatives of %s: %w", model.ID, err)
	}
	if len(negatives) == 0 {
		negatives = nil
	}
	return domain.Calculation{
		ID:         model.ID,
		TenantID:   model.TenantID,
		Input:      model.Input,
		Sum:        int(model.Sum),
		Negatives:  negatives,
		Outcome:    domain.Outcome(model.Outcome),
		Token:      model.Token,
		TokenIndex: model.TokenIndex,
		Actor:      model.Actor,
		Source:     model.Source,
		RequestID:  model.RequestID,
		CreatedAt:  model.CreatedAt,
	}, nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
