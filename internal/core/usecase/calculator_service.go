package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
	"github.com/atvirokodosprendimai/strcalc/internal/core/ports"
)

const batchConcurrency = 8

// CalculatorService evaluates inputs and records every evaluation in the
// tenant's history.
type CalculatorService struct {
	store ports.CalculationStore
}

func NewCalculatorService(store ports.CalculationStore) *CalculatorService {
	return &CalculatorService{store: store}
}

// BatchResult pairs a stored calculation with the domain error it produced, if any.
type BatchResult struct {
	Calculation domain.Calculation
	Err         error
}

// Evaluate runs the parser on input and stores the outcome. For rejected and
// malformed inputs the stored calculation is returned together with the
// domain error.
func (s *CalculatorService) Evaluate(ctx context.Context, tenantID, input string, strict bool, meta domain.RequestMetadata) (domain.Calculation, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return domain.Calculation{}, err
	}
	if len(input) > domain.MaxInputBytes {
		return domain.Calculation{}, domain.ErrInputTooLarge
	}
	meta = meta.Normalize()

	calc, evalErr := evaluate(input, strict)
	calc.TenantID = tenantID
	calc.Actor = meta.Actor
	calc.Source = meta.Source
	calc.RequestID = meta.RequestID
	calc.CreatedAt = meta.OccurredAt

	stored, err := s.store.SaveWithEvent(ctx, calc)
	if err != nil {
		return domain.Calculation{}, fmt.Errorf("save calculation: %w", err)
	}
	return stored, evalErr
}

// EvaluateBatch evaluates inputs concurrently. Results keep the order of
// inputs; only storage failures abort the batch.
func (s *CalculatorService) EvaluateBatch(ctx context.Context, tenantID string, inputs []string, strict bool, meta domain.RequestMetadata) ([]BatchResult, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	if len(inputs) > domain.MaxBatchSize {
		return nil, domain.ErrBatchTooLarge
	}
	for _, input := range inputs {
		if len(input) > domain.MaxInputBytes {
			return nil, domain.ErrInputTooLarge
		}
	}
	meta = meta.Normalize()

	results := make([]BatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, input := range inputs {
		g.Go(func() error {
			calc, err := s.Evaluate(gctx, tenantID, input, strict, meta)
			if err != nil && !isEvaluationError(err) {
				return err
			}
			results[i] = BatchResult{Calculation: calc, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *CalculatorService) Get(ctx context.Context, tenantID, id string) (domain.Calculation, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return domain.Calculation{}, err
	}
	if id == "" {
		return domain.Calculation{}, domain.ErrNotFound
	}
	return s.store.Get(ctx, tenantID, id)
}

func (s *CalculatorService) List(ctx context.Context, filter domain.CalculationFilter) ([]domain.Calculation, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.store.List(ctx, filter.Normalize())
}

func evaluate(input string, strict bool) (domain.Calculation, error) {
	calc := domain.Calculation{Input: input, Outcome: domain.OutcomeAccepted}

	var (
		sum int
		err error
	)
	if strict {
		sum, err = domain.AddStrict(input)
	} else {
		sum, err = domain.Add(input)
	}

	var (
		negErr       *domain.NegativeNumbersError
		malformedErr *domain.MalformedTokenError
	)
	switch {
	case err == nil:
		calc.Sum = sum
	case errors.As(err, &negErr):
		calc.Outcome = domain.OutcomeRejected
		calc.Negatives = negErr.Numbers
	case errors.As(err, &malformedErr):
		calc.Outcome = domain.OutcomeMalformed
		calc.Token = malformedErr.Token
		calc.TokenIndex = malformedErr.Index
	default:
		return calc, err
	}
	return calc, err
}

func isEvaluationError(err error) bool {
	return errors.Is(err, domain.ErrNegativeNumbers) || errors.Is(err, domain.ErrMalformedInput)
}
