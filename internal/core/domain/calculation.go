package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInputTooLarge = errors.New("input too large")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrNotFound      = errors.New("not found")
)

const (
	MaxInputBytes = 64 << 10
	MaxBatchSize  = 100

	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAccepted, OutcomeRejected, OutcomeMalformed:
		return true
	}
	return false
}

// Calculation is one evaluated input as kept in the history.
type Calculation struct {
	ID        string
	TenantID  string
	Input     string
	Sum       int
	Negatives []int
	Outcome   Outcome
	// Token and TokenIndex locate the first unparseable token of a
	// malformed calculation.
	Token      string
	TokenIndex int
	Actor      string
	Source     string
	RequestID  string
	CreatedAt  time.Time
}

// Err rebuilds the domain error a non-accepted calculation was rejected with.
func (c Calculation) Err() error {
	switch c.Outcome {
	case OutcomeRejected:
		return &NegativeNumbersError{Numbers: c.Negatives}
	case OutcomeMalformed:
		return &MalformedTokenError{Index: c.TokenIndex, Token: c.Token}
	}
	return nil
}

type CalculationFilter struct {
	TenantID string
	Outcome  Outcome
	AfterID  string
	Limit    int
}

// Normalize applies the page size the store will actually use.
func (f CalculationFilter) Normalize() CalculationFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

func (f CalculationFilter) Validate() error {
	if err := ValidateTenant(f.TenantID); err != nil {
		return err
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		return ErrInvalidFilter
	}
	if f.AfterID != "" && !idPattern.MatchString(f.AfterID) {
		return ErrInvalidFilter
	}
	return nil
}
