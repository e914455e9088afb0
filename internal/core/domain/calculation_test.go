package domain

import (
	"errors"
	"testing"
)

func TestCalculationFilterValidate(t *testing.T) {
	tests := []struct {
		name   string
		filter CalculationFilter
		want   error
	}{
		{name: "ok", filter: CalculationFilter{TenantID: "tenant-a"}},
		{name: "missing tenant", filter: CalculationFilter{}, want: ErrInvalidTenant},
		{name: "tenant with spaces", filter: CalculationFilter{TenantID: "bad tenant"}, want: ErrInvalidTenant},
		{name: "unknown outcome", filter: CalculationFilter{TenantID: "t", Outcome: "lost"}, want: ErrInvalidFilter},
		{name: "known outcome", filter: CalculationFilter{TenantID: "t", Outcome: OutcomeRejected}},
		{name: "bad cursor", filter: CalculationFilter{TenantID: "t", AfterID: "x'; drop"}, want: ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.filter.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCalculationErr(t *testing.T) {
	rejected := Calculation{Outcome: OutcomeRejected, Negatives: []int{-2}}
	if err := rejected.Err(); err == nil || err.Error() != "negative numbers not allowed: -2" {
		t.Fatalf("unexpected rejected error: %v", err)
	}
	malformed := Calculation{Outcome: OutcomeMalformed, Token: " x", TokenIndex: 1}
	var tokenErr *MalformedTokenError
	if err := malformed.Err(); !errors.As(err, &tokenErr) || !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected malformed token error, got %v", err)
	}
	if tokenErr.Token != " x" || tokenErr.Index != 1 {
		t.Fatalf("unexpected malformed token: %+v", tokenErr)
	}
	if err := (Calculation{Outcome: OutcomeAccepted, Sum: 3}).Err(); err != nil {
		t.Fatalf("accepted calculation returned %v", err)
	}
}

func TestCalculationFilterNormalize(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: DefaultListLimit},
		{limit: -5, want: DefaultListLimit},
		{limit: 7, want: 7},
		{limit: MaxListLimit, want: MaxListLimit},
		{limit: MaxListLimit + 1, want: MaxListLimit},
	}
	for _, tt := range tests {
		if got := (CalculationFilter{Limit: tt.limit}).Normalize().Limit; got != tt.want {
			t.Fatalf("Normalize(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}
