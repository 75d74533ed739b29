package orchestrator

import (
	"errors"
	"testing"

	"github.com/guoyu07/rocketeer/internal/domain"
)

func TestCoerce(t *testing.T) {
	var nilPtr *int
	var nilSlice []string
	var nilMap map[string]int
	one := 1

	tests := []struct {
		name     string
		in       any
		explicit bool
		value    bool
	}{
		{"nil", nil, false, false},
		{"nil pointer", nilPtr, false, false},
		{"nil slice", nilSlice, false, false},
		{"nil map", nilMap, false, false},
		{"true", true, true, true},
		{"false", false, true, false},
		{"zero", 0, true, false},
		{"non-zero", 42, true, true},
		{"zero float", 0.0, true, false},
		{"empty string", "", true, false},
		{"string", "done", true, true},
		{"empty list", []string{}, true, false},
		{"list", []string{"a"}, true, true},
		{"empty map", map[string]int{}, true, false},
		{"pointer", &one, true, true},
		{"error", errors.New("x"), true, false},
		{"outcome", Explicit(true), true, true},
		{"inherit", Inherit(), false, false},
		{"struct", struct{}{}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.in)
			if got.IsExplicit() != tt.explicit || got.Value() != tt.value {
				t.Errorf("Coerce(%#v) = {explicit:%v value:%v}, want {explicit:%v value:%v}",
					tt.in, got.IsExplicit(), got.Value(), tt.explicit, tt.value)
			}
		})
	}
}

func TestResolveVerdict(t *testing.T) {
	tests := []struct {
		outcome Outcome
		exitOK  bool
		want    domain.Verdict
	}{
		{Inherit(), true, domain.VerdictSuccess},
		{Inherit(), false, domain.VerdictFailure},
		{Succeed(), false, domain.VerdictSuccess},
		{Fail(), true, domain.VerdictFailure},
	}
	for _, tt := range tests {
		if got := resolveVerdict(tt.outcome, tt.exitOK); got != tt.want {
			t.Errorf("resolveVerdict(%+v, %v) = %s, want %s", tt.outcome, tt.exitOK, got, tt.want)
		}
	}
}
