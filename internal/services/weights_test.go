package services

import (
	"math/rand"
	"testing"

	"prorata/internal/core"
)

func i64(v int64) *int64 { return &v }

func TestResolveWeights(t *testing.T) {
	tests := []struct {
		name  string
		mode  core.SplitMode
		a     core.Member
		b     core.Member
		wantA float64
		wantB float64
	}{
		{
			name:  "equal mode ignores settings",
			mode:  core.ModeEqual,
			a:     core.Member{IncomeCents: i64(300000)},
			b:     core.Member{IncomeCents: i64(100000)},
			wantA: 0.5,
			wantB: 0.5,
		},
		{
			name:  "income 60/40",
			mode:  core.ModeIncome,
			a:     core.Member{IncomeCents: i64(240000)},
			b:     core.Member{IncomeCents: i64(160000)},
			wantA: 0.6,
			wantB: 0.4,
		},
		{
			name:  "income unset treated as zero",
			mode:  core.ModeIncome,
			a:     core.Member{IncomeCents: i64(100000)},
			b:     core.Member{},
			wantA: 1.0,
			wantB: 0.0,
		},
		{
			name:  "both incomes zero falls back to equal",
			mode:  core.ModeIncome,
			a:     core.Member{IncomeCents: i64(0)},
			b:     core.Member{IncomeCents: i64(0)},
			wantA: 0.5,
			wantB: 0.5,
		},
		{
			name:  "percentage 33/67",
			mode:  core.ModePercentage,
			a:     core.Member{Percentage: i64(33)},
			b:     core.Member{Percentage: i64(67)},
			wantA: 0.33,
			wantB: 0.67,
		},
		{
			name:  "unset percentage defaults to 50",
			mode:  core.ModePercentage,
			a:     core.Member{},
			b:     core.Member{Percentage: i64(70)},
			wantA: 0.5,
			wantB: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotA, gotB := ResolveWeights(tt.mode, &tt.a, &tt.b)
			if gotA != tt.wantA || gotB != tt.wantB {
				t.Errorf("ResolveWeights() = (%v, %v), want (%v, %v)", gotA, gotB, tt.wantA, tt.wantB)
			}
		})
	}
}

// Weights always sum to exactly 1.0 because B's weight is derived as
// the complement, whatever the income figures.
func TestResolveWeightsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		a := core.Member{IncomeCents: i64(rng.Int63n(10_000_000))}
		b := core.Member{IncomeCents: i64(rng.Int63n(10_000_000))}
		wA, wB := ResolveWeights(core.ModeIncome, &a, &b)
		if wA+wB != 1.0 {
			t.Fatalf("weights %v + %v != 1.0 (incomes %d, %d)", wA, wB, *a.IncomeCents, *b.IncomeCents)
		}
		if wA < 0 || wA > 1 {
			t.Fatalf("weight %v out of [0,1]", wA)
		}
	}
}
