package services

import "prorata/internal/core"

// ResolveWeights derives the two members' fractional shares of the
// monthly total from the couple's split mode. The pair always sums to
// exactly 1.0 because weightB is computed as the complement. Missing
// settings fall back silently: zero incomes mean an equal split, an
// unset percentage counts as 50 for that member alone.
func ResolveWeights(mode core.SplitMode, a, b *core.Member) (float64, float64) {
	switch mode {
	case core.ModeIncome:
		return incomeWeights(a, b)
	case core.ModePercentage:
		return percentageWeights(a, b)
	default:
		return 0.5, 0.5
	}
}

func incomeWeights(a, b *core.Member) (float64, float64) {
	incomeA := valueOrZero(a.IncomeCents)
	incomeB := valueOrZero(b.IncomeCents)
	total := incomeA + incomeB
	if total == 0 {
		return 0.5, 0.5
	}

	weightA := float64(incomeA) / float64(total)
	return weightA, 1 - weightA
}

func percentageWeights(a, b *core.Member) (float64, float64) {
	pctA := int64(50)
	if a.Percentage != nil {
		pctA = *a.Percentage
	}

	weightA := float64(pctA) / 100
	return weightA, 1 - weightA
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
