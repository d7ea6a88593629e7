package compensation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// RateResolver prices packages. Unknown packages are worth zero and
// produce a warning instead of an error.
type RateResolver struct {
	table    RateTable
	calendar Calendar
}

// NewRateResolver creates a RateResolver.
func NewRateResolver(table RateTable, calendar Calendar) *RateResolver {
	return &RateResolver{table: table, calendar: calendar}
}

// Monthly returns the monthly rate of pkg. The warning is non-nil when the
// package has no configured rate.
func (r *RateResolver) Monthly(ctx context.Context, pkg PackageID) (decimal.Decimal, *Warning, error) {
	if r.table == nil {
		return decimal.Zero, missingRate(pkg), nil
	}
	rate, ok, err := r.table.MonthlyRate(ctx, pkg)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("monthly rate %q: %w", pkg, err)
	}
	if !ok {
		return decimal.Zero, missingRate(pkg), nil
	}
	return rate, nil, nil
}

// Daily divides monthly by the working days of period and rounds to cents.
// A period without working days yields zero.
func (r *RateResolver) Daily(monthly decimal.Decimal, period generic.Period) decimal.Decimal {
	days := r.calendar.WorkingDays(period)
	if days == 0 {
		return decimal.Zero
	}
	return generic.RoundMoney(monthly.Div(decimal.NewFromInt(int64(days))))
}

func missingRate(pkg PackageID) *Warning {
	return &Warning{
		Kind:    WarnMissingRate,
		Package: pkg,
		Message: fmt.Sprintf("no monthly rate configured for package %q", pkg),
	}
}
