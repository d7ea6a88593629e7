package compensation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/generic"
)

// Bonus sources as they appear in BonusEntry.Source.
const (
	BonusQuality = "quality"
	BonusManual  = "manual"
)

// BonusAggregator sums approved quality bonuses and manual awards.
type BonusAggregator struct {
	source BonusSource
	loc    *time.Location
}

// NewBonusAggregator creates a BonusAggregator.
func NewBonusAggregator(source BonusSource, loc *time.Location) *BonusAggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &BonusAggregator{source: source, loc: loc}
}

// Aggregate returns the bonus total and its entries for period. Quality
// bonuses count when their week starts in period and a manager approved
// them; manual bonuses count when created in period.
func (a *BonusAggregator) Aggregate(ctx context.Context, id InstructorID, period generic.Period) (decimal.Decimal, []BonusEntry, error) {
	total := decimal.Zero
	if a.source == nil {
		return total, nil, nil
	}

	quality, err := a.source.QualityBonuses(ctx, id, period)
	if err != nil {
		return total, nil, fmt.Errorf("quality bonuses: %w", err)
	}
	manual, err := a.source.ManualBonuses(ctx, id, period)
	if err != nil {
		return total, nil, fmt.Errorf("manual bonuses: %w", err)
	}

	var entries []BonusEntry
	for _, q := range quality {
		if q.InstructorID != id || !q.ManagerApproved || !period.Contains(q.WeekStart) {
			continue
		}
		total = total.Add(q.Amount)
		entries = append(entries, BonusEntry{Source: BonusQuality, ID: q.ID, Date: q.WeekStart, Amount: q.Amount})
	}
	for _, m := range manual {
		created := generic.DateOf(m.CreatedAt, a.loc)
		if m.InstructorID != id || !period.Contains(created) {
			continue
		}
		total = total.Add(m.Amount)
		entries = append(entries, BonusEntry{Source: BonusManual, ID: m.ID, Date: created, Amount: m.Amount})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })
	return total, entries, nil
}
