/*
Package factory provides JSON to Go conversion for deduction rules and rates.

PURPOSE:
  Converts JSON rule-set and rate-table documents into compensation.RuleSet
  and rate maps. Payroll staff edit the documents; the factory validates
  them and builds the Go structs the engine evaluates.

JSON SCHEMA (rule set):
  {
    "scope": "global",
    "excused_minutes": 3,
    "tiers": [
      {"label": "minor",    "start_minute": 4,  "end_minute": 7,  "percent": "10"},
      {"label": "moderate", "start_minute": 8,  "end_minute": 15, "percent": "25"},
      {"label": "severe",   "start_minute": 16, "end_minute": 60, "percent": "50"}
    ],
    "packages": {
      "standard": {"lateness": "30", "absence": "50"}
    }
  }

  An instructor-specific document sets "scope": "instructor" and
  "instructor_id". Amounts may be JSON strings or numbers.

JSON SCHEMA (rate table):
  {"standard": "900", "premium": "1300"}

VALIDATION:
  - tiers are sorted by start minute and must not overlap
  - percents are within [0, 100] and never decrease from tier to tier
  - base amounts and rates are not negative
  Failures are *generic.RuleSetError, which unwraps to ErrInvalidRuleSet.

USAGE:
  f := factory.NewRulesFactory()
  rules, err := f.ParseRuleSet(factory.DefaultRulesJSON())

SEE ALSO:
  - compensation/types.go: RuleSet
  - store/sqlite: stores the documents in rule_sets.config_json
*/
package factory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a deduction rule set.
type RuleSetJSON struct {
	Scope          string                          `json:"scope"`
	InstructorID   string                          `json:"instructor_id,omitempty"`
	ExcusedMinutes int                             `json:"excused_minutes"`
	Tiers          []TierJSON                      `json:"tiers"`
	Packages       map[string]PackageDeductionJSON `json:"packages"`
}

// TierJSON is one lateness band.
type TierJSON struct {
	Label       string          `json:"label"`
	StartMinute int             `json:"start_minute"`
	EndMinute   int             `json:"end_minute"`
	Percent     decimal.Decimal `json:"percent"`
}

// PackageDeductionJSON holds the per-package base amounts.
type PackageDeductionJSON struct {
	Lateness decimal.Decimal `json:"lateness"`
	Absence  decimal.Decimal `json:"absence"`
}

// RateTableJSON maps package ids to monthly rates.
type RateTableJSON map[string]decimal.Decimal

// =============================================================================
// RULES FACTORY
// =============================================================================

// RulesFactory converts JSON documents to validated domain structs.
type RulesFactory struct{}

// NewRulesFactory creates a new rules factory.
func NewRulesFactory() *RulesFactory {
	return &RulesFactory{}
}

// ParseRuleSet parses and validates a rule-set document.
func (f *RulesFactory) ParseRuleSet(jsonStr string) (*compensation.RuleSet, error) {
	var rj RuleSetJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule set JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON validates rj and converts it to a RuleSet. Tiers come back
// sorted by start minute.
func (f *RulesFactory) FromJSON(rj RuleSetJSON) (*compensation.RuleSet, error) {
	rs := &compensation.RuleSet{
		Scope:          parseScope(rj.Scope),
		InstructorID:   compensation.InstructorID(rj.InstructorID),
		ExcusedMinutes: rj.ExcusedMinutes,
		Packages:       make(map[compensation.PackageID]compensation.PackageDeduction, len(rj.Packages)),
	}
	if rs.Scope == "" {
		return nil, &generic.RuleSetError{Field: "scope", Message: fmt.Sprintf("unknown scope %q", rj.Scope)}
	}
	if rs.Scope == compensation.ScopeInstructor && rs.InstructorID == "" {
		return nil, &generic.RuleSetError{Field: "instructor_id", Message: "required for instructor scope"}
	}
	if rs.Scope == compensation.ScopeGlobal {
		rs.InstructorID = ""
	}
	if rj.ExcusedMinutes < 0 {
		return nil, &generic.RuleSetError{Field: "excused_minutes", Message: "must not be negative"}
	}

	for _, tj := range rj.Tiers {
		rs.Tiers = append(rs.Tiers, compensation.Tier{
			Label:       tj.Label,
			StartMinute: tj.StartMinute,
			EndMinute:   tj.EndMinute,
			Percent:     tj.Percent,
		})
	}
	sort.SliceStable(rs.Tiers, func(i, j int) bool { return rs.Tiers[i].StartMinute < rs.Tiers[j].StartMinute })
	if err := ValidateTiers(rs.Tiers); err != nil {
		return nil, err
	}

	for pkg, pj := range rj.Packages {
		if pkg == "" {
			return nil, &generic.RuleSetError{Field: "packages", Message: "empty package id"}
		}
		if pj.Lateness.IsNegative() || pj.Absence.IsNegative() {
			return nil, &generic.RuleSetError{Field: "packages." + pkg, Message: "base amounts must not be negative"}
		}
		rs.Packages[compensation.PackageID(pkg)] = compensation.PackageDeduction{
			Lateness: pj.Lateness,
			Absence:  pj.Absence,
		}
	}
	return rs, nil
}

// ToJSON converts a RuleSet back to its document form.
func (f *RulesFactory) ToJSON(rs *compensation.RuleSet) RuleSetJSON {
	rj := RuleSetJSON{
		Scope:          string(rs.Scope),
		InstructorID:   string(rs.InstructorID),
		ExcusedMinutes: rs.ExcusedMinutes,
		Packages:       make(map[string]PackageDeductionJSON, len(rs.Packages)),
	}
	for _, t := range rs.Tiers {
		rj.Tiers = append(rj.Tiers, TierJSON{
			Label:       t.Label,
			StartMinute: t.StartMinute,
			EndMinute:   t.EndMinute,
			Percent:     t.Percent,
		})
	}
	for pkg, d := range rs.Packages {
		rj.Packages[string(pkg)] = PackageDeductionJSON{Lateness: d.Lateness, Absence: d.Absence}
	}
	return rj
}

// MarshalRuleSet renders rs as a JSON document.
func (f *RulesFactory) MarshalRuleSet(rs *compensation.RuleSet) (string, error) {
	b, err := json.Marshal(f.ToJSON(rs))
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule set: %w", err)
	}
	return string(b), nil
}

// ParseRateTable parses a package rate table.
func (f *RulesFactory) ParseRateTable(jsonStr string) (map[compensation.PackageID]decimal.Decimal, error) {
	var table RateTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &table); err != nil {
		return nil, fmt.Errorf("failed to parse rate table JSON: %w", err)
	}
	out := make(map[compensation.PackageID]decimal.Decimal, len(table))
	for pkg, rate := range table {
		if pkg == "" {
			return nil, &generic.RuleSetError{Field: "rates", Message: "empty package id"}
		}
		if rate.IsNegative() {
			return nil, &generic.RuleSetError{Field: "rates." + pkg, Message: "monthly rate must not be negative"}
		}
		out[compensation.PackageID(pkg)] = rate
	}
	return out, nil
}

// ValidateTiers checks tiers sorted by start minute.
func ValidateTiers(tiers []compensation.Tier) error {
	hundred := decimal.NewFromInt(100)
	for i, t := range tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		switch {
		case t.StartMinute < 0:
			return &generic.RuleSetError{Field: field, Message: "start minute must not be negative"}
		case t.EndMinute < t.StartMinute:
			return &generic.RuleSetError{Field: field, Message: "end minute before start minute"}
		case t.Percent.IsNegative() || t.Percent.GreaterThan(hundred):
			return &generic.RuleSetError{Field: field, Message: "percent must be within [0, 100]"}
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.StartMinute <= prev.EndMinute {
			return &generic.RuleSetError{Field: field, Message: fmt.Sprintf("overlaps tier %q", prev.Label)}
		}
		if t.Percent.LessThan(prev.Percent) {
			return &generic.RuleSetError{Field: field, Message: "percent lower than the previous tier"}
		}
	}
	return nil
}

func parseScope(s string) compensation.RuleScope {
	switch s {
	case "", "global":
		return compensation.ScopeGlobal
	case "instructor":
		return compensation.ScopeInstructor
	default:
		return ""
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultRulesJSON is the tutoring operation's standard global rule set.
func DefaultRulesJSON() string {
	return `{
  "scope": "global",
  "excused_minutes": 3,
  "tiers": [
    {"label": "minor", "start_minute": 4, "end_minute": 7, "percent": "10"},
    {"label": "moderate", "start_minute": 8, "end_minute": 15, "percent": "25"},
    {"label": "severe", "start_minute": 16, "end_minute": 60, "percent": "50"}
  ],
  "packages": {
    "standard": {"lateness": "30", "absence": "50"},
    "premium": {"lateness": "45", "absence": "75"}
  }
}`
}

// InstructorRulesJSON builds an instructor-specific document with a custom
// grace period over the default tiers and bases.
func InstructorRulesJSON(instructorID string, excusedMinutes int) string {
	return fmt.Sprintf(`{
  "scope": "instructor",
  "instructor_id": %q,
  "excused_minutes": %d,
  "tiers": [
    {"label": "minor", "start_minute": 4, "end_minute": 7, "percent": "10"},
    {"label": "moderate", "start_minute": 8, "end_minute": 15, "percent": "25"},
    {"label": "severe", "start_minute": 16, "end_minute": 60, "percent": "50"}
  ],
  "packages": {
    "standard": {"lateness": "30", "absence": "50"},
    "premium": {"lateness": "45", "absence": "75"}
  }
}`, instructorID, excusedMinutes)
}

// DefaultRatesJSON is the standard package rate table.
func DefaultRatesJSON() string {
	return `{"standard": "900", "premium": "1300"}`
}
