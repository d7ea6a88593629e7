/*
Package generic provides the domain-agnostic primitives of the compensation engine.

PURPOSE:
  This package contains the calendar, period and money types shared by every
  other package. Whether the caller is computing a monthly salary, a weekly
  bonus window or an ownership sub-interval, the same Date/Period arithmetic
  and the same decimal money helpers apply.

KEY CONCEPTS:
  - Date: A civil calendar date (no time of day), comparable with ==
  - Clock: A wall-clock time of day; the zero value means no slot
  - Period: A closed date interval [Start, End]
  - Money: Amounts are shopspring decimal.Decimal values; helpers here
    centralise the rounding rules

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. One rounding rule: RoundMoney is half-away-from-zero to 2 places
  3. Explicit time zones: conversion from instants to dates always takes a
     *time.Location, there is no hidden "local" zone

USAGE:
  march := generic.MonthPeriod(generic.NewDate(2025, time.March, 1))
  daily := generic.RoundMoney(monthly.Div(decimal.NewFromInt(26)))

SEE ALSO:
  - time.go: Date and Clock
  - period.go: Period arithmetic
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal helpers
// =============================================================================

// MoneyPlaces is the number of decimal places amounts are presented with.
const MoneyPlaces = 2

// RoundMoney rounds to MoneyPlaces, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(MoneyPlaces) }

// RoundWhole rounds to an integer amount, half away from zero.
func RoundWhole(d decimal.Decimal) decimal.Decimal { return d.Round(0) }

// Percent returns base * pct / 100 without rounding.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}

// FormatMoney renders an amount with exactly MoneyPlaces decimals.
func FormatMoney(d decimal.Decimal) string { return d.StringFixed(MoneyPlaces) }
