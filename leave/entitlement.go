/*
entitlement.go - Annual-leave entitlement calculation

PURPOSE:
  Computes a worker's annual-leave entitlement from their hire date under a
  graduated accrual scheme. The calculation is a pure function of its
  inputs (no clock reads, no store reads), so it is deterministic and
  trivially testable. Callers (the leave service) gather usage figures and
  pass them in.

ACCRUAL REGIMES:
  First service year (probation regime):
    One day per completed month of service, capped at 11 days. The accrual
    period is [hireDate, hireDate + 1 year).

  From the first anniversary (annual regime):
    15 days in the second service year, then +1 day for every additional
    two full years of service (15, 16, 16, 17, 17, ...), capped at 25.
    The period is the current service-anniversary year.

OVER-USE:
  Usage beyond entitlement is a business fact the system surfaces but does
  not block; RemainingDays is clamped at zero rather than reported
  negative.
*/
package leave

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sitewise/attendance-engine/core"
)

const (
	firstYearCapDays = 11
	annualBaseDays   = 15
	annualCapDays    = 25
)

// Entitlement computes the annual-leave snapshot for a worker as of a date.
//
// A nil hireDate yields a zero snapshot with an explanatory description,
// not an error: "no hire date" is a valid, displayable state. usedDays and
// pendingDays are the approved / pending entitlement-consuming day counts
// within the current accrual period, supplied by the caller.
func Entitlement(hireDate *core.Day, asOf core.Day, usedDays, pendingDays decimal.Decimal) core.EntitlementSnapshot {
	if hireDate == nil {
		return core.EntitlementSnapshot{
			TotalDays:     decimal.Zero,
			UsedDays:      usedDays,
			RemainingDays: decimal.Zero,
			PendingDays:   pendingDays,
			Description:   "no hire date on file; entitlement cannot be computed",
		}
	}

	hire := *hireDate
	if asOf.Before(hire) {
		return core.EntitlementSnapshot{
			TotalDays:     decimal.Zero,
			UsedDays:      usedDays,
			RemainingDays: decimal.Zero,
			PendingDays:   pendingDays,
			PeriodStart:   hire,
			PeriodEnd:     hire.AddYears(1),
			Description:   "employment has not started",
		}
	}

	months := core.MonthsBetween(hire, asOf)
	years := months / 12

	var total int
	var periodStart, periodEnd core.Day
	var description string

	if years < 1 {
		// Monthly accrual: one day per completed month, capped.
		total = months
		if total > firstYearCapDays {
			total = firstYearCapDays
		}
		periodStart, periodEnd = hire, hire.AddYears(1)
		description = fmt.Sprintf("monthly accrual (first year): %d completed month(s)", months)
	} else {
		total = annualBaseDays + years/2
		if total > annualCapDays {
			total = annualCapDays
		}
		periodStart, periodEnd = hire.AddYears(years), hire.AddYears(years+1)
		description = fmt.Sprintf("annual grant (service year %d)", years+1)
	}

	totalDays := decimal.NewFromInt(int64(total))
	remaining := totalDays.Sub(usedDays)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return core.EntitlementSnapshot{
		TotalDays:     totalDays,
		UsedDays:      usedDays,
		RemainingDays: remaining,
		PendingDays:   pendingDays,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd, // exclusive
		YearsWorked:   years,
		MonthsWorked:  months,
		Description:   description,
	}
}
