package regimen

import (
	"math"
	"sort"
	"time"
)

// NextDoseTime returns the earliest slot strictly after now's
// time-of-day. When no slot remains today it wraps to the earliest
// slot, read as "tomorrow". Assumes the validated ascending slot order.
func NextDoseTime(r *Regimen, now time.Time) TimeSlot {
	current := SlotOf(now)
	for _, s := range r.TimeSlots {
		if s > current {
			return s
		}
	}
	return r.TimeSlots[0]
}

// IsSlotTaken reports whether the ledger confirms slot taken on date.
func IsSlotTaken(r *Regimen, date Date, slot TimeSlot) bool {
	for _, s := range r.DoseLedger[date] {
		if s == slot {
			return true
		}
	}
	return false
}

// DayProgress is the fraction of the day's slots confirmed taken,
// zero when the date has no ledger entry.
func DayProgress(r *Regimen, date Date) float64 {
	if len(r.TimeSlots) == 0 {
		return 0
	}
	return float64(len(r.DoseLedger[date])) / float64(len(r.TimeSlots))
}

// OverallProgress is the rounded percentage of regimen days with at
// least one dose taken. A day with one of three doses taken counts as
// an adherent day for this metric.
func OverallProgress(r *Regimen) int {
	if r.DurationDays == 0 {
		return 0
	}
	days := 0
	for _, slots := range r.DoseLedger {
		if len(slots) > 0 {
			days++
		}
	}
	return int(math.Round(100 * float64(days) / float64(r.DurationDays)))
}

// IsFullyTakenToday reports whether every scheduled slot appears in
// today's ledger entry.
func IsFullyTakenToday(r *Regimen, today Date) bool {
	for _, slot := range r.TimeSlots {
		if !IsSlotTaken(r, today, slot) {
			return false
		}
	}
	return true
}

// SortByNextDose orders regimens by their upcoming slot, soonest
// first, matching the today-view ordering of the mobile app.
func SortByNextDose(rs []*Regimen, now time.Time) {
	sort.SliceStable(rs, func(i, j int) bool {
		return NextDoseTime(rs[i], now) < NextDoseTime(rs[j], now)
	})
}
