// Package regimen holds the medication regimen model and the pure
// adherence calculations derived from it. Nothing here performs I/O.
package regimen

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/medtrack/medtrack/internal/errors"
)

const (
	slotLayout = "15:04"
	dateLayout = "2006-01-02"
)

// TimeSlot is a time-of-day value in zero-padded 24h "HH:MM" form.
// Slots order correctly under plain string comparison.
type TimeSlot string

// Valid reports whether the slot parses as "HH:MM".
func (s TimeSlot) Valid() bool {
	_, err := time.Parse(slotLayout, string(s))
	return err == nil && len(s) == 5
}

// Date is a calendar date in "YYYY-MM-DD" form with no time component.
type Date string

// Valid reports whether the date parses as "YYYY-MM-DD".
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil && len(d) == 10
}

// Time returns the date at midnight UTC.
func (d Date) Time() (time.Time, error) {
	return time.Parse(dateLayout, string(d))
}

// DateOf truncates a wall-clock instant to its calendar date.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// SlotOf truncates a wall-clock instant to its time-of-day slot.
func SlotOf(t time.Time) TimeSlot {
	return TimeSlot(t.Format(slotLayout))
}

// DoseEvent is the unit of "taken" mutation. It is transient input,
// never stored as-is.
type DoseEvent struct {
	RegimenID string   `json:"regimenId"`
	Date      Date     `json:"date"`
	Slot      TimeSlot `json:"time"`
}

// Regimen is a medication dosing schedule plus its per-date ledger of
// confirmed doses. The backend assigns ID on creation and remains the
// source of truth for persistence.
type Regimen struct {
	ID           string
	Name         string
	Dose         string
	TimeSlots    []TimeSlot
	StartDate    Date
	EndDate      Date
	DurationDays int
	DoseLedger   map[Date][]TimeSlot
}

// dayRecord is the wire shape of one ledger entry: {date, times}.
type dayRecord struct {
	Date  Date       `json:"date"`
	Times []TimeSlot `json:"times"`
}

// regimenWire mirrors the backend JSON for a regimen.
type regimenWire struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Dose       string      `json:"dose"`
	Times      []TimeSlot  `json:"times"`
	StartDate  Date        `json:"startDate"`
	EndDate    Date        `json:"endDate"`
	Duration   int         `json:"duration"`
	TakenDates []dayRecord `json:"takenDates,omitempty"`
}

// New builds a validated regimen. ID is left empty until the backend
// assigns one. Slots are sorted ascending; duplicates are rejected.
func New(name, dose string, slots []TimeSlot, start, end Date) (*Regimen, error) {
	duration, err := spanDays(start, end)
	if err != nil {
		return nil, err
	}

	sorted := make([]TimeSlot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	r := &Regimen{
		Name:         name,
		Dose:         dose,
		TimeSlots:    sorted,
		StartDate:    start,
		EndDate:      end,
		DurationDays: duration,
		DoseLedger:   make(map[Date][]TimeSlot),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func spanDays(start, end Date) (int, error) {
	st, err := start.Time()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrValidation.Code, fmt.Sprintf("invalid start date %q", start))
	}
	et, err := end.Time()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrValidation.Code, fmt.Sprintf("invalid end date %q", end))
	}
	if et.Before(st) {
		return 0, errors.ErrInvertedDates
	}
	return int(et.Sub(st).Hours()/24) + 1, nil
}

// Validate re-checks every invariant: non-empty unique ascending slots,
// ordered date range, matching duration, and a ledger whose keys lie in
// range with values drawn from the slot set.
func (r *Regimen) Validate() error {
	if len(r.TimeSlots) == 0 {
		return errors.ErrEmptyTimeSlots
	}
	for i, s := range r.TimeSlots {
		if !s.Valid() {
			return errors.New(errors.ErrValidation.Code, fmt.Sprintf("invalid time slot %q", s))
		}
		if i > 0 && r.TimeSlots[i-1] >= s {
			return errors.New(errors.ErrValidation.Code, fmt.Sprintf("time slots not unique ascending at %q", s))
		}
	}

	duration, err := spanDays(r.StartDate, r.EndDate)
	if err != nil {
		return err
	}
	if r.DurationDays != duration {
		return errors.ErrDurationMismatch
	}

	for date, taken := range r.DoseLedger {
		if !r.withinRange(date) {
			return errors.New(errors.ErrDateOutOfRange.Code, fmt.Sprintf("ledger date %s outside regimen range", date))
		}
		seen := make(map[TimeSlot]bool, len(taken))
		for _, slot := range taken {
			if !r.hasSlot(slot) {
				return errors.New(errors.ErrUnknownTimeSlot.Code, fmt.Sprintf("ledger slot %s not in schedule", slot))
			}
			if seen[slot] {
				return errors.New(errors.ErrValidation.Code, fmt.Sprintf("duplicate ledger slot %s on %s", slot, date))
			}
			seen[slot] = true
		}
	}
	return nil
}

func (r *Regimen) withinRange(d Date) bool {
	return d >= r.StartDate && d <= r.EndDate
}

func (r *Regimen) hasSlot(slot TimeSlot) bool {
	for _, s := range r.TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// ActiveOn reports whether the regimen covers the given date.
func (r *Regimen) ActiveOn(d Date) bool {
	return r.withinRange(d)
}

// ApplyDose records a taken dose in the local ledger. Recording an
// already-present (date, slot) pair is a no-op. Out-of-range dates and
// unknown slots are rejected without touching the ledger.
func (r *Regimen) ApplyDose(ev DoseEvent) error {
	if !r.withinRange(ev.Date) {
		return errors.New(errors.ErrDateOutOfRange.Code, fmt.Sprintf("date %s outside regimen range", ev.Date))
	}
	if !r.hasSlot(ev.Slot) {
		return errors.New(errors.ErrUnknownTimeSlot.Code, fmt.Sprintf("time slot %s not in schedule", ev.Slot))
	}
	if r.DoseLedger == nil {
		r.DoseLedger = make(map[Date][]TimeSlot)
	}
	for _, s := range r.DoseLedger[ev.Date] {
		if s == ev.Slot {
			return nil
		}
	}
	r.DoseLedger[ev.Date] = append(r.DoseLedger[ev.Date], ev.Slot)
	sort.Slice(r.DoseLedger[ev.Date], func(i, j int) bool {
		return r.DoseLedger[ev.Date][i] < r.DoseLedger[ev.Date][j]
	})
	return nil
}

// Clone returns a deep copy so cached snapshots cannot be mutated by
// callers.
func (r *Regimen) Clone() *Regimen {
	c := *r
	c.TimeSlots = append([]TimeSlot(nil), r.TimeSlots...)
	c.DoseLedger = make(map[Date][]TimeSlot, len(r.DoseLedger))
	for d, slots := range r.DoseLedger {
		c.DoseLedger[d] = append([]TimeSlot(nil), slots...)
	}
	return &c
}

// MarshalJSON emits the backend wire shape, with ledger entries ordered
// by date for deterministic output.
func (r *Regimen) MarshalJSON() ([]byte, error) {
	w := regimenWire{
		ID:        r.ID,
		Name:      r.Name,
		Dose:      r.Dose,
		Times:     r.TimeSlots,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Duration:  r.DurationDays,
	}
	dates := make([]Date, 0, len(r.DoseLedger))
	for d := range r.DoseLedger {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	for _, d := range dates {
		w.TakenDates = append(w.TakenDates, dayRecord{Date: d, Times: r.DoseLedger[d]})
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the backend wire shape and validates the result.
func (r *Regimen) UnmarshalJSON(data []byte) error {
	var w regimenWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Name = w.Name
	r.Dose = w.Dose
	r.TimeSlots = w.Times
	r.StartDate = w.StartDate
	r.EndDate = w.EndDate
	r.DurationDays = w.Duration
	r.DoseLedger = make(map[Date][]TimeSlot, len(w.TakenDates))
	for _, rec := range w.TakenDates {
		r.DoseLedger[rec.Date] = rec.Times
	}
	return r.Validate()
}
