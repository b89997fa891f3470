package regimen

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medtrack/medtrack/internal/errors"
)

func testRegimen(t *testing.T) *Regimen {
	t.Helper()
	r, err := New("Lisinopril", "10mg", []TimeSlot{"08:00", "14:00", "20:00"}, "2025-03-01", "2025-03-10")
	require.NoError(t, err)
	return r
}

func TestNew_SortsSlots(t *testing.T) {
	r, err := New("Metformin", "500mg", []TimeSlot{"20:00", "08:00"}, "2025-03-01", "2025-03-05")
	require.NoError(t, err)

	assert.Equal(t, []TimeSlot{"08:00", "20:00"}, r.TimeSlots)
	assert.Equal(t, 5, r.DurationDays)
}

func TestNew_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		slots []TimeSlot
		start Date
		end   Date
	}{
		{"empty slots", nil, "2025-03-01", "2025-03-05"},
		{"duplicate slots", []TimeSlot{"08:00", "08:00"}, "2025-03-01", "2025-03-05"},
		{"malformed slot", []TimeSlot{"8am"}, "2025-03-01", "2025-03-05"},
		{"inverted dates", []TimeSlot{"08:00"}, "2025-03-05", "2025-03-01"},
		{"malformed date", []TimeSlot{"08:00"}, "march 1", "2025-03-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("x", "1mg", tt.slots, tt.start, tt.end)
			assert.Error(t, err)
			assert.True(t, apperrors.IsAppError(err))
		})
	}
}

func TestValidate_DurationMismatch(t *testing.T) {
	r := testRegimen(t)
	r.DurationDays = 99

	err := r.Validate()
	assert.ErrorIs(t, err, apperrors.ErrDurationMismatch)
}

func TestValidate_LedgerInvariants(t *testing.T) {
	r := testRegimen(t)

	r.DoseLedger["2025-04-01"] = []TimeSlot{"08:00"}
	assert.Error(t, r.Validate(), "ledger date outside range must be rejected")

	r.DoseLedger = map[Date][]TimeSlot{"2025-03-02": {"09:30"}}
	assert.Error(t, r.Validate(), "ledger slot outside schedule must be rejected")

	r.DoseLedger = map[Date][]TimeSlot{"2025-03-02": {"08:00", "08:00"}}
	assert.Error(t, r.Validate(), "duplicate ledger slot must be rejected")

	r.DoseLedger = map[Date][]TimeSlot{"2025-03-02": {"08:00", "20:00"}}
	assert.NoError(t, r.Validate())
}

func TestApplyDose_Idempotent(t *testing.T) {
	r := testRegimen(t)
	ev := DoseEvent{RegimenID: r.ID, Date: "2025-03-02", Slot: "14:00"}

	require.NoError(t, r.ApplyDose(ev))
	require.NoError(t, r.ApplyDose(ev))

	assert.Equal(t, []TimeSlot{"14:00"}, r.DoseLedger["2025-03-02"])
}

func TestApplyDose_Rejections(t *testing.T) {
	r := testRegimen(t)

	err := r.ApplyDose(DoseEvent{Date: "2025-03-11", Slot: "08:00"})
	assert.ErrorIs(t, err, apperrors.ErrDateOutOfRange)

	err = r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "09:00"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownTimeSlot)

	assert.Empty(t, r.DoseLedger)
}

func TestActiveOn(t *testing.T) {
	r := testRegimen(t)

	assert.True(t, r.ActiveOn("2025-03-01"))
	assert.True(t, r.ActiveOn("2025-03-10"))
	assert.False(t, r.ActiveOn("2025-02-28"))
	assert.False(t, r.ActiveOn("2025-03-11"))
}

func TestNextDoseTime(t *testing.T) {
	r := testRegimen(t)

	at := func(hour, min int) time.Time {
		return time.Date(2025, 3, 2, hour, min, 0, 0, time.UTC)
	}

	assert.Equal(t, TimeSlot("14:00"), NextDoseTime(r, at(9, 0)))
	assert.Equal(t, TimeSlot("08:00"), NextDoseTime(r, at(21, 0)), "past last slot wraps to tomorrow")
	assert.Equal(t, TimeSlot("20:00"), NextDoseTime(r, at(14, 0)), "exact slot time is not strictly greater")
	assert.Equal(t, TimeSlot("08:00"), NextDoseTime(r, at(0, 0)))
}

func TestDayProgress(t *testing.T) {
	r := testRegimen(t)

	assert.Zero(t, DayProgress(r, "2025-03-02"))

	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "08:00"}))
	assert.InDelta(t, 1.0/3.0, DayProgress(r, "2025-03-02"), 1e-9)
}

func TestOverallProgress_CountsDaysNotDoses(t *testing.T) {
	r := testRegimen(t)

	// Three distinct dates, uneven dose counts per date.
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-01", Slot: "08:00"}))
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "08:00"}))
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "14:00"}))
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "20:00"}))
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-03", Slot: "20:00"}))

	assert.Equal(t, 30, OverallProgress(r))
}

func TestIsFullyTakenToday(t *testing.T) {
	r, err := New("Amoxicillin", "250mg", []TimeSlot{"08:00", "20:00"}, "2025-03-01", "2025-03-10")
	require.NoError(t, err)

	today := Date("2025-03-02")
	require.NoError(t, r.ApplyDose(DoseEvent{Date: today, Slot: "08:00"}))
	assert.False(t, IsFullyTakenToday(r, today))

	require.NoError(t, r.ApplyDose(DoseEvent{Date: today, Slot: "20:00"}))
	assert.True(t, IsFullyTakenToday(r, today))
}

func TestSortByNextDose(t *testing.T) {
	morning, err := New("a", "1mg", []TimeSlot{"07:00"}, "2025-03-01", "2025-03-10")
	require.NoError(t, err)
	evening, err := New("b", "1mg", []TimeSlot{"19:00"}, "2025-03-01", "2025-03-10")
	require.NoError(t, err)

	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	rs := []*Regimen{morning, evening}
	SortByNextDose(rs, now)

	// At noon only the evening dose remains today; the morning regimen
	// wraps to tomorrow and sorts ahead by slot string.
	assert.Equal(t, "a", rs[0].Name)
	assert.Equal(t, "b", rs[1].Name)
}

func TestJSONWireShape(t *testing.T) {
	r := testRegimen(t)
	r.ID = "med_1"
	require.NoError(t, r.ApplyDose(DoseEvent{Date: "2025-03-02", Slot: "08:00"}))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "med_1",
		"name": "Lisinopril",
		"dose": "10mg",
		"times": ["08:00", "14:00", "20:00"],
		"startDate": "2025-03-01",
		"endDate": "2025-03-10",
		"duration": 10,
		"takenDates": [{"date": "2025-03-02", "times": ["08:00"]}]
	}`, string(data))

	var back Regimen
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.DoseLedger, back.DoseLedger)
}

func TestUnmarshalRejectsInvalidWire(t *testing.T) {
	payload := `{
		"id": "med_2",
		"name": "x",
		"dose": "1mg",
		"times": ["08:00"],
		"startDate": "2025-03-01",
		"endDate": "2025-03-10",
		"duration": 10,
		"takenDates": [{"date": "2025-06-01", "times": ["08:00"]}]
	}`

	var r Regimen
	err := json.Unmarshal([]byte(payload), &r)
	assert.Error(t, err, "ledger date outside range must fail validation on decode")
}
