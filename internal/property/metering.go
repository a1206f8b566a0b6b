package property

import (
	"fmt"
	"sort"
	"time"

	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/validation"
)

// defaultTariffs is the per-type fallback, in cents per consumption unit,
// used when a meter's own tariff is zero. Unknown types fall back to zero
// and therefore never produce a billable amount.
var defaultTariffs = map[MeterType]money.Cents{
	MeterWaterCold:   120,
	MeterWaterHot:    450,
	MeterGas:         65,
	MeterElectricity: 15,
	MeterHeating:     6000,
}

// EffectiveTariff returns the meter's tariff, substituting the per-type
// default when the configured tariff is exactly zero.
func EffectiveTariff(m *UnitMeter) money.Cents {
	if m.Tariff != 0 {
		return m.Tariff
	}
	return defaultTariffs[m.Type]
}

// sortReadingsDesc orders readings newest-first, ties broken by submission
// time so the latest correction wins.
func sortReadingsDesc(readings []*MeterReading) []*MeterReading {
	sorted := make([]*MeterReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

// ConsumptionRow pairs a reading with the consumption derived against the
// next-older reading. The oldest reading in a window has no consumption.
type ConsumptionRow struct {
	Reading     *MeterReading `json:"reading"`
	Consumption *int64        `json:"consumption,omitempty"`
}

// History returns readings newest-first with per-pair consumption for
// display. Negative deltas are clamped to zero here; billing uses the raw
// delta instead (see Billable).
func History(readings []*MeterReading) []ConsumptionRow {
	sorted := sortReadingsDesc(readings)
	rows := make([]ConsumptionRow, len(sorted))
	for i, r := range sorted {
		rows[i] = ConsumptionRow{Reading: r}
		if i+1 < len(sorted) {
			delta := r.Value - sorted[i+1].Value
			if delta < 0 {
				delta = 0
			}
			rows[i].Consumption = &delta
		}
	}
	return rows
}

// Billable returns the raw consumption between the two newest readings and
// whether the meter qualifies for an invoice line: at least two readings
// must exist and the unclamped delta must be strictly positive.
func Billable(readings []*MeterReading) (int64, bool) {
	sorted := sortReadingsDesc(readings)
	if len(sorted) < 2 {
		return 0, false
	}
	delta := sorted[0].Value - sorted[1].Value
	return delta, delta > 0
}

// UtilityAmount converts a consumption figure (in hundredths) to cents
// using the meter's effective tariff.
func UtilityAmount(m *UnitMeter, consumption int64) money.Cents {
	return money.MulQty(EffectiveTariff(m), money.Cents(consumption))
}

// ValidateReading enforces monotonic counter semantics for a new reading
// against the meter's existing history: the value must not exceed the
// nearest later-dated reading and must not be below the nearest
// earlier-dated reading. Violations are field errors, never stored.
func ValidateReading(history []*MeterReading, value int64, date time.Time) validation.FieldErrors {
	var errs validation.FieldErrors

	var nearestNewer, nearestOlder *MeterReading
	for _, r := range history {
		if r.Date.After(date) {
			if nearestNewer == nil || r.Date.Before(nearestNewer.Date) {
				nearestNewer = r
			}
		}
		if r.Date.Before(date) {
			if nearestOlder == nil || r.Date.After(nearestOlder.Date) {
				nearestOlder = r
			}
		}
	}

	if nearestNewer != nil && value > nearestNewer.Value {
		errs.Add("reading", fmt.Sprintf(
			"must not exceed the later reading %s dated %s",
			fmtReading(nearestNewer.Value), nearestNewer.Date.Format(validation.DateFormat)))
	}
	if nearestOlder != nil && value < nearestOlder.Value {
		errs.Add("reading", fmt.Sprintf(
			"must not be below the earlier reading %s dated %s",
			fmtReading(nearestOlder.Value), nearestOlder.Date.Format(validation.DateFormat)))
	}
	return errs
}

func fmtReading(v int64) string {
	return money.Cents(v).String()
}
