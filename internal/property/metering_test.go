package property

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/money"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func reading(value int64, date string) *MeterReading {
	return &MeterReading{Value: value, Date: day(date)}
}

func TestEffectiveTariff(t *testing.T) {
	// A configured tariff wins.
	m := &UnitMeter{Type: MeterWaterCold, Tariff: money.MustParse("2.00")}
	assert.Equal(t, money.Cents(200), EffectiveTariff(m))

	// Zero tariff falls back to the per-type default.
	cases := map[MeterType]money.Cents{
		MeterWaterCold:   120,
		MeterWaterHot:    450,
		MeterGas:         65,
		MeterElectricity: 15,
		MeterHeating:     6000,
		MeterType("x"):   0,
	}
	for typ, want := range cases {
		m := &UnitMeter{Type: typ}
		assert.Equal(t, want, EffectiveTariff(m), "type %s", typ)
	}
}

func TestHistory_ClampsNegative(t *testing.T) {
	rows := History([]*MeterReading{
		reading(10000, "2026-01-01"),
		reading(9000, "2026-02-01"), // counter replaced, went backwards
		reading(9500, "2026-03-01"),
	})

	require.Len(t, rows, 3)
	assert.Equal(t, int64(9500), rows[0].Reading.Value)
	assert.Equal(t, int64(500), *rows[0].Consumption)
	// The backwards step renders as zero, not negative.
	assert.Equal(t, int64(0), *rows[1].Consumption)
	// The oldest row has no consumption.
	assert.Nil(t, rows[2].Consumption)
}

func TestBillable(t *testing.T) {
	// Fewer than two readings: excluded.
	_, ok := Billable([]*MeterReading{reading(100, "2026-01-01")})
	assert.False(t, ok)

	// Positive raw delta between the two newest readings.
	delta, ok := Billable([]*MeterReading{
		reading(10000, "2026-01-01"),
		reading(15000, "2026-02-01"),
		reading(18000, "2026-03-01"),
	})
	require.True(t, ok)
	assert.Equal(t, int64(3000), delta)

	// Zero or negative raw delta: excluded, unclamped.
	_, ok = Billable([]*MeterReading{
		reading(15000, "2026-01-01"),
		reading(15000, "2026-02-01"),
	})
	assert.False(t, ok)
	_, ok = Billable([]*MeterReading{
		reading(15000, "2026-01-01"),
		reading(14000, "2026-02-01"),
	})
	assert.False(t, ok)
}

func TestUtilityAmount(t *testing.T) {
	// 30.00 units of cold water at the 1.20 default: 36.00.
	m := &UnitMeter{Type: MeterWaterCold}
	assert.Equal(t, money.MustParse("36.00"), UtilityAmount(m, 3000))

	// Heating default 60.00 per unit.
	h := &UnitMeter{Type: MeterHeating}
	assert.Equal(t, money.MustParse("90.00"), UtilityAmount(h, 150))
}

func TestFmtReading(t *testing.T) {
	assert.Equal(t, "1.50", fmtReading(150))
	assert.Equal(t, "0.05", fmtReading(5))
	assert.Equal(t, "-1.50", fmtReading(-150))
}

func TestValidateReading_MonotonicWindow(t *testing.T) {
	// Values 100, 150, 180 on ascending dates.
	history := []*MeterReading{
		reading(10000, "2026-01-10"),
		reading(15000, "2026-02-10"),
		reading(18000, "2026-03-10"),
	}

	// A reading dated between the first two may not exceed the later one.
	errs := ValidateReading(history, 20000, day("2026-01-20"))
	require.Len(t, errs, 1)
	assert.Equal(t, "reading", errs[0].Field)

	// The same date with a value inside the window is accepted.
	errs = ValidateReading(history, 12000, day("2026-01-20"))
	assert.Empty(t, errs)

	// Below the nearest earlier reading is rejected.
	errs = ValidateReading(history, 9000, day("2026-01-20"))
	require.Len(t, errs, 1)

	// A new newest reading only has to respect the previous maximum.
	errs = ValidateReading(history, 18000, day("2026-04-10"))
	assert.Empty(t, errs)
	errs = ValidateReading(history, 17000, day("2026-04-10"))
	require.Len(t, errs, 1)

	// First reading on an empty meter is always fine.
	assert.Empty(t, ValidateReading(nil, 5, day("2026-01-01")))
}
