package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/kalvisk/namura/internal/lease"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/property"
)

// monthFormat is the wire format for an invoicing month.
const monthFormat = "2006-01"

// CandidateLine is a proposed invoice line. The caller picks candidates
// by index; only picked lines become items.
type CandidateLine struct {
	Description string      `json:"description"`
	Quantity    money.Cents `json:"quantity"`
	UnitPrice   money.Cents `json:"unitPrice"`
	Type        ItemType    `json:"type"`
}

var meterLabels = map[property.MeterType]string{
	property.MeterWaterCold:   "Cold water",
	property.MeterWaterHot:    "Hot water",
	property.MeterGas:         "Gas",
	property.MeterElectricity: "Electricity",
	property.MeterHeating:     "Heating",
}

func meterLabel(t property.MeterType) string {
	if l, ok := meterLabels[t]; ok {
		return l
	}
	return string(t)
}

// Assemble builds the candidate lines for a lease and a month window
// [from, to): one rent line, one line per active meter with positive raw
// consumption between its two newest readings, and one line per completed
// repair with positive cost finished inside the window.
func (s *Service) Assemble(ctx context.Context, l *lease.Lease, from, to time.Time) ([]CandidateLine, error) {
	lines := []CandidateLine{{
		Description: fmt.Sprintf("Rent for %s", from.Format(monthFormat)),
		Quantity:    100,
		UnitPrice:   l.RentAmount,
		Type:        ItemRent,
	}}

	meters, err := s.meters.ListMeters(ctx, l.OrgID, l.UnitID)
	if err != nil {
		return nil, err
	}
	for _, m := range meters {
		if m.Status != property.MeterActive {
			continue
		}
		rows, err := s.meters.ReadingHistory(ctx, l.OrgID, m.ID)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			continue
		}
		newest, prev := rows[0].Reading, rows[1].Reading
		consumption := newest.Value - prev.Value
		if consumption <= 0 {
			continue
		}
		lines = append(lines, CandidateLine{
			Description: fmt.Sprintf("%s consumption %s units (%s - %s)",
				meterLabel(m.Type), money.Cents(consumption),
				prev.Date.Format("2006-01-02"), newest.Date.Format("2006-01-02")),
			Quantity:  money.Cents(consumption),
			UnitPrice: property.EffectiveTariff(m),
			Type:      ItemUtility,
		})
	}

	work, err := s.work.CompletedForUnit(ctx, l.UnitID, from, to)
	if err != nil {
		return nil, err
	}
	for _, w := range work {
		lines = append(lines, CandidateLine{
			Description: fmt.Sprintf("Repair work: %s (%s)", w.Description, w.CompletedDate.Format("2006-01-02")),
			Quantity:    100,
			UnitPrice:   w.Cost,
			Type:        ItemMaintenance,
		})
	}
	return lines, nil
}
