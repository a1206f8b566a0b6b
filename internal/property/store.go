package property

import "context"

// Store persists properties, units, meters and readings.
type Store interface {
	CreateProperty(ctx context.Context, p *Property) error
	GetProperty(ctx context.Context, id string) (*Property, error)
	UpdateProperty(ctx context.Context, p *Property) error
	ListProperties(ctx context.Context, orgID string) ([]*Property, error)
	CountProperties(ctx context.Context, orgID string) (int, error)

	CreateUnit(ctx context.Context, u *Unit) error
	GetUnit(ctx context.Context, id string) (*Unit, error)
	UpdateUnit(ctx context.Context, u *Unit) error
	ListUnits(ctx context.Context, propertyID string) ([]*Unit, error)
	CountUnits(ctx context.Context, orgID string) (int, error)

	CreateMeter(ctx context.Context, m *UnitMeter) error
	GetMeter(ctx context.Context, id string) (*UnitMeter, error)
	UpdateMeter(ctx context.Context, m *UnitMeter) error
	// SupersedeMeter persists the old meter's expiry and the replacement's
	// installation as one atomic unit: either both land or neither does.
	SupersedeMeter(ctx context.Context, old, replacement *UnitMeter) error
	ListMeters(ctx context.Context, unitID string) ([]*UnitMeter, error)

	CreateReading(ctx context.Context, r *MeterReading) error
	GetReading(ctx context.Context, id string) (*MeterReading, error)
	UpdateReading(ctx context.Context, r *MeterReading) error
	// ListReadings returns readings for a meter, newest first.
	ListReadings(ctx context.Context, meterID string) ([]*MeterReading, error)
}
