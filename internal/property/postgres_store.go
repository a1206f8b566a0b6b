package property

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/kalvisk/namura/internal/money"
)

// PostgresStore persists property data in PostgreSQL. Uniqueness
// invariants (org+address, property+unit number, one active meter per
// unit+type) are backed by unique indexes; constraint violations map to
// the package sentinels.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed property store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func uniqueViolation(err error, name string, sentinel error) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == name {
		return sentinel
	}
	return err
}

const propertyColumns = `id, org_id, address, cadastral_number, total_area, building_type,
		floor_count, year_built, manager_id,
		has_building_water_meter, has_building_gas_meter,
		has_building_electricity_meter, has_building_heating_meter,
		created_at, updated_at`

func (p *PostgresStore) CreateProperty(ctx context.Context, prop *Property) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO properties (`+propertyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		prop.ID, prop.OrgID, prop.Address, prop.CadastralNumber, prop.TotalArea,
		string(prop.BuildingType), prop.FloorCount, prop.YearBuilt, nullString(prop.ManagerID),
		prop.HasBuildingWaterMeter, prop.HasBuildingGasMeter,
		prop.HasBuildingElectricityMeter, prop.HasBuildingHeatingMeter,
		prop.CreatedAt, prop.UpdatedAt,
	)
	if err != nil {
		return uniqueViolation(err, "properties_org_address_key", ErrAddressTaken)
	}
	return nil
}

func (p *PostgresStore) GetProperty(ctx context.Context, id string) (*Property, error) {
	return scanProperty(p.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateProperty(ctx context.Context, prop *Property) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE properties SET
			address = $1, cadastral_number = $2, total_area = $3, building_type = $4,
			floor_count = $5, year_built = $6, manager_id = $7,
			has_building_water_meter = $8, has_building_gas_meter = $9,
			has_building_electricity_meter = $10, has_building_heating_meter = $11,
			updated_at = $12
		WHERE id = $13`,
		prop.Address, prop.CadastralNumber, prop.TotalArea, string(prop.BuildingType),
		prop.FloorCount, prop.YearBuilt, nullString(prop.ManagerID),
		prop.HasBuildingWaterMeter, prop.HasBuildingGasMeter,
		prop.HasBuildingElectricityMeter, prop.HasBuildingHeatingMeter,
		prop.UpdatedAt, prop.ID,
	)
	if err != nil {
		return uniqueViolation(err, "properties_org_address_key", ErrAddressTaken)
	}
	return affected(result, ErrPropertyNotFound)
}

func (p *PostgresStore) ListProperties(ctx context.Context, orgID string) ([]*Property, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+propertyColumns+` FROM properties
		WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Property
	for rows.Next() {
		prop, err := scanPropertyRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, prop)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountProperties(ctx context.Context, orgID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM properties WHERE org_id = $1`, orgID).Scan(&count)
	return count, err
}

func scanProperty(row *sql.Row) (*Property, error) {
	var prop Property
	var buildingType string
	var manager sql.NullString
	err := row.Scan(&prop.ID, &prop.OrgID, &prop.Address, &prop.CadastralNumber, &prop.TotalArea,
		&buildingType, &prop.FloorCount, &prop.YearBuilt, &manager,
		&prop.HasBuildingWaterMeter, &prop.HasBuildingGasMeter,
		&prop.HasBuildingElectricityMeter, &prop.HasBuildingHeatingMeter,
		&prop.CreatedAt, &prop.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, err
	}
	prop.BuildingType = BuildingType(buildingType)
	prop.ManagerID = manager.String
	return &prop, nil
}

func scanPropertyRows(rows *sql.Rows) (*Property, error) {
	var prop Property
	var buildingType string
	var manager sql.NullString
	err := rows.Scan(&prop.ID, &prop.OrgID, &prop.Address, &prop.CadastralNumber, &prop.TotalArea,
		&buildingType, &prop.FloorCount, &prop.YearBuilt, &manager,
		&prop.HasBuildingWaterMeter, &prop.HasBuildingGasMeter,
		&prop.HasBuildingElectricityMeter, &prop.HasBuildingHeatingMeter,
		&prop.CreatedAt, &prop.UpdatedAt)
	if err != nil {
		return nil, err
	}
	prop.BuildingType = BuildingType(buildingType)
	prop.ManagerID = manager.String
	return &prop, nil
}

const unitColumns = `id, property_id, org_id, unit_number, floor, area, rooms, unit_type, status,
		has_water_meter, has_gas_meter, has_electricity_meter, has_heating_meter,
		bathroom_count, has_balcony, has_storage, parking_spots, notes,
		created_at, updated_at`

func (p *PostgresStore) CreateUnit(ctx context.Context, u *Unit) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO units (`+unitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		u.ID, u.PropertyID, u.OrgID, u.UnitNumber, u.Floor, u.Area, u.Rooms,
		string(u.UnitType), string(u.Status),
		u.HasWaterMeter, u.HasGasMeter, u.HasElectricityMeter, u.HasHeatingMeter,
		u.BathroomCount, u.HasBalcony, u.HasStorage, u.ParkingSpots, u.Notes,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return uniqueViolation(err, "units_property_number_key", ErrUnitNumberTaken)
	}
	return nil
}

func (p *PostgresStore) GetUnit(ctx context.Context, id string) (*Unit, error) {
	u, err := scanUnit(p.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1`, id))
	return u, err
}

func (p *PostgresStore) UpdateUnit(ctx context.Context, u *Unit) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE units SET
			unit_number = $1, floor = $2, area = $3, rooms = $4, unit_type = $5, status = $6,
			has_water_meter = $7, has_gas_meter = $8, has_electricity_meter = $9,
			has_heating_meter = $10, bathroom_count = $11, has_balcony = $12,
			has_storage = $13, parking_spots = $14, notes = $15, updated_at = $16
		WHERE id = $17`,
		u.UnitNumber, u.Floor, u.Area, u.Rooms, string(u.UnitType), string(u.Status),
		u.HasWaterMeter, u.HasGasMeter, u.HasElectricityMeter, u.HasHeatingMeter,
		u.BathroomCount, u.HasBalcony, u.HasStorage, u.ParkingSpots, u.Notes,
		u.UpdatedAt, u.ID,
	)
	if err != nil {
		return uniqueViolation(err, "units_property_number_key", ErrUnitNumberTaken)
	}
	return affected(result, ErrUnitNotFound)
}

func (p *PostgresStore) ListUnits(ctx context.Context, propertyID string) ([]*Unit, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+unitColumns+` FROM units
		WHERE property_id = $1 ORDER BY unit_number`, propertyID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Unit
	for rows.Next() {
		u, err := scanUnitRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountUnits(ctx context.Context, orgID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM units WHERE org_id = $1`, orgID).Scan(&count)
	return count, err
}

func scanUnit(row *sql.Row) (*Unit, error) {
	var u Unit
	var unitType, status string
	err := row.Scan(&u.ID, &u.PropertyID, &u.OrgID, &u.UnitNumber, &u.Floor, &u.Area, &u.Rooms,
		&unitType, &status,
		&u.HasWaterMeter, &u.HasGasMeter, &u.HasElectricityMeter, &u.HasHeatingMeter,
		&u.BathroomCount, &u.HasBalcony, &u.HasStorage, &u.ParkingSpots, &u.Notes,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, err
	}
	u.UnitType = UnitType(unitType)
	u.Status = UnitStatus(status)
	return &u, nil
}

func scanUnitRows(rows *sql.Rows) (*Unit, error) {
	var u Unit
	var unitType, status string
	err := rows.Scan(&u.ID, &u.PropertyID, &u.OrgID, &u.UnitNumber, &u.Floor, &u.Area, &u.Rooms,
		&unitType, &status,
		&u.HasWaterMeter, &u.HasGasMeter, &u.HasElectricityMeter, &u.HasHeatingMeter,
		&u.BathroomCount, &u.HasBalcony, &u.HasStorage, &u.ParkingSpots, &u.Notes,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.UnitType = UnitType(unitType)
	u.Status = UnitStatus(status)
	return &u, nil
}

const meterColumns = `id, unit_id, org_id, meter_type, meter_number, status, expire_date,
		tariff, notes, created_at, updated_at`

func (p *PostgresStore) CreateMeter(ctx context.Context, m *UnitMeter) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO unit_meters (`+meterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.UnitID, m.OrgID, string(m.Type), m.Number, string(m.Status),
		nullTime(m.ExpireDate), int64(m.Tariff), m.Notes, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return uniqueViolation(err, "unit_meters_one_active_key", ErrActiveMeterExists)
	}
	return nil
}

func (p *PostgresStore) GetMeter(ctx context.Context, id string) (*UnitMeter, error) {
	return scanMeter(p.db.QueryRowContext(ctx,
		`SELECT `+meterColumns+` FROM unit_meters WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateMeter(ctx context.Context, m *UnitMeter) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE unit_meters SET
			meter_number = $1, status = $2, expire_date = $3, tariff = $4,
			notes = $5, updated_at = $6
		WHERE id = $7`,
		m.Number, string(m.Status), nullTime(m.ExpireDate), int64(m.Tariff),
		m.Notes, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return uniqueViolation(err, "unit_meters_one_active_key", ErrActiveMeterExists)
	}
	return affected(result, ErrMeterNotFound)
}

func (p *PostgresStore) SupersedeMeter(ctx context.Context, old, replacement *UnitMeter) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE unit_meters SET status = $1, updated_at = $2 WHERE id = $3`,
			string(old.Status), old.UpdatedAt, old.ID,
		)
		if err != nil {
			return err
		}
		if err := affected(result, ErrMeterNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO unit_meters (`+meterColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			replacement.ID, replacement.UnitID, replacement.OrgID, string(replacement.Type),
			replacement.Number, string(replacement.Status), nullTime(replacement.ExpireDate),
			int64(replacement.Tariff), replacement.Notes, replacement.CreatedAt, replacement.UpdatedAt,
		)
		if err != nil {
			return uniqueViolation(err, "unit_meters_one_active_key", ErrActiveMeterExists)
		}
		return nil
	})
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ListMeters(ctx context.Context, unitID string) ([]*UnitMeter, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+meterColumns+` FROM unit_meters
		WHERE unit_id = $1 ORDER BY created_at`, unitID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*UnitMeter
	for rows.Next() {
		var m UnitMeter
		var meterType, status string
		var expire sql.NullTime
		var tariff int64
		if err := rows.Scan(&m.ID, &m.UnitID, &m.OrgID, &meterType, &m.Number, &status,
			&expire, &tariff, &m.Notes, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Type = MeterType(meterType)
		m.Status = MeterStatus(status)
		m.Tariff = money.Cents(tariff)
		if expire.Valid {
			m.ExpireDate = &expire.Time
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

func scanMeter(row *sql.Row) (*UnitMeter, error) {
	var m UnitMeter
	var meterType, status string
	var expire sql.NullTime
	var tariff int64
	err := row.Scan(&m.ID, &m.UnitID, &m.OrgID, &meterType, &m.Number, &status,
		&expire, &tariff, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMeterNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Type = MeterType(meterType)
	m.Status = MeterStatus(status)
	m.Tariff = money.Cents(tariff)
	if expire.Valid {
		m.ExpireDate = &expire.Time
	}
	return &m, nil
}

const readingColumns = `id, meter_id, org_id, value, reading_date, submitted_by,
		is_verified, verified_by, verified_at, notes, created_at`

func (p *PostgresStore) CreateReading(ctx context.Context, r *MeterReading) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO meter_readings (`+readingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.MeterID, r.OrgID, r.Value, r.Date, nullString(r.SubmittedBy),
		r.Verified, nullString(r.VerifiedBy), nullTime(r.VerifiedAt), r.Notes, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetReading(ctx context.Context, id string) (*MeterReading, error) {
	return scanReading(p.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM meter_readings WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateReading(ctx context.Context, r *MeterReading) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE meter_readings SET
			is_verified = $1, verified_by = $2, verified_at = $3, notes = $4
		WHERE id = $5`,
		r.Verified, nullString(r.VerifiedBy), nullTime(r.VerifiedAt), r.Notes, r.ID,
	)
	if err != nil {
		return err
	}
	return affected(result, ErrReadingNotFound)
}

func (p *PostgresStore) ListReadings(ctx context.Context, meterID string) ([]*MeterReading, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM meter_readings
		WHERE meter_id = $1 ORDER BY reading_date DESC, created_at DESC`, meterID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*MeterReading
	for rows.Next() {
		var r MeterReading
		var submitted, verifiedBy sql.NullString
		var verifiedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.MeterID, &r.OrgID, &r.Value, &r.Date, &submitted,
			&r.Verified, &verifiedBy, &verifiedAt, &r.Notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.SubmittedBy = submitted.String
		r.VerifiedBy = verifiedBy.String
		if verifiedAt.Valid {
			r.VerifiedAt = &verifiedAt.Time
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func scanReading(row *sql.Row) (*MeterReading, error) {
	var r MeterReading
	var submitted, verifiedBy sql.NullString
	var verifiedAt sql.NullTime
	err := row.Scan(&r.ID, &r.MeterID, &r.OrgID, &r.Value, &r.Date, &submitted,
		&r.Verified, &verifiedBy, &verifiedAt, &r.Notes, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, err
	}
	r.SubmittedBy = submitted.String
	r.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		r.VerifiedAt = &verifiedAt.Time
	}
	return &r, nil
}

func affected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
