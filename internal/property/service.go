package property

import (
	"context"
	"time"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/logging"
	"github.com/kalvisk/namura/internal/metrics"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/validation"
)

// ResourceGate limits property and unit creation per subscription plan.
type ResourceGate interface {
	CanAddProperty(ctx context.Context, orgID string, propertyCount int) error
	CanAddUnit(ctx context.Context, orgID string, unitCount int) error
}

// Service manages properties, units, meters and readings.
type Service struct {
	store Store
	gate  ResourceGate
	now   func() time.Time
}

// NewService creates a property service.
func NewService(store Store, gate ResourceGate) *Service {
	return &Service{store: store, gate: gate, now: time.Now}
}

// PropertyRequest carries the fields for creating or updating a property.
type PropertyRequest struct {
	Address         string       `json:"address" binding:"required"`
	CadastralNumber string       `json:"cadastralNumber"`
	TotalArea       float64      `json:"totalArea"`
	BuildingType    BuildingType `json:"buildingType"`
	FloorCount      int          `json:"floorCount"`
	YearBuilt       int          `json:"yearBuilt"`
	ManagerID       string       `json:"managerId"`

	HasBuildingWaterMeter       bool `json:"hasBuildingWaterMeter"`
	HasBuildingGasMeter         bool `json:"hasBuildingGasMeter"`
	HasBuildingElectricityMeter bool `json:"hasBuildingElectricityMeter"`
	HasBuildingHeatingMeter     bool `json:"hasBuildingHeatingMeter"`
}

// CreateProperty registers a new building, subject to the subscription gate.
func (s *Service) CreateProperty(ctx context.Context, orgID string, req PropertyRequest) (*Property, error) {
	count, err := s.store.CountProperties(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanAddProperty(ctx, orgID, count); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Property{
		ID:              idgen.WithPrefix("prop_"),
		OrgID:           orgID,
		Address:         validation.SanitizeString(req.Address, 255),
		CadastralNumber: validation.SanitizeString(req.CadastralNumber, 100),
		TotalArea:       req.TotalArea,
		BuildingType:    req.BuildingType,
		FloorCount:      req.FloorCount,
		YearBuilt:       req.YearBuilt,
		ManagerID:       req.ManagerID,

		HasBuildingWaterMeter:       req.HasBuildingWaterMeter,
		HasBuildingGasMeter:         req.HasBuildingGasMeter,
		HasBuildingElectricityMeter: req.HasBuildingElectricityMeter,
		HasBuildingHeatingMeter:     req.HasBuildingHeatingMeter,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProperty(ctx, p); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("property created", "property_id", p.ID, "org_id", orgID)
	return p, nil
}

// UpdateProperty edits a building's attributes.
func (s *Service) UpdateProperty(ctx context.Context, orgID, id string, req PropertyRequest) (*Property, error) {
	p, err := s.getOrgProperty(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	p.Address = validation.SanitizeString(req.Address, 255)
	p.CadastralNumber = validation.SanitizeString(req.CadastralNumber, 100)
	p.TotalArea = req.TotalArea
	p.BuildingType = req.BuildingType
	p.FloorCount = req.FloorCount
	p.YearBuilt = req.YearBuilt
	p.ManagerID = req.ManagerID
	p.HasBuildingWaterMeter = req.HasBuildingWaterMeter
	p.HasBuildingGasMeter = req.HasBuildingGasMeter
	p.HasBuildingElectricityMeter = req.HasBuildingElectricityMeter
	p.HasBuildingHeatingMeter = req.HasBuildingHeatingMeter
	p.UpdatedAt = s.now()

	if err := s.store.UpdateProperty(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProperty loads a property scoped to the organization.
func (s *Service) GetProperty(ctx context.Context, orgID, id string) (*Property, error) {
	return s.getOrgProperty(ctx, orgID, id)
}

func (s *Service) getOrgProperty(ctx context.Context, orgID, id string) (*Property, error) {
	p, err := s.store.GetProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OrgID != orgID {
		return nil, ErrPropertyNotFound
	}
	return p, nil
}

// UnitRequest carries the fields for creating or updating a unit.
type UnitRequest struct {
	UnitNumber string   `json:"unitNumber" binding:"required"`
	Floor      int      `json:"floor"`
	Area       float64  `json:"area"`
	Rooms      int      `json:"rooms"`
	UnitType   UnitType `json:"unitType"`

	HasWaterMeter       bool `json:"hasWaterMeter"`
	HasGasMeter         bool `json:"hasGasMeter"`
	HasElectricityMeter bool `json:"hasElectricityMeter"`
	HasHeatingMeter     bool `json:"hasHeatingMeter"`

	BathroomCount int    `json:"bathroomCount"`
	HasBalcony    bool   `json:"hasBalcony"`
	HasStorage    bool   `json:"hasStorage"`
	ParkingSpots  int    `json:"parkingSpots"`
	Notes         string `json:"notes"`
}

// CreateUnit registers a unit within a property, subject to the
// subscription gate. New units start available.
func (s *Service) CreateUnit(ctx context.Context, orgID, propertyID string, req UnitRequest) (*Unit, error) {
	if _, err := s.getOrgProperty(ctx, orgID, propertyID); err != nil {
		return nil, err
	}

	count, err := s.store.CountUnits(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanAddUnit(ctx, orgID, count); err != nil {
		return nil, err
	}

	now := s.now()
	u := &Unit{
		ID:         idgen.WithPrefix("unit_"),
		PropertyID: propertyID,
		OrgID:      orgID,
		UnitNumber: validation.SanitizeString(req.UnitNumber, 10),
		Floor:      req.Floor,
		Area:       req.Area,
		Rooms:      req.Rooms,
		UnitType:   req.UnitType,
		Status:     UnitAvailable,

		HasWaterMeter:       req.HasWaterMeter,
		HasGasMeter:         req.HasGasMeter,
		HasElectricityMeter: req.HasElectricityMeter,
		HasHeatingMeter:     req.HasHeatingMeter,

		BathroomCount: req.BathroomCount,
		HasBalcony:    req.HasBalcony,
		HasStorage:    req.HasStorage,
		ParkingSpots:  req.ParkingSpots,
		Notes:         validation.SanitizeString(req.Notes, 2000),

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUnit(ctx, u); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("unit created", "unit_id", u.ID, "property_id", propertyID)
	return u, nil
}

// UpdateUnit edits a unit's attributes. Occupancy status is driven by the
// lease lifecycle, not by this path.
func (s *Service) UpdateUnit(ctx context.Context, orgID, id string, req UnitRequest) (*Unit, error) {
	u, err := s.GetUnit(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	u.UnitNumber = validation.SanitizeString(req.UnitNumber, 10)
	u.Floor = req.Floor
	u.Area = req.Area
	u.Rooms = req.Rooms
	u.UnitType = req.UnitType
	u.HasWaterMeter = req.HasWaterMeter
	u.HasGasMeter = req.HasGasMeter
	u.HasElectricityMeter = req.HasElectricityMeter
	u.HasHeatingMeter = req.HasHeatingMeter
	u.BathroomCount = req.BathroomCount
	u.HasBalcony = req.HasBalcony
	u.HasStorage = req.HasStorage
	u.ParkingSpots = req.ParkingSpots
	u.Notes = validation.SanitizeString(req.Notes, 2000)
	u.UpdatedAt = s.now()

	if err := s.store.UpdateUnit(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetUnitStatus moves a unit between occupancy states. The lease lifecycle
// is the only caller: draft reserves, acceptance rents, termination frees.
func (s *Service) SetUnitStatus(ctx context.Context, orgID, id string, status UnitStatus) (*Unit, error) {
	u, err := s.GetUnit(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	u.Status = status
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUnit(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUnit loads a unit scoped to the organization.
func (s *Service) GetUnit(ctx context.Context, orgID, id string) (*Unit, error) {
	u, err := s.store.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.OrgID != orgID {
		return nil, ErrUnitNotFound
	}
	return u, nil
}

// MeterRequest carries the fields for installing a meter.
type MeterRequest struct {
	Type       MeterType `json:"meterType" binding:"required"`
	Number     string    `json:"meterNumber" binding:"required"`
	Tariff     string    `json:"tariff"`
	ExpireDate string    `json:"expireDate"`
	Notes      string    `json:"notes"`
}

func (s *Service) buildMeter(orgID, unitID string, req MeterRequest) (*UnitMeter, error) {
	var errs validation.FieldErrors
	if !ValidMeterType(req.Type) {
		errs.Add("meterType", "must be one of water_cold, water_hot, gas, electricity, heating")
	}
	tariff := money.Cents(0)
	if req.Tariff != "" {
		t, err := money.Parse(req.Tariff)
		if err != nil || t < 0 {
			errs.Add("tariff", "must be a non-negative decimal amount")
		} else {
			tariff = t
		}
	}
	var expire *time.Time
	if req.ExpireDate != "" {
		d, err := time.Parse(validation.DateFormat, req.ExpireDate)
		if err != nil {
			errs.Add("expireDate", "must be a date in YYYY-MM-DD format")
		} else {
			expire = &d
		}
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid meter", errs)
	}

	now := s.now()
	return &UnitMeter{
		ID:         idgen.WithPrefix("mtr_"),
		UnitID:     unitID,
		OrgID:      orgID,
		Type:       req.Type,
		Number:     validation.SanitizeString(req.Number, 100),
		Status:     MeterActive,
		ExpireDate: expire,
		Tariff:     tariff,
		Notes:      validation.SanitizeString(req.Notes, 2000),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// InstallMeter adds an active meter to a unit. At most one active meter per
// (unit, type) may exist; installing over an active meter fails and the
// caller must supersede instead.
func (s *Service) InstallMeter(ctx context.Context, orgID, unitID string, req MeterRequest) (*UnitMeter, error) {
	if _, err := s.GetUnit(ctx, orgID, unitID); err != nil {
		return nil, err
	}
	m, err := s.buildMeter(orgID, unitID, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMeter(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SupersedeMeter replaces an active meter with a new one of the same type:
// the old meter is expired and the replacement installed active in a single
// store operation.
func (s *Service) SupersedeMeter(ctx context.Context, orgID, meterID string, req MeterRequest) (*UnitMeter, error) {
	old, err := s.getOrgMeter(ctx, orgID, meterID)
	if err != nil {
		return nil, err
	}
	if old.Status != MeterActive {
		return nil, ErrMeterNotActive
	}

	req.Type = old.Type
	replacement, err := s.buildMeter(orgID, old.UnitID, req)
	if err != nil {
		return nil, err
	}

	old.Status = MeterExpired
	old.UpdatedAt = s.now()
	if err := s.store.SupersedeMeter(ctx, old, replacement); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("meter superseded",
		"old_meter_id", old.ID, "new_meter_id", replacement.ID, "unit_id", old.UnitID)
	return replacement, nil
}

// MeterUpdateRequest edits a meter's descriptive fields. Empty fields are
// left unchanged; type and status are immutable.
type MeterUpdateRequest struct {
	Number     string `json:"meterNumber"`
	Tariff     string `json:"tariff"`
	ExpireDate string `json:"expireDate"`
	Notes      string `json:"notes"`
}

// UpdateMeter edits a meter's descriptive fields. Replacing a meter goes
// through SupersedeMeter.
func (s *Service) UpdateMeter(ctx context.Context, orgID, meterID string, req MeterUpdateRequest) (*UnitMeter, error) {
	m, err := s.getOrgMeter(ctx, orgID, meterID)
	if err != nil {
		return nil, err
	}

	var errs validation.FieldErrors
	if req.Tariff != "" {
		t, err := money.Parse(req.Tariff)
		if err != nil || t < 0 {
			errs.Add("tariff", "must be a non-negative decimal amount")
		} else {
			m.Tariff = t
		}
	}
	if req.ExpireDate != "" {
		d, err := time.Parse(validation.DateFormat, req.ExpireDate)
		if err != nil {
			errs.Add("expireDate", "must be a date in YYYY-MM-DD format")
		} else {
			m.ExpireDate = &d
		}
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid meter", errs)
	}

	if req.Number != "" {
		m.Number = validation.SanitizeString(req.Number, 100)
	}
	if req.Notes != "" {
		m.Notes = validation.SanitizeString(req.Notes, 2000)
	}
	m.UpdatedAt = s.now()
	if err := s.store.UpdateMeter(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeactivateMeter takes a meter out of service without replacement.
func (s *Service) DeactivateMeter(ctx context.Context, orgID, meterID string) (*UnitMeter, error) {
	m, err := s.getOrgMeter(ctx, orgID, meterID)
	if err != nil {
		return nil, err
	}
	m.Status = MeterInactive
	m.UpdatedAt = s.now()
	if err := s.store.UpdateMeter(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMeters returns a unit's meters, lazily expiring any active meter whose
// certification date has passed.
func (s *Service) ListMeters(ctx context.Context, orgID, unitID string) ([]*UnitMeter, error) {
	if _, err := s.GetUnit(ctx, orgID, unitID); err != nil {
		return nil, err
	}
	meters, err := s.store.ListMeters(ctx, unitID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, m := range meters {
		if m.Lapsed(now) {
			m.Status = MeterExpired
			m.UpdatedAt = now
			if err := s.store.UpdateMeter(ctx, m); err != nil {
				return nil, err
			}
		}
	}
	return meters, nil
}

// GetMeter loads a meter scoped to the organization, applying lazy expiry.
func (s *Service) GetMeter(ctx context.Context, orgID, meterID string) (*UnitMeter, error) {
	return s.getOrgMeter(ctx, orgID, meterID)
}

func (s *Service) getOrgMeter(ctx context.Context, orgID, meterID string) (*UnitMeter, error) {
	m, err := s.store.GetMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if m.OrgID != orgID {
		return nil, ErrMeterNotFound
	}
	if m.Lapsed(s.now()) {
		m.Status = MeterExpired
		m.UpdatedAt = s.now()
		if err := s.store.UpdateMeter(ctx, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ReadingRequest carries one submitted counter value.
type ReadingRequest struct {
	Reading     string `json:"reading" binding:"required"`
	ReadingDate string `json:"readingDate" binding:"required"`
	Notes       string `json:"notes"`
}

// SubmitReading records a counter value for an active meter. The value may
// not exceed the nearest later reading nor fall below the nearest earlier
// one; violations surface as field errors.
func (s *Service) SubmitReading(ctx context.Context, orgID, meterID, submitterID string, req ReadingRequest) (*MeterReading, error) {
	m, err := s.getOrgMeter(ctx, orgID, meterID)
	if err != nil {
		return nil, err
	}
	if m.Status != MeterActive {
		return nil, ErrMeterNotActive
	}

	var errs validation.FieldErrors
	value, err := money.Parse(req.Reading)
	if err != nil || value < 0 {
		errs.Add("reading", "must be a non-negative decimal with at most two decimal places")
	}
	date, err := time.Parse(validation.DateFormat, req.ReadingDate)
	if err != nil {
		errs.Add("readingDate", "must be a date in YYYY-MM-DD format")
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid reading", errs)
	}

	history, err := s.store.ListReadings(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if errs := ValidateReading(history, int64(value), date); len(errs) > 0 {
		return nil, apperr.Validation("reading out of order", errs)
	}

	r := &MeterReading{
		ID:          idgen.WithPrefix("rdg_"),
		MeterID:     meterID,
		OrgID:       orgID,
		Value:       int64(value),
		Date:        date,
		SubmittedBy: submitterID,
		Notes:       validation.SanitizeString(req.Notes, 2000),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateReading(ctx, r); err != nil {
		return nil, err
	}
	metrics.MeterReadingsTotal.WithLabelValues(string(m.Type)).Inc()
	return r, nil
}

// VerifyReading marks a submitted reading as checked by an operator.
func (s *Service) VerifyReading(ctx context.Context, orgID, readingID, verifierID string) (*MeterReading, error) {
	r, err := s.store.GetReading(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if r.OrgID != orgID {
		return nil, ErrReadingNotFound
	}
	if !r.Verified {
		now := s.now()
		r.Verified = true
		r.VerifiedBy = verifierID
		r.VerifiedAt = &now
		if err := s.store.UpdateReading(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ReadingHistory returns a meter's readings newest-first with display
// consumption per row.
func (s *Service) ReadingHistory(ctx context.Context, orgID, meterID string) ([]ConsumptionRow, error) {
	if _, err := s.getOrgMeter(ctx, orgID, meterID); err != nil {
		return nil, err
	}
	readings, err := s.store.ListReadings(ctx, meterID)
	if err != nil {
		return nil, err
	}
	return History(readings), nil
}
