// Package property provides buildings, rentable units, their utility meters,
// and meter reading submission with monotonic-counter validation.
package property

import (
	"errors"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// Errors
var (
	ErrPropertyNotFound  = errors.New("property: not found")
	ErrAddressTaken      = errors.New("property: address already registered for this organization")
	ErrUnitNotFound      = errors.New("property: unit not found")
	ErrUnitNumberTaken   = errors.New("property: unit number already used in this property")
	ErrMeterNotFound     = errors.New("property: meter not found")
	ErrActiveMeterExists = errors.New("property: an active meter of this type already exists on the unit")
	ErrMeterNotActive    = errors.New("property: meter is not active")
	ErrReadingNotFound   = errors.New("property: reading not found")
)

// BuildingType classifies a property.
type BuildingType string

const (
	BuildingApartment  BuildingType = "apartment_building"
	BuildingCommercial BuildingType = "commercial_building"
	BuildingHouse      BuildingType = "private_house"
	BuildingMixedUse   BuildingType = "mixed_use"
)

// Property is a building owned or managed by an organization. Its address
// is unique within the organization.
type Property struct {
	ID              string       `json:"id"`
	OrgID           string       `json:"orgId"`
	Address         string       `json:"address"`
	CadastralNumber string       `json:"cadastralNumber,omitempty"`
	TotalArea       float64      `json:"totalArea"`
	BuildingType    BuildingType `json:"buildingType"`
	FloorCount      int          `json:"floorCount"`
	YearBuilt       int          `json:"yearBuilt,omitempty"`
	ManagerID       string       `json:"managerId,omitempty"`

	HasBuildingWaterMeter       bool `json:"hasBuildingWaterMeter"`
	HasBuildingGasMeter         bool `json:"hasBuildingGasMeter"`
	HasBuildingElectricityMeter bool `json:"hasBuildingElectricityMeter"`
	HasBuildingHeatingMeter     bool `json:"hasBuildingHeatingMeter"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UnitType classifies a rentable unit.
type UnitType string

const (
	UnitApartment UnitType = "apartment"
	UnitOffice    UnitType = "office"
	UnitRetail    UnitType = "retail"
	UnitWarehouse UnitType = "warehouse"
	UnitOther     UnitType = "other"
)

// UnitStatus tracks a unit's occupancy. Lease transitions drive it:
// a draft lease reserves the unit, an accepted lease rents it, and
// termination releases it.
type UnitStatus string

const (
	UnitAvailable   UnitStatus = "available"
	UnitRented      UnitStatus = "rented"
	UnitMaintenance UnitStatus = "maintenance"
	UnitReserved    UnitStatus = "reserved"
)

// Unit is a rentable space within a property. Its number is unique within
// the property.
type Unit struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"propertyId"`
	OrgID      string     `json:"orgId"`
	UnitNumber string     `json:"unitNumber"`
	Floor      int        `json:"floor"`
	Area       float64    `json:"area"`
	Rooms      int        `json:"rooms"`
	UnitType   UnitType   `json:"unitType"`
	Status     UnitStatus `json:"status"`

	HasWaterMeter       bool `json:"hasWaterMeter"`
	HasGasMeter         bool `json:"hasGasMeter"`
	HasElectricityMeter bool `json:"hasElectricityMeter"`
	HasHeatingMeter     bool `json:"hasHeatingMeter"`

	BathroomCount int    `json:"bathroomCount"`
	HasBalcony    bool   `json:"hasBalcony"`
	HasStorage    bool   `json:"hasStorage"`
	ParkingSpots  int    `json:"parkingSpots"`
	Notes         string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MeterType identifies the utility a meter counts.
type MeterType string

const (
	MeterWaterCold   MeterType = "water_cold"
	MeterWaterHot    MeterType = "water_hot"
	MeterGas         MeterType = "gas"
	MeterElectricity MeterType = "electricity"
	MeterHeating     MeterType = "heating"
)

// ValidMeterType reports whether t is a recognised meter type.
func ValidMeterType(t MeterType) bool {
	switch t {
	case MeterWaterCold, MeterWaterHot, MeterGas, MeterElectricity, MeterHeating:
		return true
	}
	return false
}

// MeterStatus tracks a meter's service state. At most one active meter per
// (unit, meter type) may exist at a time.
type MeterStatus string

const (
	MeterActive   MeterStatus = "active"
	MeterInactive MeterStatus = "inactive"
	MeterExpired  MeterStatus = "expired"
)

// UnitMeter is a utility counter installed on a unit. Tariff is the price
// per consumption unit in cents; zero means the per-type default applies.
type UnitMeter struct {
	ID         string      `json:"id"`
	UnitID     string      `json:"unitId"`
	OrgID      string      `json:"orgId"`
	Type       MeterType   `json:"meterType"`
	Number     string      `json:"meterNumber"`
	Status     MeterStatus `json:"status"`
	ExpireDate *time.Time  `json:"expireDate,omitempty"`
	Tariff     money.Cents `json:"tariff"`
	Notes      string      `json:"notes,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Lapsed reports whether an active meter's certification has run out.
// Status is refreshed lazily from this on read paths.
func (m *UnitMeter) Lapsed(today time.Time) bool {
	return m.Status == MeterActive && m.ExpireDate != nil &&
		m.ExpireDate.Truncate(24*time.Hour).Before(today.Truncate(24*time.Hour))
}

// MeterReading is one submitted counter value, read to two decimal places
// and stored in hundredths.
type MeterReading struct {
	ID          string     `json:"id"`
	MeterID     string     `json:"meterId"`
	OrgID       string     `json:"orgId"`
	Value       int64      `json:"value"`
	Date        time.Time  `json:"readingDate"`
	SubmittedBy string     `json:"submittedBy,omitempty"`
	Verified    bool       `json:"isVerified"`
	VerifiedBy  string     `json:"verifiedBy,omitempty"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
