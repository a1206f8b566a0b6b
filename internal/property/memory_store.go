package property

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory property store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[string]*Property
	units      map[string]*Unit
	meters     map[string]*UnitMeter
	readings   map[string]*MeterReading
}

// NewMemoryStore creates an empty in-memory property store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties: make(map[string]*Property),
		units:      make(map[string]*Unit),
		meters:     make(map[string]*UnitMeter),
		readings:   make(map[string]*MeterReading),
	}
}

func (m *MemoryStore) CreateProperty(ctx context.Context, p *Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.properties {
		if existing.OrgID == p.OrgID && strings.EqualFold(existing.Address, p.Address) {
			return ErrAddressTaken
		}
	}
	cp := *p
	m.properties[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProperty(ctx context.Context, id string) (*Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.properties[id]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdateProperty(ctx context.Context, p *Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.properties[p.ID]; !ok {
		return ErrPropertyNotFound
	}
	for _, existing := range m.properties {
		if existing.ID != p.ID && existing.OrgID == p.OrgID && strings.EqualFold(existing.Address, p.Address) {
			return ErrAddressTaken
		}
	}
	cp := *p
	m.properties[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListProperties(ctx context.Context, orgID string) ([]*Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Property
	for _, p := range m.properties {
		if p.OrgID == orgID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) CountProperties(ctx context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.properties {
		if p.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateUnit(ctx context.Context, u *Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.units {
		if existing.PropertyID == u.PropertyID && strings.EqualFold(existing.UnitNumber, u.UnitNumber) {
			return ErrUnitNumberTaken
		}
	}
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUnit(ctx context.Context, id string) (*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[id]
	if !ok {
		return nil, ErrUnitNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) UpdateUnit(ctx context.Context, u *Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[u.ID]; !ok {
		return ErrUnitNotFound
	}
	for _, existing := range m.units {
		if existing.ID != u.ID && existing.PropertyID == u.PropertyID && strings.EqualFold(existing.UnitNumber, u.UnitNumber) {
			return ErrUnitNumberTaken
		}
	}
	cp := *u
	m.units[u.ID] = &cp
	return nil
}

func (m *MemoryStore) ListUnits(ctx context.Context, propertyID string) ([]*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Unit
	for _, u := range m.units {
		if u.PropertyID == propertyID {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UnitNumber < result[j].UnitNumber })
	return result, nil
}

func (m *MemoryStore) CountUnits(ctx context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, u := range m.units {
		if u.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateMeter(ctx context.Context, meter *UnitMeter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meter.Status == MeterActive {
		for _, existing := range m.meters {
			if existing.UnitID == meter.UnitID && existing.Type == meter.Type && existing.Status == MeterActive {
				return ErrActiveMeterExists
			}
		}
	}
	cp := *meter
	m.meters[meter.ID] = &cp
	return nil
}

func (m *MemoryStore) GetMeter(ctx context.Context, id string) (*UnitMeter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meter, ok := m.meters[id]
	if !ok {
		return nil, ErrMeterNotFound
	}
	cp := *meter
	return &cp, nil
}

func (m *MemoryStore) UpdateMeter(ctx context.Context, meter *UnitMeter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meters[meter.ID]; !ok {
		return ErrMeterNotFound
	}
	if meter.Status == MeterActive {
		for _, existing := range m.meters {
			if existing.ID != meter.ID && existing.UnitID == meter.UnitID &&
				existing.Type == meter.Type && existing.Status == MeterActive {
				return ErrActiveMeterExists
			}
		}
	}
	cp := *meter
	m.meters[meter.ID] = &cp
	return nil
}

func (m *MemoryStore) SupersedeMeter(ctx context.Context, old, replacement *UnitMeter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meters[old.ID]; !ok {
		return ErrMeterNotFound
	}
	if replacement.Status == MeterActive {
		for _, existing := range m.meters {
			if existing.ID != old.ID && existing.UnitID == replacement.UnitID &&
				existing.Type == replacement.Type && existing.Status == MeterActive {
				return ErrActiveMeterExists
			}
		}
	}
	oldCp := *old
	newCp := *replacement
	m.meters[old.ID] = &oldCp
	m.meters[replacement.ID] = &newCp
	return nil
}

func (m *MemoryStore) ListMeters(ctx context.Context, unitID string) ([]*UnitMeter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*UnitMeter
	for _, meter := range m.meters {
		if meter.UnitID == unitID {
			cp := *meter
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) CreateReading(ctx context.Context, r *MeterReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.readings[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetReading(ctx context.Context, id string) (*MeterReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readings[id]
	if !ok {
		return nil, ErrReadingNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateReading(ctx context.Context, r *MeterReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readings[r.ID]; !ok {
		return ErrReadingNotFound
	}
	cp := *r
	m.readings[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListReadings(ctx context.Context, meterID string) ([]*MeterReading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*MeterReading
	for _, r := range m.readings {
		if r.MeterID == meterID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return sortReadingsDesc(result), nil
}
