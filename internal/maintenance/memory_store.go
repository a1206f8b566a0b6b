package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	issues map[string]*Issue
	work   map[string]*Work
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues: make(map[string]*Issue),
		work:   make(map[string]*Work),
	}
}

func (s *MemoryStore) CreateIssue(_ context.Context, i *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.issues[i.ID] = &cp
	return nil
}

func (s *MemoryStore) GetIssue(_ context.Context, id string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.issues[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *MemoryStore) UpdateIssue(_ context.Context, i *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[i.ID]; !ok {
		return ErrIssueNotFound
	}
	cp := *i
	s.issues[i.ID] = &cp
	return nil
}

func (s *MemoryStore) ListIssues(_ context.Context, orgID string, f IssueFilter) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Issue
	for _, i := range s.issues {
		if i.OrgID != orgID {
			continue
		}
		if f.UnitID != "" && i.UnitID != f.UnitID {
			continue
		}
		if f.Status != "" && i.Status != f.Status {
			continue
		}
		if f.Priority != "" && i.Priority != f.Priority {
			continue
		}
		if f.Type != "" && i.Type != f.Type {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}
	sortIssues(out)
	return out, nil
}

func (s *MemoryStore) ListIssuesByReporter(_ context.Context, reporterID string) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Issue
	for _, i := range s.issues {
		if i.ReportedBy != reporterID {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}
	sortIssues(out)
	return out, nil
}

func (s *MemoryStore) CreateWork(_ context.Context, w *Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.work[w.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWork(_ context.Context, id string) (*Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.work[id]
	if !ok {
		return nil, ErrMaintenanceNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) UpdateWork(_ context.Context, w *Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.work[w.ID]; !ok {
		return ErrMaintenanceNotFound
	}
	cp := *w
	s.work[w.ID] = &cp
	return nil
}

func (s *MemoryStore) ListWorkByIssue(_ context.Context, issueID string) ([]*Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Work
	for _, w := range s.work {
		if w.IssueID != issueID {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListCompletedWork(_ context.Context, unitID string, from, to time.Time) ([]*Work, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Work
	for _, w := range s.work {
		if w.UnitID != unitID || w.Status != WorkCompleted || w.Cost <= 0 {
			continue
		}
		if w.CompletedDate == nil || w.CompletedDate.Before(from) || !w.CompletedDate.Before(to) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedDate.Before(*out[j].CompletedDate)
	})
	return out, nil
}

func sortIssues(issues []*Issue) {
	sort.Slice(issues, func(i, j int) bool {
		return issues[i].CreatedAt.After(issues[j].CreatedAt)
	})
}
