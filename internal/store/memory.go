package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

type productState struct {
	p            model.Product
	lastSequence uint64
}

type storeState struct {
	sf       model.Storefront
	products []productState
	index    map[string]int
	rules    []model.Rule
}

// Memory is an in-process Repository. It is the default when no database is
// configured and the backend used by most tests.
type Memory struct {
	mu     sync.RWMutex
	stores map[string]*storeState
	visits []model.Visit
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{stores: make(map[string]*storeState)}
}

func (s *Memory) state(storeID string) *storeState {
	st, ok := s.stores[storeID]
	if !ok {
		st = &storeState{sf: model.Storefront{ID: storeID}, index: make(map[string]int)}
		s.stores[storeID] = st
	}
	return st
}

func (s *Memory) GetStorefront(_ context.Context, storeID string) (model.Storefront, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[storeID]
	if !ok {
		return model.Storefront{}, ErrNotFound
	}
	return st.sf, nil
}

func (s *Memory) PutStorefront(_ context.Context, sf model.Storefront) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(sf.ID).sf = sf
	return nil
}

func (s *Memory) ListProducts(_ context.Context, storeID string) ([]model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[storeID]
	if !ok {
		return []model.Product{}, nil
	}
	out := make([]model.Product, 0, len(st.products))
	for _, ps := range st.products {
		out = append(out, cloneProduct(ps.p))
	}
	return out, nil
}

func (s *Memory) GetProduct(_ context.Context, storeID, productID string) (model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[storeID]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	i, ok := st.index[productID]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	return cloneProduct(st.products[i].p), nil
}

// UpsertProducts inserts new products and refreshes catalog fields of known
// ones. Merchant-owned fields (boost score, included, agent notes) of
// existing products are kept.
func (s *Memory) UpsertProducts(_ context.Context, storeID string, products []model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(storeID)
	for _, p := range products {
		p = cloneProduct(p)
		if i, ok := st.index[p.ID]; ok {
			old := st.products[i].p
			p.BoostScore = old.BoostScore
			p.Included = old.Included
			p.AgentNotes = old.AgentNotes
			st.products[i].p = p
			continue
		}
		st.index[p.ID] = len(st.products)
		st.products = append(st.products, productState{p: p})
	}
	return nil
}

// ApplyPatch writes p onto the stored product unless a patch with an equal or
// newer sequence was already applied.
func (s *Memory) ApplyPatch(_ context.Context, p model.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[p.StoreID]
	if !ok {
		return false, ErrNotFound
	}
	i, ok := st.index[p.ProductID]
	if !ok {
		return false, ErrNotFound
	}
	ps := st.products[i]
	if p.Sequence <= ps.lastSequence {
		return false, nil
	}
	ps.p = p.Apply(ps.p)
	ps.lastSequence = p.Sequence
	st.products[i] = ps
	return true, nil
}

func (s *Memory) SetAgentNotes(_ context.Context, storeID, productID, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeID]
	if !ok {
		return ErrNotFound
	}
	i, ok := st.index[productID]
	if !ok {
		return ErrNotFound
	}
	st.products[i].p.AgentNotes = notes
	return nil
}

func (s *Memory) ListRules(_ context.Context, storeID string) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[storeID]
	if !ok {
		return []model.Rule{}, nil
	}
	return append([]model.Rule{}, st.rules...), nil
}

func (s *Memory) CreateRule(_ context.Context, storeID string, r model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(storeID)
	st.rules = append(st.rules, r)
	return nil
}

func (s *Memory) DeleteRule(_ context.Context, storeID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeID]
	if !ok {
		return ErrNotFound
	}
	for i, r := range st.rules {
		if r.ID == ruleID {
			st.rules = append(st.rules[:i:i], st.rules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Memory) RecordVisit(_ context.Context, v model.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, v)
	return nil
}

func (s *Memory) VisitStats(_ context.Context, storeID string, since time.Time) ([]model.AgentVisits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAgent := make(map[string]*model.AgentVisits)
	for _, v := range s.visits {
		if v.StoreID != storeID || v.VisitedAt.Before(since) {
			continue
		}
		av, ok := byAgent[v.Agent]
		if !ok {
			av = &model.AgentVisits{Agent: v.Agent}
			byAgent[v.Agent] = av
		}
		av.Count++
		if v.VisitedAt.After(av.LastVisit) {
			av.LastVisit = v.VisitedAt
		}
	}
	out := make([]model.AgentVisits, 0, len(byAgent))
	for _, av := range byAgent {
		out = append(out, *av)
	}
	sortAgentVisits(out)
	return out, nil
}

func (s *Memory) PruneVisits(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.visits[:0]
	var n int64
	for _, v := range s.visits {
		if v.VisitedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, v)
	}
	s.visits = kept
	return n, nil
}

func (s *Memory) Close() error { return nil }

func cloneProduct(p model.Product) model.Product {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	if p.Margin != nil {
		m := *p.Margin
		p.Margin = &m
	}
	return p
}

func sortAgentVisits(v []model.AgentVisits) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].Count != v[j].Count {
			return v[i].Count > v[j].Count
		}
		return v[i].Agent < v[j].Agent
	})
}
