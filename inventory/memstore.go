package inventory

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is a Store held in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    []Entry
	outturns   map[int]Outturn
	packagings map[int]Packaging
	locations  map[string]Location
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outturns:   make(map[int]Outturn),
		packagings: make(map[int]Packaging),
		locations:  make(map[string]Location),
	}
}

func (s *MemoryStore) AddLocation(l Location) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[NormalizeLocationCode(l.Code)] = l
	return s
}

func (s *MemoryStore) AddPackaging(p Packaging) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packagings[p.Id] = p
	return s
}

func (s *MemoryStore) AddOutturn(o Outturn) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outturns[o.Id] = o
	return s
}

func (s *MemoryStore) Append(entries ...Entry) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return s
}

func (s *MemoryStore) Entries(_ context.Context, filter EntryFilter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := DateOnly(filter.Through)
	loc := NormalizeLocationCode(filter.Location)
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		d := DateOnly(e.EntryDate())
		if !filter.Through.IsZero() {
			if filter.Before && !d.Before(day) {
				continue
			}
			if !filter.Before && d.After(day) {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, e.EntryStatus()) {
			continue
		}
		if len(filter.Types) > 0 && !hasType(filter.Types, e.EntryType()) {
			continue
		}
		if loc != "" && !touches(e, loc) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) OutturnById(_ context.Context, id int) (*Outturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outturns[id]
	if !ok {
		return nil, &NotFoundError{Resource: "outturn", Key: strconv.Itoa(id)}
	}
	return &o, nil
}

func (s *MemoryStore) ListOutturns(_ context.Context) ([]Outturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Outturn, 0, len(s.outturns))
	for _, o := range s.outturns {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *MemoryStore) PackagingById(_ context.Context, id int) (*Packaging, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packagings[id]
	if !ok {
		return nil, &NotFoundError{Resource: "packaging", Key: strconv.Itoa(id)}
	}
	return &p, nil
}

func (s *MemoryStore) PackagingsByBrand(_ context.Context, brand string) ([]Packaging, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Packaging
	for _, p := range s.packagings {
		if normalizeBrand(p.BrandName) == normalizeBrand(brand) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *MemoryStore) ListLocations(_ context.Context) ([]Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func hasType(types []MovementType, t MovementType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func touches(e Entry, normLocation string) bool {
	for _, leg := range e.Legs() {
		if NormalizeLocationCode(leg.Location) == normLocation {
			return true
		}
	}
	return false
}
