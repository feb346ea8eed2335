package persistence

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/sentinel/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of EventStore,
// ContractStore and CursorStore backed by slices and maps.
type InMemoryStore struct {
	mu             sync.RWMutex
	events         []api.Event
	contracts      map[int64]*api.Contract
	nextContractID int64
	cursors        map[string]int64
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contracts: make(map[int64]*api.Contract),
		cursors:   make(map[string]int64),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ EventStore = (*InMemoryStore)(nil)

var _ ContractStore = (*InMemoryStore)(nil)

var _ CursorStore = (*InMemoryStore)(nil)

// Persistence returns the store as a bundle.
func (s *InMemoryStore) Persistence() Persistence {
	return Persistence{Events: s, Contracts: s, Cursors: s}
}

func (s *InMemoryStore) Append(_ context.Context, ev *api.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = int64(len(s.events)) + 1
	stored := *ev
	stored.Tags = slices.Clone(ev.Tags)
	s.events = append(s.events, stored)
	return ev.ID, nil
}

func (s *InMemoryStore) RangeQuery(_ context.Context, eventTypes []string, minTs, maxTs int64) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Event
	for _, ev := range s.events {
		if ev.Timestamp < minTs || ev.Timestamp >= maxTs {
			continue
		}
		if slices.Contains(eventTypes, ev.EventType) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (s *InMemoryStore) LatestBefore(_ context.Context, eventType string, maxTs int64) (*api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *api.Event
	for i := range s.events {
		ev := &s.events[i]
		if ev.EventType != eventType || ev.Timestamp >= maxTs {
			continue
		}
		if latest == nil || ev.Timestamp >= latest.Timestamp {
			latest = ev
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *InMemoryStore) ItemsAfter(_ context.Context, lastID int64, limit int) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Ids are 1-based positions in the slice.
	start := int(max(lastID, 0))
	if start >= len(s.events) {
		return nil, nil
	}
	end := len(s.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return slices.Clone(s.events[start:end]), nil
}

func (s *InMemoryStore) MostRecentID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.events)), nil
}

func (s *InMemoryStore) Create(_ context.Context, c *api.Contract) (int64, error) {
	if err := prepareNew(c); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContractID++
	c.ID = s.nextContractID
	copied := *c
	s.contracts[c.ID] = &copied
	return c.ID, nil
}

func (s *InMemoryStore) Get(_ context.Context, id int64) (*api.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *InMemoryStore) TriggeredBy(_ context.Context, eventType string, now time.Time) ([]*api.Contract, error) {
	return s.selectContracts(func(c *api.Contract) bool {
		return triggeredBy(c, eventType, now)
	}), nil
}

func (s *InMemoryStore) OpenContracts(_ context.Context, now time.Time) ([]*api.Contract, error) {
	return s.selectContracts(func(c *api.Contract) bool {
		return openAndDue(c, now)
	}), nil
}

func (s *InMemoryStore) selectContracts(keep func(*api.Contract) bool) []*api.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Contract
	for _, c := range s.contracts {
		if keep(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *InMemoryStore) Update(_ context.Context, c *api.Contract) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[c.ID]; !ok {
		return false, nil
	}
	copied := *c
	s.contracts[c.ID] = &copied
	return true, nil
}

func (s *InMemoryStore) LoadOrCreate(_ context.Context, name string) (api.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.cursors[name]
	if !ok {
		s.cursors[name] = 0
	}
	return api.QueueStats{Name: name, LastConsumedID: id}, nil
}

func (s *InMemoryStore) Save(_ context.Context, stats api.QueueStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[stats.Name] = stats.LastConsumedID
	return nil
}
