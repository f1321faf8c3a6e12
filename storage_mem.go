package leads

import (
	"context"
	"sort"
	"sync"
)

// memStorage keeps everything in a map for the lifetime of the process.
// Leads handed out are copies so callers can't change what's stored behind our back
type memStorage struct {
	mu     sync.RWMutex
	leads  map[int64]*Lead
	nextID int64 // starts at 1 and never goes back down, even after a delete

	log *logger
}

func newMemStorage(l *logger) *memStorage {
	return &memStorage{
		leads:  make(map[int64]*Lead),
		nextID: 1,
		log:    l.WithField("storage", "memory"),
	}
}

func (s *memStorage) GetAll(ctx context.Context) ([]*Lead, error) {
	return s.Search(ctx, Filter{})
}

func (s *memStorage) Search(ctx context.Context, f Filter) ([]*Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if !f.Match(l) {
			continue
		}
		c := *l
		res = append(res, &c)
	}

	// newest first
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID > res[j].ID
	})

	s.log.debug(ctx, "search %+v returned %d leads", f, len(res))
	return res, nil
}

func (s *memStorage) Get(ctx context.Context, id int64) (*Lead, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, false, nil
	}
	c := *l
	return &c, true, nil
}

func (s *memStorage) Create(ctx context.Context, in Input) (*Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.create(in)
	s.log.debug(ctx, "created lead %d", l.ID)
	return l, nil
}

// create expects s.mu to be held for writing
func (s *memStorage) create(in Input) *Lead {
	id := s.nextID
	s.nextID++

	l := newLead(id, in)
	s.leads[id] = l

	c := *l
	return &c
}

func (s *memStorage) Update(ctx context.Context, id int64, p Patch) (*Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, false, nil
	}

	updated := *l
	p.apply(&updated)
	s.leads[id] = &updated

	s.log.debug(ctx, "updated lead %d", id)
	c := updated
	return &c, true, nil
}

func (s *memStorage) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[id]; !ok {
		return false, nil
	}
	delete(s.leads, id)

	s.log.debug(ctx, "deleted lead %d", id)
	return true, nil
}

// Import holds the lock for the whole batch so the ids it hands out are contiguous
func (s *memStorage) Import(ctx context.Context, ins []Input) ([]*Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*Lead, 0, len(ins))
	for _, in := range ins {
		res = append(res, s.create(in))
	}

	s.log.debug(ctx, "imported %d leads", len(res))
	return res, nil
}
