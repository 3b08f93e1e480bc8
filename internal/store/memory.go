package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/model"
)

// MemoryStore implements Store with in-process maps. Contents are lost on
// restart.
type MemoryStore struct {
	mu          sync.RWMutex
	extractions map[int64]model.Extraction
	contacts    map[int64]model.Contact
	companies   map[int64]model.Company
	deals       map[int64]model.Deal

	nextExtraction, nextContact, nextCompany, nextDeal int64

	now func() time.Time
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		extractions: make(map[int64]model.Extraction),
		contacts:    make(map[int64]model.Contact),
		companies:   make(map[int64]model.Company),
		deals:       make(map[int64]model.Deal),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateExtraction(_ context.Context, meetingSummary, extractedData string) (*model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextExtraction++
	e := model.Extraction{
		ID:             s.nextExtraction,
		MeetingSummary: meetingSummary,
		ExtractedData:  extractedData,
		CreatedAt:      s.now(),
	}
	s.extractions[e.ID] = e
	return &e, nil
}

func (s *MemoryStore) GetExtraction(_ context.Context, id int64) (*model.Extraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.extractions[id]
	if !ok {
		return nil, apperr.NotFound("extraction", id)
	}
	return &e, nil
}

func (s *MemoryStore) UpdateExtraction(_ context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.extractions[id]
	if !ok {
		return nil, apperr.NotFound("extraction", id)
	}
	if upd.SyncedToHubspot != nil {
		e.SyncedToHubspot = *upd.SyncedToHubspot
	}
	s.extractions[id] = e
	return &e, nil
}

func (s *MemoryStore) ListExtractions(context.Context) ([]model.Extraction, error) {
	s.mu.RLock()
	out := make([]model.Extraction, 0, len(s.extractions))
	for _, e := range s.extractions {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CreateContact(_ context.Context, c model.Contact) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContact++
	c.ID = s.nextContact
	c.CreatedAt = s.now()
	s.contacts[c.ID] = c
	return &c, nil
}

func (s *MemoryStore) CreateCompany(_ context.Context, c model.Company) (*model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCompany++
	c.ID = s.nextCompany
	c.CreatedAt = s.now()
	s.companies[c.ID] = c
	return &c, nil
}

func (s *MemoryStore) CreateDeal(_ context.Context, d model.Deal) (*model.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDeal++
	d.ID = s.nextDeal
	d.CreatedAt = s.now()
	s.deals[d.ID] = d
	return &d, nil
}

func (s *MemoryStore) GetContact(_ context.Context, id int64) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, apperr.NotFound("contact", id)
	}
	return &c, nil
}

func (s *MemoryStore) GetCompany(_ context.Context, id int64) (*model.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, apperr.NotFound("company", id)
	}
	return &c, nil
}

func (s *MemoryStore) GetDeal(_ context.Context, id int64) (*model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, apperr.NotFound("deal", id)
	}
	return &d, nil
}
