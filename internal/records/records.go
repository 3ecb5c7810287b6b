// Package records stores server-side verification records per user.
package records

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("verification record not found")

type Store interface {
	Save(ctx context.Context, rec models.VerificationRecord) error
	// ListByUser returns the user's records, most recent verification first.
	ListByUser(ctx context.Context, userID string) ([]models.VerificationRecord, error)
	Get(ctx context.Context, id uuid.UUID) (models.VerificationRecord, error)
}

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]models.VerificationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]models.VerificationRecord),
	}
}

func (s *MemoryStore) Save(_ context.Context, rec models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.VerificationRecord, 0)
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VerificationResult.Timestamp.After(out[j].VerificationResult.Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.VerificationRecord{}, ErrNotFound
	}
	return rec, nil
}
