package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu         sync.RWMutex
	admin      common.Address
	hasAdmin   bool
	scores     map[string]uint8
	lastUpdate time.Time
}

// NewMemoryStore creates an empty in-memory registry store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores: make(map[string]uint8),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make(map[string]uint8, len(s.scores))
	for id, score := range s.scores {
		scores[id] = score
	}
	return &Snapshot{
		Admin:      s.admin,
		HasAdmin:   s.hasAdmin,
		Scores:     scores,
		LastUpdate: s.lastUpdate,
	}, nil
}

func (s *MemoryStore) SetAdmin(ctx context.Context, admin common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasAdmin {
		return ErrAlreadyInitialized
	}
	s.admin = admin
	s.hasAdmin = true
	return nil
}

func (s *MemoryStore) PutScore(ctx context.Context, validatorID string, score uint8, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scores[validatorID] = score
	s.lastUpdate = at
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
