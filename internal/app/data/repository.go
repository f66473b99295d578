package data

import (
	"context"
	"sync"

	"stickychat/internal/app/user"
)

// Record is the persisted form of a Service. Last contact and priority are
// session-scoped and are not stored.
type Record struct {
	Owner                 user.ID
	Blocked               []user.ID
	DirectMessagesEnabled bool
}

// Repository persists Records across restarts. Writes are per-field deltas so two
// instances holding copies of the same player can never overwrite each other's changes.
type Repository interface {
	// Load returns the stored record for id. found is false when nothing was stored.
	Load(ctx context.Context, id user.ID) (rec Record, found bool, err error)

	// SetBlocked adds or removes a single block of target by owner.
	SetBlocked(ctx context.Context, owner, target user.ID, blocked bool) error

	// SetDirectMessages stores owner's direct-message toggle.
	SetDirectMessages(ctx context.Context, owner user.ID, enabled bool) error

	// Delete removes everything stored for id.
	Delete(ctx context.Context, id user.ID) error
}

type memoryRecord struct {
	blocked               map[user.ID]struct{}
	directMessagesEnabled bool
}

// MemoryRepository keeps records in process memory. State is lost on restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[user.ID]*memoryRecord
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[user.ID]*memoryRecord)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Load(_ context.Context, id user.ID) (Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.records[id]
	if !ok {
		return Record{}, false, nil
	}

	rec := Record{
		Owner:                 id,
		Blocked:               make([]user.ID, 0, len(stored.blocked)),
		DirectMessagesEnabled: stored.directMessagesEnabled,
	}
	for target := range stored.blocked {
		rec.Blocked = append(rec.Blocked, target)
	}
	return rec, true, nil
}

// record returns the stored record for id, creating the default one. Callers hold mu.
func (r *MemoryRepository) record(id user.ID) *memoryRecord {
	stored, ok := r.records[id]
	if !ok {
		stored = &memoryRecord{blocked: make(map[user.ID]struct{}), directMessagesEnabled: true}
		r.records[id] = stored
	}
	return stored
}

func (r *MemoryRepository) SetBlocked(_ context.Context, owner, target user.ID, blocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.record(owner)
	if blocked {
		stored.blocked[target] = struct{}{}
	} else {
		delete(stored.blocked, target)
	}
	return nil
}

func (r *MemoryRepository) SetDirectMessages(_ context.Context, owner user.ID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(owner).directMessagesEnabled = enabled
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id user.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}
