package availability

import (
	"context"
	"sort"
	"sync"
)

// Repository stores slots. Create and Update refuse overlapping slots with
// ErrOverlap; the check and the write are one atomic step.
type Repository interface {
	List(ctx context.Context, providerID, from, to string) ([]Slot, error)
	Get(ctx context.Context, providerID, id string) (*Slot, error)
	Create(ctx context.Context, slot *Slot) error
	Update(ctx context.Context, slot *Slot) error
	Delete(ctx context.Context, providerID, id string) error
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	slots map[string]Slot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{slots: make(map[string]Slot)}
}

func (r *MemoryRepository) List(_ context.Context, providerID, from, to string) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Slot{}
	for _, s := range r.slots {
		if s.ProviderID == providerID && s.Date >= from && s.Date <= to {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, providerID, id string) (*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	if !ok || s.ProviderID != providerID {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) Create(_ context.Context, slot *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlapsLocked(*slot) {
		return ErrOverlap
	}
	r.slots[slot.ID] = *slot
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, slot *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.slots[slot.ID]
	if !ok || cur.ProviderID != slot.ProviderID {
		return ErrNotFound
	}
	if r.overlapsLocked(*slot) {
		return ErrOverlap
	}
	slot.CreatedAt = cur.CreatedAt
	r.slots[slot.ID] = *slot
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, providerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.ProviderID != providerID {
		return ErrNotFound
	}
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) overlapsLocked(slot Slot) bool {
	for _, other := range r.slots {
		if other.ID != slot.ID && other.ProviderID == slot.ProviderID && slot.Overlaps(other) {
			return true
		}
	}
	return false
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}
