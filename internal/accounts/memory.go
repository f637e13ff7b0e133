package accounts

import (
	"context"
	"sync"
)

// MemoryRepository keeps accounts in process memory for development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func emailKey(portal, email string) string {
	return portal + "|" + NormalizeEmail(email)
}

func (r *MemoryRepository) Create(_ context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := emailKey(acct.Portal, acct.Email)
	if _, exists := r.byEmail[key]; exists {
		return ErrEmailTaken
	}
	stored := *acct
	r.byID[acct.ID] = &stored
	r.byEmail[key] = acct.ID
	return nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, portal, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[emailKey(portal, email)]
	if !ok {
		return nil, ErrNotFound
	}
	acct := *r.byID[id]
	return &acct, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acct
	return &out, nil
}
