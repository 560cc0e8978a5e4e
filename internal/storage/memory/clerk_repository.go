package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type clerkRepositoryInMemory struct {
	mu     sync.Mutex
	clerks map[string]domain.Clerk
}

// NewClerkRepository создаёт in-memory хранилище сотрудников.
func NewClerkRepository() domain.ClerkRepository {
	return &clerkRepositoryInMemory{clerks: make(map[string]domain.Clerk)}
}

func (r *clerkRepositoryInMemory) Get(_ context.Context, id string) (domain.Clerk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clerk, ok := r.clerks[id]
	if !ok {
		return domain.Clerk{}, domain.ErrClerkNotFound
	}
	return clerk, nil
}

func (r *clerkRepositoryInMemory) CreateIfAbsent(_ context.Context, clerk domain.Clerk) (domain.Clerk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clerks[clerk.ID]; ok {
		return existing, nil
	}
	if clerk.CreatedAt.IsZero() {
		clerk.CreatedAt = time.Now().UTC()
	}
	r.clerks[clerk.ID] = clerk
	return clerk, nil
}

var _ domain.ClerkRepository = (*clerkRepositoryInMemory)(nil)
