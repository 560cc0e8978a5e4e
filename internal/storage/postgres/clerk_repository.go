package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type clerkRepository struct {
	db *sql.DB
}

// NewClerkRepository создаёт PostgreSQL-реализацию ClerkRepository.
func NewClerkRepository(store *Store) domain.ClerkRepository {
	return &clerkRepository{db: store.DB()}
}

func (r *clerkRepository) Get(ctx context.Context, id string) (domain.Clerk, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		clerk  domain.Clerk
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, image, status, created_at FROM clerks WHERE id = $1
	`, id).Scan(&clerk.ID, &clerk.Email, &clerk.Name, &clerk.Image, &status, &clerk.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Clerk{}, domain.ErrClerkNotFound
		}
		return domain.Clerk{}, fmt.Errorf("select clerk: %w", err)
	}
	clerk.Status = domain.ClerkStatus(status)
	return clerk, nil
}

// CreateIfAbsent вставляет запись и возвращает сохранённую версию; при гонке двух входов побеждает первый.
func (r *clerkRepository) CreateIfAbsent(ctx context.Context, clerk domain.Clerk) (domain.Clerk, error) {
	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	if clerk.CreatedAt.IsZero() {
		clerk.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(opCtx, `
		INSERT INTO clerks (id, email, name, image, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
	`, clerk.ID, clerk.Email, clerk.Name, clerk.Image, string(clerk.Status), clerk.CreatedAt); err != nil {
		return domain.Clerk{}, fmt.Errorf("insert clerk: %w", err)
	}

	return r.Get(ctx, clerk.ID)
}

var _ domain.ClerkRepository = (*clerkRepository)(nil)
