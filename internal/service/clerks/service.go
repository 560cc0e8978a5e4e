// Package clerks регистрирует сотрудников магазина при первом входе в админку.
package clerks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service выдаёт учётную запись сотрудника, создавая её при первом входе.
type Service struct {
	clerks domain.ClerkRepository
	logger *log.Entry
}

// New создаёт сервис сотрудников.
func New(clerks domain.ClerkRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "clerks")
	}
	return &Service{clerks: clerks, logger: logger}
}

// SignIn возвращает запись сотрудника. Новые сотрудники создаются в статусе pending;
// существующая запись не перезаписывается.
func (s *Service) SignIn(ctx context.Context, identity domain.Clerk) (domain.Clerk, error) {
	identity.ID = strings.TrimSpace(identity.ID)
	identity.Email = strings.TrimSpace(identity.Email)
	if identity.ID == "" || identity.Email == "" {
		return domain.Clerk{}, domain.ErrClerkIdentityRequired
	}

	existing, err := s.clerks.Get(ctx, identity.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrClerkNotFound) {
		return domain.Clerk{}, domain.Transient(fmt.Errorf("load clerk %s: %w", identity.ID, err))
	}

	identity.Status = domain.ClerkStatusPending
	clerk, err := s.clerks.CreateIfAbsent(ctx, identity)
	if err != nil {
		return domain.Clerk{}, domain.Transient(fmt.Errorf("create clerk %s: %w", identity.ID, err))
	}
	s.logger.WithFields(log.Fields{"clerk_id": clerk.ID, "status": clerk.Status}).Info("clerk registered")
	return clerk, nil
}

// Get возвращает сотрудника по ID.
func (s *Service) Get(ctx context.Context, id string) (domain.Clerk, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Clerk{}, domain.ErrClerkIdentityRequired
	}
	clerk, err := s.clerks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrClerkNotFound) {
			return domain.Clerk{}, err
		}
		return domain.Clerk{}, domain.Transient(fmt.Errorf("load clerk %s: %w", id, err))
	}
	return clerk, nil
}
