// Package catalog управляет профилями магазинов, меню и изображениями позиций.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/images"
)

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service: операции над профилем магазина.
type Service struct {
	shops  domain.ShopRepository
	images domain.ImageStorage
	logger *log.Entry

	// locks сериализует read-modify-write меню в пределах одного магазина.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New создаёт сервис каталога. images может быть nil, тогда загрузка изображений недоступна.
func New(shops domain.ShopRepository, images domain.ImageStorage, options ...Option) *Service {
	s := &Service{
		shops:  shops,
		images: images,
		logger: log.WithField("component", "catalog"),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// GetShop возвращает профиль магазина.
func (s *Service) GetShop(ctx context.Context, shopID string) (domain.Shop, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return domain.Shop{}, domain.ErrShopIDRequired
	}
	shop, err := s.shops.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, classify(err, "load shop "+shopID)
	}
	return shop, nil
}

// CreateShop регистрирует магазин. Пустой ID назначается хранилищем.
func (s *Service) CreateShop(ctx context.Context, shop domain.Shop) (domain.Shop, error) {
	shop.ID = strings.TrimSpace(shop.ID)
	if errs := shop.ValidateForCreate(); len(errs) > 0 {
		return domain.Shop{}, errors.Join(errs...)
	}
	if err := validateMenu(shop.Menu); err != nil {
		return domain.Shop{}, err
	}
	if shop.Menu == nil {
		shop.Menu = []domain.MenuItem{}
	}
	assignMenuIDs(shop.Menu)

	created, err := s.shops.Create(ctx, shop)
	if err != nil {
		return domain.Shop{}, classify(err, "create shop")
	}
	s.logger.WithField("shop_id", created.ID).Info("shop created")
	return created, nil
}

// SaveShop накладывает непустые поля patch на сохранённый профиль.
func (s *Service) SaveShop(ctx context.Context, shopID string, patch domain.Shop) (domain.Shop, error) {
	if patch.Menu != nil {
		if err := validateMenu(patch.Menu); err != nil {
			return domain.Shop{}, err
		}
		assignMenuIDs(patch.Menu)
	}
	return s.update(ctx, shopID, func(shop domain.Shop) (domain.Shop, error) {
		return shop.Merge(patch), nil
	})
}

// AddMenuItem добавляет позицию в конец меню.
func (s *Service) AddMenuItem(ctx context.Context, shopID string, item domain.MenuItem) (domain.Shop, error) {
	if err := item.Validate(); err != nil {
		return domain.Shop{}, err
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return s.update(ctx, shopID, func(shop domain.Shop) (domain.Shop, error) {
		shop.Menu = append(shop.Menu, item)
		return shop, nil
	})
}

// UpdateMenuItem заменяет позицию меню по индексу, сохраняя её ID.
func (s *Service) UpdateMenuItem(ctx context.Context, shopID string, index int, item domain.MenuItem) (domain.Shop, error) {
	if err := item.Validate(); err != nil {
		return domain.Shop{}, err
	}
	return s.update(ctx, shopID, func(shop domain.Shop) (domain.Shop, error) {
		if index < 0 || index >= len(shop.Menu) {
			return domain.Shop{}, fmt.Errorf("%w: %d of %d", domain.ErrMenuIndexOutOfRange, index, len(shop.Menu))
		}
		if item.ID == "" {
			item.ID = shop.Menu[index].ID
		}
		shop.Menu[index] = item
		return shop, nil
	})
}

// RemoveMenuItem удаляет позицию меню по индексу.
func (s *Service) RemoveMenuItem(ctx context.Context, shopID string, index int) (domain.Shop, error) {
	return s.update(ctx, shopID, func(shop domain.Shop) (domain.Shop, error) {
		if index < 0 || index >= len(shop.Menu) {
			return domain.Shop{}, fmt.Errorf("%w: %d of %d", domain.ErrMenuIndexOutOfRange, index, len(shop.Menu))
		}
		shop.Menu = append(shop.Menu[:index], shop.Menu[index+1:]...)
		return shop, nil
	})
}

// UploadMenuImage сохраняет изображение позиции под shop/<shopID>/menu/<file> и возвращает ссылку.
func (s *Service) UploadMenuImage(ctx context.Context, shopID, fileName, contentType string, body io.Reader, size int64) (string, error) {
	if s.images == nil {
		return "", domain.Transient(errors.New("image storage is not configured"))
	}
	key, err := images.MenuImageKey(shopID, fileName)
	if err != nil {
		return "", err
	}
	if _, err := s.GetShop(ctx, shopID); err != nil {
		return "", err
	}

	url, err := s.images.Upload(ctx, key, contentType, body, size)
	if err != nil {
		return "", classify(err, "upload image "+key)
	}
	s.logger.WithFields(log.Fields{"shop_id": strings.TrimSpace(shopID), "key": key}).Info("menu image uploaded")
	return url, nil
}

func (s *Service) update(ctx context.Context, shopID string, mutate func(domain.Shop) (domain.Shop, error)) (domain.Shop, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return domain.Shop{}, domain.ErrShopIDRequired
	}

	lock := s.lockFor(shopID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.shops.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, classify(err, "load shop "+shopID)
	}
	updated, err := mutate(current)
	if err != nil {
		return domain.Shop{}, err
	}
	updated.ID = shopID
	if err := s.shops.Save(ctx, updated); err != nil {
		return domain.Shop{}, classify(err, "save shop "+shopID)
	}
	return updated, nil
}

func (s *Service) lockFor(shopID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[shopID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[shopID] = lock
	}
	return lock
}

func validateMenu(menu []domain.MenuItem) error {
	for i, item := range menu {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("menu item %d: %w", i, err)
		}
	}
	return nil
}

func assignMenuIDs(menu []domain.MenuItem) {
	for i := range menu {
		if menu[i].ID == "" {
			menu[i].ID = uuid.NewString()
		}
	}
}

func classify(err error, op string) error {
	if domain.IsNotFound(err) || domain.IsMalformed(err) || domain.IsAlreadyExists(err) || errors.Is(err, domain.ErrTransient) {
		return err
	}
	return domain.Transient(fmt.Errorf("%s: %w", op, err))
}
