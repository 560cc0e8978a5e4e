package images

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MemoryStorage держит картинки в памяти; используется без настроенного S3.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

// Object: сохранённая картинка.
type Object struct {
	ContentType string
	Data        []byte
}

// NewMemoryStorage создаёт хранилище, отдающее URL вида <baseURL>/<key>.
func NewMemoryStorage(baseURL string) *MemoryStorage {
	if baseURL == "" {
		baseURL = "memory://images"
	}
	return &MemoryStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]Object),
	}
}

func (s *MemoryStorage) Upload(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	data, err := readImage(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[key] = Object{ContentType: contentType, Data: data}
	s.mu.Unlock()

	return s.baseURL + "/" + key, nil
}

// Object возвращает сохранённую картинку по ключу.
func (s *MemoryStorage) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

var _ domain.ImageStorage = (*MemoryStorage)(nil)
