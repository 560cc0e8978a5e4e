package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput: общий класс ошибок входных данных, отклоняемых до обращения к хранилищу.
	ErrMalformedInput = errors.New("malformed input")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrShopNotFound возвращается, если магазин не найден.
	ErrShopNotFound = errors.New("shop not found")
	// ErrClerkNotFound возвращается, если сотрудник не найден.
	ErrClerkNotFound = errors.New("clerk not found")
	// ErrInvalidTransition: запрошенный переход статуса запрещён жизненным циклом заказа.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTransient: временная ошибка бэкенда (сеть, таймаут, недоступность), можно повторить.
	ErrTransient = errors.New("transient failure")
	// ErrStatusConflict сигнализирует, что статус заказа изменился между чтением и записью.
	ErrStatusConflict = errors.New("order status conflict")
	// ErrOrderAlreadyExists возвращается при повторном создании заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrShopAlreadyExists возвращается при создании магазина с занятым ID.
	ErrShopAlreadyExists = errors.New("shop already exists")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var (
	// Ошибка отсутствующего идентификатора магазина.
	ErrShopIDRequired = fmt.Errorf("%w: shop_id is required", ErrMalformedInput)
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = fmt.Errorf("%w: order_id is required", ErrMalformedInput)
	// Ошибка неизвестного статуса заказа.
	ErrUnknownStatus = fmt.Errorf("%w: unknown order status", ErrMalformedInput)
	// Ошибка отсутствующего названия магазина при создании.
	ErrShopNameRequired = fmt.Errorf("%w: shop name is required", ErrMalformedInput)
	// Ошибка отсутствующего адреса магазина при создании.
	ErrShopAddressRequired = fmt.Errorf("%w: shop address is required", ErrMalformedInput)
	// Ошибка отсутствующего названия позиции меню.
	ErrMenuItemNameRequired = fmt.Errorf("%w: menu item name is required", ErrMalformedInput)
	// Ошибка отрицательной цены позиции меню или опции.
	ErrMenuPriceInvalid = fmt.Errorf("%w: price must be non-negative", ErrMalformedInput)
	// Ошибка индекса позиции меню за пределами списка.
	ErrMenuIndexOutOfRange = fmt.Errorf("%w: menu index out of range", ErrMalformedInput)
	// Ошибка отсутствующего имени файла изображения.
	ErrImageNameRequired = fmt.Errorf("%w: image file name is required", ErrMalformedInput)
	// Ошибка отсутствующих данных пользователя при входе.
	ErrClerkIdentityRequired = fmt.Errorf("%w: clerk id and email are required", ErrMalformedInput)
	// Ошибка события timeline без типа.
	ErrTimelineTypeRequired = fmt.Errorf("%w: timeline event type is required", ErrMalformedInput)
	// Ошибка пустого списка товаров во входящем заказе.
	ErrProductsRequired = fmt.Errorf("%w: order must contain at least one product", ErrMalformedInput)
)

// Transient помечает ошибку бэкенда как временную, сохраняя исходную причину.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient проверяет, можно ли повторить операцию.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound проверяет, ссылается ли ошибка на отсутствующую сущность.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrClerkNotFound)
}

// IsAlreadyExists проверяет, занят ли идентификатор создаваемой сущности.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrOrderAlreadyExists) || errors.Is(err, ErrShopAlreadyExists)
}

// IsMalformed проверяет, отклонён ли запрос из-за некорректных входных данных.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsInvalidTransition проверяет, является ли ошибка запрещённым переходом статуса.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
