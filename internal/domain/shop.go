package domain

import (
	"strings"
	"time"
)

// Weekday: ключ расписания работы магазина ("monday" ... "sunday").
type Weekday string

// Hours: часы работы в формате "HH:MM".
type Hours struct {
	Open  string
	Close string
}

// ContactInfo: контакты магазина.
type ContactInfo struct {
	Email string
	Phone string
}

// PricedOption: вариант опции с доплатой.
type PricedOption struct {
	Name       string
	PriceMinor int64
}

// OptionCategory группирует опции позиции меню (размер, добавки и т.п.).
type OptionCategory struct {
	Name    string
	Options []PricedOption
}

// MenuItem: позиция меню магазина.
type MenuItem struct {
	ID               string
	Name             string
	Description      string
	Image            string
	ImageAlt         string
	PriceMinor       int64
	InStock          bool
	OptionCategories []OptionCategory
}

// Validate проверяет обязательные поля позиции меню.
func (m MenuItem) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrMenuItemNameRequired
	}
	if m.PriceMinor < 0 {
		return ErrMenuPriceInvalid
	}
	for _, category := range m.OptionCategories {
		for _, option := range category.Options {
			if option.PriceMinor < 0 {
				return ErrMenuPriceInvalid
			}
		}
	}
	return nil
}

// Shop: магазин, которому принадлежат заказы и меню.
type Shop struct {
	ID           string
	Name         string
	Address      string
	Category     string
	Description  string
	Image        string
	Location     string
	Contact      ContactInfo
	Menu         []MenuItem
	OpeningHours map[Weekday]Hours
	// PaymentAccountID зарезервирован под интеграцию с платёжным провайдером.
	PaymentAccountID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidateForCreate проверяет поля, обязательные при регистрации магазина.
func (s *Shop) ValidateForCreate() []error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, ErrShopNameRequired)
	}
	if strings.TrimSpace(s.Address) == "" {
		errs = append(errs, ErrShopAddressRequired)
	}
	return errs
}

// Merge накладывает непустые поля patch поверх текущего состояния магазина.
// Часы работы объединяются по дням, меню заменяется целиком, если передано.
func (s Shop) Merge(patch Shop) Shop {
	merged := s.clone()

	mergeString(&merged.Name, patch.Name)
	mergeString(&merged.Address, patch.Address)
	mergeString(&merged.Category, patch.Category)
	mergeString(&merged.Description, patch.Description)
	mergeString(&merged.Image, patch.Image)
	mergeString(&merged.Location, patch.Location)
	mergeString(&merged.Contact.Email, patch.Contact.Email)
	mergeString(&merged.Contact.Phone, patch.Contact.Phone)
	mergeString(&merged.PaymentAccountID, patch.PaymentAccountID)

	if patch.Menu != nil {
		merged.Menu = cloneMenu(patch.Menu)
	}
	if len(patch.OpeningHours) > 0 {
		if merged.OpeningHours == nil {
			merged.OpeningHours = make(map[Weekday]Hours, len(patch.OpeningHours))
		}
		for day, hours := range patch.OpeningHours {
			merged.OpeningHours[day] = hours
		}
	}

	return merged
}

func (s Shop) clone() Shop {
	s.Menu = cloneMenu(s.Menu)
	if s.OpeningHours != nil {
		hours := make(map[Weekday]Hours, len(s.OpeningHours))
		for day, h := range s.OpeningHours {
			hours[day] = h
		}
		s.OpeningHours = hours
	}
	return s
}

// Clone возвращает глубокую копию магазина.
func (s Shop) Clone() Shop {
	return s.clone()
}

func cloneMenu(menu []MenuItem) []MenuItem {
	if menu == nil {
		return nil
	}
	result := make([]MenuItem, len(menu))
	for i, item := range menu {
		result[i] = item
		if item.OptionCategories != nil {
			categories := make([]OptionCategory, len(item.OptionCategories))
			for j, category := range item.OptionCategories {
				categories[j] = OptionCategory{
					Name:    category.Name,
					Options: append([]PricedOption(nil), category.Options...),
				}
			}
			result[i].OptionCategories = categories
		}
	}
	return result
}

func mergeString(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}
