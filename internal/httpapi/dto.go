package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type hoursDTO struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type pricedOptionDTO struct {
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

type optionCategoryDTO struct {
	Name    string            `json:"name"`
	Options []pricedOptionDTO `json:"options"`
}

type menuItemDTO struct {
	ID               string              `json:"id,omitempty"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	Image            string              `json:"image,omitempty"`
	ImageAlt         string              `json:"image_alt,omitempty"`
	PriceMinor       int64               `json:"price_minor"`
	InStock          bool                `json:"in_stock"`
	OptionCategories []optionCategoryDTO `json:"option_categories,omitempty"`
}

type shopDTO struct {
	ID               string              `json:"id,omitempty"`
	Name             string              `json:"name,omitempty"`
	Address          string              `json:"address,omitempty"`
	Category         string              `json:"category,omitempty"`
	Description      string              `json:"description,omitempty"`
	Image            string              `json:"image,omitempty"`
	Location         string              `json:"location,omitempty"`
	ContactEmail     string              `json:"contact_email,omitempty"`
	ContactPhone     string              `json:"contact_phone,omitempty"`
	Menu             []menuItemDTO       `json:"menu,omitempty"`
	OpeningHours     map[string]hoursDTO `json:"opening_hours,omitempty"`
	PaymentAccountID string              `json:"payment_account_id,omitempty"`
	CreatedAt        *time.Time          `json:"created_at,omitempty"`
	UpdatedAt        *time.Time          `json:"updated_at,omitempty"`
}

type productDTO struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

type orderDTO struct {
	ID           string       `json:"id"`
	ShopID       string       `json:"shop_id"`
	Status       string       `json:"status"`
	BuyerName    string       `json:"buyer_name"`
	PurchaseTime time.Time    `json:"purchase_time"`
	Products     []productDTO `json:"products"`
	PartyID      string       `json:"party_id,omitempty"`
	Version      int64        `json:"version"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

type orderDetailsDTO struct {
	Order    orderDTO           `json:"order"`
	Timeline []timelineEventDTO `json:"timeline"`
}

type ordersDTO struct {
	ShopID string     `json:"shop_id"`
	Orders []orderDTO `json:"orders"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type clerkDTO struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Image     string     `json:"image,omitempty"`
	Status    string     `json:"status,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type imageDTO struct {
	URL string `json:"url"`
}

func (m menuItemDTO) toDomain() domain.MenuItem {
	item := domain.MenuItem{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Image:       m.Image,
		ImageAlt:    m.ImageAlt,
		PriceMinor:  m.PriceMinor,
		InStock:     m.InStock,
	}
	for _, category := range m.OptionCategories {
		converted := domain.OptionCategory{Name: category.Name}
		for _, option := range category.Options {
			converted.Options = append(converted.Options, domain.PricedOption{Name: option.Name, PriceMinor: option.PriceMinor})
		}
		item.OptionCategories = append(item.OptionCategories, converted)
	}
	return item
}

func fromMenuItem(item domain.MenuItem) menuItemDTO {
	dto := menuItemDTO{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Image:       item.Image,
		ImageAlt:    item.ImageAlt,
		PriceMinor:  item.PriceMinor,
		InStock:     item.InStock,
	}
	for _, category := range item.OptionCategories {
		converted := optionCategoryDTO{Name: category.Name, Options: make([]pricedOptionDTO, 0, len(category.Options))}
		for _, option := range category.Options {
			converted.Options = append(converted.Options, pricedOptionDTO{Name: option.Name, PriceMinor: option.PriceMinor})
		}
		dto.OptionCategories = append(dto.OptionCategories, converted)
	}
	return dto
}

// toDomain сохраняет nil для отсутствующего меню, чтобы PATCH не затирал его.
func (s shopDTO) toDomain() domain.Shop {
	shop := domain.Shop{
		ID:               s.ID,
		Name:             s.Name,
		Address:          s.Address,
		Category:         s.Category,
		Description:      s.Description,
		Image:            s.Image,
		Location:         s.Location,
		Contact:          domain.ContactInfo{Email: s.ContactEmail, Phone: s.ContactPhone},
		PaymentAccountID: s.PaymentAccountID,
	}
	if s.Menu != nil {
		shop.Menu = make([]domain.MenuItem, 0, len(s.Menu))
		for _, item := range s.Menu {
			shop.Menu = append(shop.Menu, item.toDomain())
		}
	}
	if len(s.OpeningHours) > 0 {
		shop.OpeningHours = make(map[domain.Weekday]domain.Hours, len(s.OpeningHours))
		for day, hours := range s.OpeningHours {
			shop.OpeningHours[domain.Weekday(day)] = domain.Hours{Open: hours.Open, Close: hours.Close}
		}
	}
	return shop
}

func fromShop(shop domain.Shop) shopDTO {
	dto := shopDTO{
		ID:               shop.ID,
		Name:             shop.Name,
		Address:          shop.Address,
		Category:         shop.Category,
		Description:      shop.Description,
		Image:            shop.Image,
		Location:         shop.Location,
		ContactEmail:     shop.Contact.Email,
		ContactPhone:     shop.Contact.Phone,
		Menu:             make([]menuItemDTO, 0, len(shop.Menu)),
		PaymentAccountID: shop.PaymentAccountID,
		CreatedAt:        timePtr(shop.CreatedAt),
		UpdatedAt:        timePtr(shop.UpdatedAt),
	}
	for _, item := range shop.Menu {
		dto.Menu = append(dto.Menu, fromMenuItem(item))
	}
	if len(shop.OpeningHours) > 0 {
		dto.OpeningHours = make(map[string]hoursDTO, len(shop.OpeningHours))
		for day, hours := range shop.OpeningHours {
			dto.OpeningHours[string(day)] = hoursDTO{Open: hours.Open, Close: hours.Close}
		}
	}
	return dto
}

func fromOrder(order domain.Order) orderDTO {
	dto := orderDTO{
		ID:           order.ID,
		ShopID:       order.ShopID,
		Status:       string(order.Status),
		BuyerName:    order.BuyerName,
		PurchaseTime: order.PurchaseTime,
		Products:     make([]productDTO, 0, len(order.Products)),
		PartyID:      order.PartyID,
		Version:      order.Version,
		UpdatedAt:    order.UpdatedAt,
	}
	for _, product := range order.Products {
		dto.Products = append(dto.Products, productDTO{Name: product.Name, Options: product.Options})
	}
	return dto
}

func fromClerk(clerk domain.Clerk) clerkDTO {
	return clerkDTO{
		ID:        clerk.ID,
		Email:     clerk.Email,
		Name:      clerk.Name,
		Image:     clerk.Image,
		Status:    string(clerk.Status),
		CreatedAt: timePtr(clerk.CreatedAt),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
