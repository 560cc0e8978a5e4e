package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// shopDocument: JSONB-представление профиля магазина.
type shopDocument struct {
	Name             string                   `json:"name"`
	Address          string                   `json:"address"`
	Category         string                   `json:"category,omitempty"`
	Description      string                   `json:"description,omitempty"`
	Image            string                   `json:"image,omitempty"`
	Location         string                   `json:"location,omitempty"`
	ContactEmail     string                   `json:"contact_email,omitempty"`
	ContactPhone     string                   `json:"contact_phone,omitempty"`
	Menu             []menuItemDocument       `json:"menu"`
	OpeningHours     map[string]hoursDocument `json:"opening_hours,omitempty"`
	PaymentAccountID string                   `json:"payment_account_id,omitempty"`
}

type menuItemDocument struct {
	ID               string                   `json:"id"`
	Name             string                   `json:"name"`
	Description      string                   `json:"description,omitempty"`
	Image            string                   `json:"image,omitempty"`
	ImageAlt         string                   `json:"image_alt,omitempty"`
	PriceMinor       int64                    `json:"price_minor"`
	InStock          bool                     `json:"in_stock"`
	OptionCategories []optionCategoryDocument `json:"option_categories,omitempty"`
}

type optionCategoryDocument struct {
	Name    string                 `json:"name"`
	Options []pricedOptionDocument `json:"options"`
}

type pricedOptionDocument struct {
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
}

type hoursDocument struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type shopRepository struct {
	db *sql.DB
}

// NewShopRepository создаёт PostgreSQL-реализацию ShopRepository (профиль хранится в JSONB).
func NewShopRepository(store *Store) domain.ShopRepository {
	return &shopRepository{db: store.DB()}
}

func (r *shopRepository) Create(ctx context.Context, shop domain.Shop) (domain.Shop, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if shop.ID == "" {
		shop.ID = uuid.NewString()
	}
	profile, err := json.Marshal(toShopDocument(shop))
	if err != nil {
		return domain.Shop{}, fmt.Errorf("marshal shop profile: %w", err)
	}

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO shops (id, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, shop.ID, profile, now); err != nil {
		if isUniqueViolation(err) {
			return domain.Shop{}, fmt.Errorf("%w: %s", domain.ErrShopAlreadyExists, shop.ID)
		}
		return domain.Shop{}, fmt.Errorf("insert shop: %w", err)
	}

	shop.CreatedAt = now
	shop.UpdatedAt = now
	return shop, nil
}

func (r *shopRepository) Get(ctx context.Context, id string) (domain.Shop, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	var (
		profile []byte
		shop    domain.Shop
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, profile, created_at, updated_at FROM shops WHERE id = $1
	`, id).Scan(&shop.ID, &profile, &shop.CreatedAt, &shop.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("select shop: %w", err)
	}

	var doc shopDocument
	if err := json.Unmarshal(profile, &doc); err != nil {
		return domain.Shop{}, fmt.Errorf("unmarshal shop profile: %w", err)
	}
	fromShopDocument(&shop, doc)
	return shop, nil
}

func (r *shopRepository) Save(ctx context.Context, shop domain.Shop) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	profile, err := json.Marshal(toShopDocument(shop))
	if err != nil {
		return fmt.Errorf("marshal shop profile: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO shops (id, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET profile = EXCLUDED.profile,
		    updated_at = EXCLUDED.updated_at
	`, shop.ID, profile, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}

	return nil
}

func toShopDocument(shop domain.Shop) shopDocument {
	doc := shopDocument{
		Name:             shop.Name,
		Address:          shop.Address,
		Category:         shop.Category,
		Description:      shop.Description,
		Image:            shop.Image,
		Location:         shop.Location,
		ContactEmail:     shop.Contact.Email,
		ContactPhone:     shop.Contact.Phone,
		Menu:             make([]menuItemDocument, 0, len(shop.Menu)),
		PaymentAccountID: shop.PaymentAccountID,
	}
	for _, item := range shop.Menu {
		itemDoc := menuItemDocument{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Image:       item.Image,
			ImageAlt:    item.ImageAlt,
			PriceMinor:  item.PriceMinor,
			InStock:     item.InStock,
		}
		for _, category := range item.OptionCategories {
			categoryDoc := optionCategoryDocument{Name: category.Name, Options: make([]pricedOptionDocument, 0, len(category.Options))}
			for _, option := range category.Options {
				categoryDoc.Options = append(categoryDoc.Options, pricedOptionDocument{Name: option.Name, PriceMinor: option.PriceMinor})
			}
			itemDoc.OptionCategories = append(itemDoc.OptionCategories, categoryDoc)
		}
		doc.Menu = append(doc.Menu, itemDoc)
	}
	if len(shop.OpeningHours) > 0 {
		doc.OpeningHours = make(map[string]hoursDocument, len(shop.OpeningHours))
		for day, hours := range shop.OpeningHours {
			doc.OpeningHours[string(day)] = hoursDocument{Open: hours.Open, Close: hours.Close}
		}
	}
	return doc
}

func fromShopDocument(shop *domain.Shop, doc shopDocument) {
	shop.Name = doc.Name
	shop.Address = doc.Address
	shop.Category = doc.Category
	shop.Description = doc.Description
	shop.Image = doc.Image
	shop.Location = doc.Location
	shop.Contact = domain.ContactInfo{Email: doc.ContactEmail, Phone: doc.ContactPhone}
	shop.PaymentAccountID = doc.PaymentAccountID

	shop.Menu = make([]domain.MenuItem, 0, len(doc.Menu))
	for _, itemDoc := range doc.Menu {
		item := domain.MenuItem{
			ID:          itemDoc.ID,
			Name:        itemDoc.Name,
			Description: itemDoc.Description,
			Image:       itemDoc.Image,
			ImageAlt:    itemDoc.ImageAlt,
			PriceMinor:  itemDoc.PriceMinor,
			InStock:     itemDoc.InStock,
		}
		for _, categoryDoc := range itemDoc.OptionCategories {
			category := domain.OptionCategory{Name: categoryDoc.Name}
			for _, option := range categoryDoc.Options {
				category.Options = append(category.Options, domain.PricedOption{Name: option.Name, PriceMinor: option.PriceMinor})
			}
			item.OptionCategories = append(item.OptionCategories, category)
		}
		shop.Menu = append(shop.Menu, item)
	}

	if len(doc.OpeningHours) > 0 {
		shop.OpeningHours = make(map[domain.Weekday]domain.Hours, len(doc.OpeningHours))
		for day, hours := range doc.OpeningHours {
			shop.OpeningHours[domain.Weekday(day)] = domain.Hours{Open: hours.Open, Close: hours.Close}
		}
	}
}

var _ domain.ShopRepository = (*shopRepository)(nil)
