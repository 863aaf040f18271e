package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidProduct = errors.New("invalid product")

type Product struct {
	ID          string
	Title       string
	Price       decimal.Decimal
	Description string
	Image       string
	Category    string
	Rating      Rating
}

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// productJSON is the fakestore-compatible wire shape; price is a bare
// JSON number.
type productJSON struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Category    string      `json:"category"`
	Rating      Rating      `json:"rating"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(productJSON{
		ID:          p.ID,
		Title:       p.Title,
		Price:       json.Number(p.Price.String()),
		Description: p.Description,
		Image:       p.Image,
		Category:    p.Category,
		Rating:      p.Rating,
	})
}

// Fields are the client-supplied attributes of a new product. Rating is
// accepted for imports and seeding; it is not patchable.
type Fields struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Rating      Rating          `json:"rating"`
}

func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return errors.Join(ErrInvalidProduct, errors.New("title required"))
	}
	if f.Price.IsNegative() {
		return errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
	}
	if f.Rating.Rate < 0 || f.Rating.Rate > 5 || f.Rating.Count < 0 {
		return errors.Join(ErrInvalidProduct, errors.New("rating out of range"))
	}
	return nil
}

// Patch is a partial update; nil fields are left as they are.
type Patch struct {
	Title       *string          `json:"title,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Description *string          `json:"description,omitempty"`
	Image       *string          `json:"image,omitempty"`
	Category    *string          `json:"category,omitempty"`
}

func (p Patch) Validate() error {
	if p.Title == nil && p.Price == nil && p.Description == nil && p.Image == nil && p.Category == nil {
		return errors.Join(ErrInvalidProduct, errors.New("no fields to update"))
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.Join(ErrInvalidProduct, errors.New("title must not be empty"))
	}
	if p.Price != nil && p.Price.IsNegative() {
		return errors.Join(ErrInvalidProduct, errors.New("price must not be negative"))
	}
	return nil
}

func (p Patch) Apply(prod Product) Product {
	if p.Title != nil {
		prod.Title = *p.Title
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Image != nil {
		prod.Image = *p.Image
	}
	if p.Category != nil {
		prod.Category = *p.Category
	}
	return prod
}

type Store interface {
	Ping(ctx context.Context) error
	ListSortedByID(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, bool, error)
	Create(ctx context.Context, f Fields) (Product, error)
	Update(ctx context.Context, id string, p Patch) (Product, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

func (f Fields) product(id string) Product {
	return Product{
		ID:          id,
		Title:       f.Title,
		Price:       f.Price,
		Description: f.Description,
		Image:       f.Image,
		Category:    f.Category,
		Rating:      f.Rating,
	}
}

// SeedIfEmpty creates items only when the store holds no products yet.
func SeedIfEmpty(ctx context.Context, s Store, items []Fields) error {
	existing, err := s.ListSortedByID(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, f := range items {
		if _, err := s.Create(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
