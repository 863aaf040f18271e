package directory

import (
	"encoding/json"
	"errors"
	"fmt"
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

// Rating is the catalog's review summary: mean score and number of votes.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

type productJSON struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Title       string          `json:"title"`
	Price       json.Number     `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
	Rating      *Rating         `json:"rating,omitempty"`
}

func (p Product) MarshalJSON() ([]byte, error) {
	id, err := json.Marshal(p.ID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(productJSON{
		ID:          id,
		Title:       p.Title,
		Price:       json.Number(p.Price.String()),
		Description: p.Description,
		Image:       p.Image,
		Category:    p.Category,
		Rating:      &p.Rating,
	})
}

// UnmarshalJSON accepts ids issued as JSON strings or numbers; catalogs
// differ on this.
func (p *Product) UnmarshalJSON(b []byte) error {
	var w productJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	id, err := decodeID(w.ID)
	if err != nil {
		return err
	}
	price := decimal.Zero
	if w.Price != "" {
		if price, err = decimal.NewFromString(w.Price.String()); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}

	*p = Product{
		ID:          id,
		Title:       w.Title,
		Price:       price,
		Description: w.Description,
		Image:       w.Image,
		Category:    w.Category,
	}
	if w.Rating != nil {
		p.Rating = *w.Rating
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id: %w", err)
	}
	return n.String(), nil
}

// NewProduct holds the fields of a product to create. The catalog issues
// the id.
type NewProduct struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
}

func (n NewProduct) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidProduct)
	}
	if n.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

func (n NewProduct) wire() productJSON {
	return productJSON{
		Title:       n.Title,
		Price:       json.Number(n.Price.String()),
		Description: n.Description,
		Image:       n.Image,
		Category:    n.Category,
	}
}

// ProductPatch names each updatable field; nil means unchanged.
type ProductPatch struct {
	Title       *string          `json:"title,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Description *string          `json:"description,omitempty"`
	Image       *string          `json:"image,omitempty"`
	Category    *string          `json:"category,omitempty"`
}

func (p ProductPatch) Validate() error {
	if p.empty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidProduct)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidProduct)
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

func (p ProductPatch) empty() bool {
	return p.Title == nil && p.Price == nil && p.Description == nil && p.Image == nil && p.Category == nil
}

func (p ProductPatch) apply(prod Product) Product {
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

// wire renders only the set fields, with price as a bare number.
func (p ProductPatch) wire() map[string]any {
	m := make(map[string]any, 5)
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Price != nil {
		m["price"] = json.Number(p.Price.String())
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.Image != nil {
		m["image"] = *p.Image
	}
	if p.Category != nil {
		m["category"] = *p.Category
	}
	return m
}

// merge overlays the fields the catalog echoed back onto the cached record.
// Zero-valued fields in the reply are treated as absent.
func merge(cached, reply Product) Product {
	if reply.Title != "" {
		cached.Title = reply.Title
	}
	if !reply.Price.IsZero() {
		cached.Price = reply.Price
	}
	if reply.Description != "" {
		cached.Description = reply.Description
	}
	if reply.Image != "" {
		cached.Image = reply.Image
	}
	if reply.Category != "" {
		cached.Category = reply.Category
	}
	if reply.Rating != (Rating{}) {
		cached.Rating = reply.Rating
	}
	return cached
}
