package domain

import (
	"encoding/json"
	"strings"
)

// HandleAll is the sentinel collection handle for the entire catalog. It is
// used by the search index warm-up and background refresh, never by the
// per-collection loader.
const HandleAll = "all"

// Price is a decimal amount carried as a string. The upstream sync endpoint
// sends prices either as JSON strings ("12.99") or as bare numbers (12.99);
// both forms decode into the same canonical string representation.
type Price string

// UnmarshalJSON accepts both string and numeric price encodings.
func (p *Price) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Price(n.String())
	return nil
}

// Variant is a purchasable variation of a product.
type Variant struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Price     Price  `json:"price"`
	Available bool   `json:"available"`
}

// Product is the read-only projection served to storefronts. List order is
// authoritative: it mirrors the upstream merchandising order and is preserved
// end-to-end through caching and indexing.
type Product struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Price             Price     `json:"price"`
	Image             string    `json:"image,omitempty"`
	Images            []string  `json:"images,omitempty"`
	Category          string    `json:"category,omitempty"`
	Vendor            string    `json:"vendor,omitempty"`
	ProductType       string    `json:"product_type,omitempty"`
	CollectionHandles []string  `json:"collection_handles,omitempty"`
	Variants          []Variant `json:"variants,omitempty"`
}

// InCollection reports whether the product belongs to the given collection handle.
func (p *Product) InCollection(handle string) bool {
	for _, h := range p.CollectionHandles {
		if h == handle {
			return true
		}
	}
	return false
}

// NormalizeProducts filters out malformed records (empty id or blank title)
// and de-nils slice fields, so downstream scoring never sees partial shapes.
// Order of the surviving records is preserved.
func NormalizeProducts(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" || strings.TrimSpace(p.Title) == "" {
			continue
		}
		if p.Images == nil {
			p.Images = []string{}
		}
		if p.CollectionHandles == nil {
			p.CollectionHandles = []string{}
		}
		if p.Variants == nil {
			p.Variants = []Variant{}
		}
		out = append(out, p)
	}
	return out
}
