package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// SizeStock is the stock count of one ring size inside a variant.
type SizeStock struct {
	Size  int `json:"size"`
	Stock int `json:"stock"`
}

// Variant is one price tier (P/M/G) covering a range of sizes.
type Variant struct {
	Tier        string      `json:"tier"`
	PriceCents  int64       `json:"priceCents"`
	Description string      `json:"description,omitempty"`
	MinSize     int         `json:"minSize"`
	MaxSize     int         `json:"maxSize"`
	Stock       []SizeStock `json:"stock,omitempty"`
}

// Contains reports whether size falls inside the variant range.
func (v Variant) Contains(size int) bool {
	return size >= v.MinSize && size <= v.MaxSize
}

type Product struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Active            bool      `json:"active"`
	Hot               bool      `json:"hot"`
	Showcase          bool      `json:"showcase"`
	PrimaryPriceCents *int64    `json:"primaryPriceCents,omitempty"`
	Variants          []Variant `json:"variants,omitempty"`
	Width             float64   `json:"width"`
	Height            float64   `json:"height"`
	Length            float64   `json:"length"`
	Weight            float64   `json:"weight"`
	Material          string    `json:"material,omitempty"`
	Images            []string  `json:"images,omitempty"`
	CollectionID      int       `json:"collectionId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HasVariants reports whether the product is priced per size range.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// ResolveVariant returns the variant whose range contains size.
func (p Product) ResolveVariant(size string) (*Variant, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(size))
	if err != nil {
		return nil, false
	}
	for i := range p.Variants {
		if p.Variants[i].Contains(n) {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// PriceFor resolves the unit price for a size. A matching variant overrides the flat price.
// Returns nil when neither is available.
func (p Product) PriceFor(size string) *int64 {
	if v, ok := p.ResolveVariant(size); ok {
		price := v.PriceCents
		return &price
	}
	return p.PrimaryPriceCents
}

// StockFor returns the stock recorded for size, or 0.
func (p Product) StockFor(size string) int {
	v, ok := p.ResolveVariant(size)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(size))
	for _, s := range v.Stock {
		if s.Size == n {
			return s.Stock
		}
	}
	return 0
}

// Snapshot captures the display attributes stored on a cart line.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Name:        p.Name,
		Images:      append([]string(nil), p.Images...),
		HasVariants: p.HasVariants(),
		Material:    p.Material,
		Width:       p.Width,
		Height:      p.Height,
		Length:      p.Length,
		Weight:      p.Weight,
	}
}

// Cents converts a decimal currency amount to integer cents.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Amount converts cents back to a decimal amount for outbound APIs.
func Amount(cents int64) float64 {
	return float64(cents) / 100
}
