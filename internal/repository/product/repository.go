package product

import (
	"context"

	"ourofino-storefront/internal/domain"
)

// Filter is one catalog query clause: a dotted field path, an operator such as
// "$eq" or "$containsi", and a value.
type Filter struct {
	Field    string
	Operator string
	Value    string
}

type ListParams struct {
	Filters  []Filter
	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

type Repository interface {
	List(ctx context.Context, params ListParams) ([]domain.Product, error)
	GetByID(ctx context.Context, id int) (*domain.Product, error)
	Upsert(ctx context.Context, p domain.Product) (*domain.Product, error)
}
