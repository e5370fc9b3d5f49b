package product

import (
	"context"
	"fmt"

	"ourofino-storefront/internal/domain"
	productrepo "ourofino-storefront/internal/repository/product"
)

const showcaseField = "destaque_vitrine"

type Service struct {
	repo productrepo.Repository
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, params productrepo.ListParams) ([]domain.Product, error) {
	return s.repo.List(ctx, params)
}

// Showcase lists products flagged for the home page.
func (s *Service) Showcase(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx, productrepo.ListParams{
		Filters: []productrepo.Filter{{Field: showcaseField, Operator: "$eq", Value: "true"}},
	})
}

func (s *Service) ByCollection(ctx context.Context, collectionID int) ([]domain.Product, error) {
	return s.repo.List(ctx, productrepo.ListParams{
		Filters: []productrepo.Filter{{Field: "collection.id", Operator: "$eq", Value: fmt.Sprint(collectionID)}},
	})
}

func (s *Service) Get(ctx context.Context, id int) (*domain.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Priced is a product together with the price and stock for a chosen size.
type Priced struct {
	Product    domain.Product
	Size       string
	PriceCents *int64
	Stock      int
}

// Resolve fetches a product and prices it for size. Products with variants
// require a size covered by one of them.
func (s *Service) Resolve(ctx context.Context, id int, size string) (*Priced, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: product %d is not available", domain.ErrInvalidInput, id)
	}
	out := &Priced{Product: *p}
	if !p.HasVariants() {
		out.PriceCents = p.PriceFor("")
		return out, nil
	}
	if _, ok := p.ResolveVariant(size); !ok {
		return nil, fmt.Errorf("%w: size %q not offered for product %d", domain.ErrInvalidInput, size, id)
	}
	out.Size = size
	out.PriceCents = p.PriceFor(size)
	out.Stock = p.StockFor(size)
	return out, nil
}
