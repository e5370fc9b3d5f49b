package favorite

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	favrepo "ourofino-storefront/internal/repository/favorite"
)

// CustomerResolver finds or creates the directory entry for a shopper.
type CustomerResolver interface {
	ResolveOrCreate(ctx context.Context, c domain.Customer) (*domain.Customer, error)
}

type Service struct {
	repo      favrepo.Repository
	customers CustomerResolver
	logger    *zap.Logger
}

func New(repo favrepo.Repository, customers CustomerResolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, customers: customers, logger: logger}
}

// Add marks productID as a favorite of who. Adding a product twice returns the
// existing entry.
func (s *Service) Add(ctx context.Context, who domain.Customer, productID int) (*domain.Favorite, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: product id required", domain.ErrInvalidInput)
	}
	c, err := s.customers.ResolveOrCreate(ctx, who)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListByEmail(ctx, c.Email)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.ProductID == productID {
			fav := e.Favorite
			return &fav, nil
		}
	}
	fav, err := s.repo.Add(ctx, c.ID, productID)
	if err != nil {
		return nil, fmt.Errorf("add favorite: %w", err)
	}
	s.logger.Info("favorite added", zap.Int("customer_id", c.ID), zap.Int("product_id", productID))
	return fav, nil
}

func (s *Service) List(ctx context.Context, email string) ([]favrepo.Entry, error) {
	return s.repo.ListByEmail(ctx, email)
}

func (s *Service) Remove(ctx context.Context, email string, productID int) error {
	return s.repo.Remove(ctx, email, productID)
}
