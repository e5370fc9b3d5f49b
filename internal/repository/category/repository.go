package category

import (
	"context"

	"ourofino-storefront/internal/domain"
)

type Repository interface {
	ListCollections(ctx context.Context) ([]domain.Collection, []domain.Category, error)
}
