package customer

import (
	"context"

	"ourofino-storefront/internal/domain"
)

// Repository persists and fetches customers. Lookups return domain.ErrNotFound
// when nothing matches.
type Repository interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	Update(ctx context.Context, id int, c domain.Customer) (*domain.Customer, error)
	Delete(ctx context.Context, id int) error
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetByClerkID(ctx context.Context, clerkID string) (*domain.Customer, error)
	CreateAddress(ctx context.Context, customerID int, a domain.Address) (*domain.Address, error)
	UpdateAddress(ctx context.Context, id int, a domain.Address) (*domain.Address, error)
}
