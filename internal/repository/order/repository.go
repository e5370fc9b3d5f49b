package order

import (
	"context"

	"ourofino-storefront/internal/domain"
)

// Repository stores orders and their line items.
type Repository interface {
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
	CreateItem(ctx context.Context, item domain.OrderItem) (*domain.OrderItem, error)
	UpdateStatus(ctx context.Context, id int, status domain.OrderStatus) error
	// ListByCustomerEmail returns the customer's orders with items attached,
	// newest first.
	ListByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error)
}
