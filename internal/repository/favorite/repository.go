package favorite

import (
	"context"

	"ourofino-storefront/internal/domain"
)

// Repository tracks products a customer marked as favorite.
type Repository interface {
	Add(ctx context.Context, customerID, productID int) (*domain.Favorite, error)
	// ListByEmail returns favorites with the product attached.
	ListByEmail(ctx context.Context, email string) ([]Entry, error)
	// Remove deletes the entry for the customer and product. It returns
	// domain.ErrNotFound when none exists.
	Remove(ctx context.Context, email string, productID int) error
}

type Entry struct {
	domain.Favorite
	ProductName string   `json:"productName"`
	Images      []string `json:"images,omitempty"`
}
