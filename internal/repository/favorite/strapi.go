package favorite

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

const favorites = "favorites"

type strapiRepo struct {
	client *strapi.Client
	logger *zap.Logger
}

func NewStrapi(client *strapi.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &strapiRepo{client: client, logger: logger}
}

type favoriteAttrs struct {
	CreatedAt time.Time       `json:"createdAt"`
	Customer  strapi.Relation `json:"customer"`
	Product   strapi.Relation `json:"product"`
}

type productAttrs struct {
	Name   string       `json:"name"`
	Images strapi.Media `json:"images"`
}

func (r *strapiRepo) Add(ctx context.Context, customerID, productID int) (*domain.Favorite, error) {
	e, err := r.client.Create(ctx, favorites, map[string]any{
		"customer": strapi.Connect(customerID),
		"product":  strapi.Connect(productID),
	})
	if err != nil {
		return nil, err
	}
	return &domain.Favorite{ID: e.ID, CustomerID: customerID, ProductID: productID, CreatedAt: time.Now().UTC()}, nil
}

func (r *strapiRepo) ListByEmail(ctx context.Context, email string) ([]Entry, error) {
	resp, err := r.client.List(ctx, favorites, strapi.NewQuery().
		Filter("customer.email", strapi.Eq, strings.TrimSpace(email)).
		Populate("product.images,customer"))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(resp.Data))
	for _, e := range resp.Data {
		var a favoriteAttrs
		if err := e.Decode(&a); err != nil || a.Product.Data == nil {
			r.logger.Warn("favorite repo: skip entry without product", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		fp := Entry{Favorite: domain.Favorite{ID: e.ID, ProductID: a.Product.Data.ID, CreatedAt: a.CreatedAt}}
		if a.Customer.Data != nil {
			fp.CustomerID = a.Customer.Data.ID
		}
		var p productAttrs
		if err := a.Product.Data.Decode(&p); err == nil {
			fp.ProductName = p.Name
			fp.Images = p.Images.URLs()
		}
		out = append(out, fp)
	}
	return out, nil
}

func (r *strapiRepo) Remove(ctx context.Context, email string, productID int) error {
	resp, err := r.client.List(ctx, favorites, strapi.NewQuery().
		Filter("customer.email", strapi.Eq, strings.TrimSpace(email)).
		Filter("product.id", strapi.Eq, strconv.Itoa(productID)))
	if err != nil {
		return err
	}
	if len(resp.Data) == 0 {
		return domain.ErrNotFound
	}
	for _, e := range resp.Data {
		if err := r.client.Delete(ctx, favorites, e.ID); err != nil {
			return err
		}
	}
	return nil
}
