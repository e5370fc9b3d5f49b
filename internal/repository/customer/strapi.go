package customer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

const (
	customers = "customers"
	addresses = "enderecos"
)

type strapiRepo struct {
	client *strapi.Client
	logger *zap.Logger
}

// NewStrapi returns a Repository backed by the content backend customer directory.
func NewStrapi(client *strapi.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &strapiRepo{client: client, logger: logger}
}

type addressAttrs struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
}

type customerAttrs struct {
	FirstName string              `json:"first_name"`
	LastName  string              `json:"last_name"`
	Email     string              `json:"email"`
	Phone     string              `json:"phone"`
	CPF       string              `json:"cpf"`
	ClerkID   string              `json:"clerk_id"`
	Address   *addressAttrs       `json:"address"`
	Enderecos strapi.RelationList `json:"enderecos"`
	CreatedAt time.Time           `json:"createdAt"`
}

func addressFromAttrs(id int, a addressAttrs) domain.Address {
	return domain.Address{
		ID:           id,
		Street:       a.Street,
		Number:       a.Number,
		Complement:   a.Complement,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		ZipCode:      a.ZipCode,
		Country:      a.Country,
	}
}

func addressData(a domain.Address) map[string]any {
	return map[string]any{
		"street":       a.Street,
		"number":       a.Number,
		"complement":   a.Complement,
		"neighborhood": a.Neighborhood,
		"city":         a.City,
		"state":        a.State,
		"zipCode":      a.ZipCode,
		"country":      a.Country,
	}
}

func (r *strapiRepo) toDomain(e strapi.Entity) (*domain.Customer, error) {
	var a customerAttrs
	if err := e.Decode(&a); err != nil {
		return nil, err
	}
	c := &domain.Customer{
		ID:        e.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Phone:     a.Phone,
		CPF:       a.CPF,
		ClerkID:   a.ClerkID,
		CreatedAt: a.CreatedAt,
	}
	if a.Address != nil {
		addr := addressFromAttrs(0, *a.Address)
		c.Address = &addr
	}
	for _, rel := range a.Enderecos.Data {
		var aa addressAttrs
		if err := rel.Decode(&aa); err != nil {
			r.logger.Warn("customer repo: decode address", zap.Int("customer", e.ID), zap.Int("address", rel.ID), zap.Error(err))
			continue
		}
		c.Addresses = append(c.Addresses, addressFromAttrs(rel.ID, aa))
	}
	return c, nil
}

func customerData(c domain.Customer) map[string]any {
	data := map[string]any{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      strings.ToLower(strings.TrimSpace(c.Email)),
		"phone":      c.Phone,
	}
	if c.CPF != "" {
		data["cpf"] = c.CPF
	}
	if c.ClerkID != "" {
		data["clerk_id"] = c.ClerkID
	}
	if c.Address != nil {
		data["address"] = addressData(*c.Address)
	}
	return data
}

func (r *strapiRepo) findOne(ctx context.Context, field, value string) (*domain.Customer, error) {
	resp, err := r.client.List(ctx, customers, strapi.NewQuery().Filter(field, strapi.Eq, value).Populate("*"))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, domain.ErrNotFound
	}
	return r.toDomain(resp.Data[0])
}

func (r *strapiRepo) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return r.findOne(ctx, "email", strings.TrimSpace(email))
}

func (r *strapiRepo) GetByClerkID(ctx context.Context, clerkID string) (*domain.Customer, error) {
	return r.findOne(ctx, "clerk_id", clerkID)
}

func (r *strapiRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	e, err := r.client.Create(ctx, customers, customerData(c))
	if err != nil {
		return nil, err
	}
	return r.toDomain(*e)
}

func (r *strapiRepo) Update(ctx context.Context, id int, c domain.Customer) (*domain.Customer, error) {
	e, err := r.client.Update(ctx, customers, id, customerData(c))
	if err != nil {
		return nil, err
	}
	return r.toDomain(*e)
}

func (r *strapiRepo) Delete(ctx context.Context, id int) error {
	return r.client.Delete(ctx, customers, id)
}

func (r *strapiRepo) CreateAddress(ctx context.Context, customerID int, a domain.Address) (*domain.Address, error) {
	data := addressData(a)
	data["customer"] = strapi.Connect(customerID)
	e, err := r.client.Create(ctx, addresses, data)
	if err != nil {
		return nil, err
	}
	return decodeAddress(*e)
}

func (r *strapiRepo) UpdateAddress(ctx context.Context, id int, a domain.Address) (*domain.Address, error) {
	e, err := r.client.Update(ctx, addresses, id, addressData(a))
	if err != nil {
		return nil, err
	}
	return decodeAddress(*e)
}

func decodeAddress(e strapi.Entity) (*domain.Address, error) {
	var a addressAttrs
	if err := e.Decode(&a); err != nil {
		return nil, err
	}
	out := addressFromAttrs(e.ID, a)
	return &out, nil
}
