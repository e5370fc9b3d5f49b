package order

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

const (
	orders     = "orders"
	orderItems = "order-items"
)

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

type orderAttrs struct {
	Status           string          `json:"status"`
	OrderDate        time.Time       `json:"order_date"`
	Total            float64         `json:"total"`
	TotalFrete       float64         `json:"total_frete"`
	TransportadoraID int             `json:"transportadora_id"`
	EnderecoEntrega  string          `json:"endereco_entrega"`
	LinkPayment      string          `json:"link_payment"`
	PaymentID        string          `json:"payment_id"`
	Customer         strapi.Relation `json:"customer"`
}

type itemAttrs struct {
	Subtotal float64         `json:"subtotal"`
	Quantity int             `json:"quantity"`
	Size     *int            `json:"size"`
	Order    strapi.Relation `json:"order"`
	Product  strapi.Relation `json:"product"`
}

func (r *strapiRepo) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if o.Status == "" {
		o.Status = domain.OrderPending
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	data := map[string]any{
		"customer":          strapi.Connect(o.CustomerID),
		"status":            string(o.Status),
		"order_date":        o.OrderDate.Format(time.RFC3339),
		"total":             domain.Amount(o.TotalCents),
		"total_frete":       domain.Amount(o.ShippingCents),
		"transportadora_id": o.CarrierID,
		"link_payment":      o.PaymentLink,
		"payment_id":        o.PaymentID,
	}
	if o.DeliveryAddress != nil {
		raw, err := json.Marshal(o.DeliveryAddress)
		if err != nil {
			return nil, err
		}
		data["endereco_entrega"] = string(raw)
	}
	e, err := r.client.Create(ctx, orders, data)
	if err != nil {
		return nil, err
	}
	o.ID = e.ID
	return &o, nil
}

func (r *strapiRepo) CreateItem(ctx context.Context, item domain.OrderItem) (*domain.OrderItem, error) {
	data := map[string]any{
		"order":    strapi.Connect(item.OrderID),
		"product":  strapi.Connect(item.ProductID),
		"subtotal": domain.Amount(item.SubtotalCents),
		"quantity": item.Quantity,
		"size":     item.Size,
	}
	e, err := r.client.Create(ctx, orderItems, data)
	if err != nil {
		return nil, err
	}
	item.ID = e.ID
	return &item, nil
}

func (r *strapiRepo) UpdateStatus(ctx context.Context, id int, status domain.OrderStatus) error {
	_, err := r.client.Update(ctx, orders, id, map[string]any{"status": string(status)})
	return err
}

func (r *strapiRepo) ListByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	resp, err := r.client.List(ctx, orders, strapi.NewQuery().
		Filter("customer.email", strapi.Eq, strings.TrimSpace(email)).
		Sort("order_date", true).
		Populate("*"))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return []domain.Order{}, nil
	}

	out := make([]domain.Order, 0, len(resp.Data))
	index := make(map[int]int, len(resp.Data))
	ids := make([]string, 0, len(resp.Data))
	for _, e := range resp.Data {
		o, err := r.orderFromEntity(e)
		if err != nil {
			r.logger.Warn("order repo: skip undecodable order", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		index[o.ID] = len(out)
		out = append(out, o)
		ids = append(ids, strconv.Itoa(o.ID))
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.client.List(ctx, orderItems, strapi.NewQuery().
		Filter("order.id", strapi.In, strings.Join(ids, ",")).
		Populate("*"))
	if err != nil {
		return nil, err
	}
	for _, e := range items.Data {
		var a itemAttrs
		if err := e.Decode(&a); err != nil || a.Order.Data == nil {
			r.logger.Warn("order repo: skip undecodable item", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		pos, ok := index[a.Order.Data.ID]
		if !ok {
			continue
		}
		item := domain.OrderItem{
			ID:            e.ID,
			OrderID:       a.Order.Data.ID,
			SubtotalCents: domain.Cents(a.Subtotal),
			Quantity:      a.Quantity,
			Size:          a.Size,
		}
		if a.Product.Data != nil {
			item.ProductID = a.Product.Data.ID
			var p struct {
				Name string `json:"name"`
			}
			if err := a.Product.Data.Decode(&p); err == nil {
				item.ProductName = p.Name
			}
		}
		out[pos].Items = append(out[pos].Items, item)
	}
	for i := range out {
		sort.Slice(out[i].Items, func(a, b int) bool { return out[i].Items[a].ID < out[i].Items[b].ID })
	}
	return out, nil
}

func (r *strapiRepo) orderFromEntity(e strapi.Entity) (domain.Order, error) {
	var a orderAttrs
	if err := e.Decode(&a); err != nil {
		return domain.Order{}, err
	}
	o := domain.Order{
		ID:            e.ID,
		Status:        domain.OrderStatus(a.Status),
		OrderDate:     a.OrderDate,
		TotalCents:    domain.Cents(a.Total),
		ShippingCents: domain.Cents(a.TotalFrete),
		CarrierID:     a.TransportadoraID,
		PaymentLink:   a.LinkPayment,
		PaymentID:     a.PaymentID,
	}
	if a.Customer.Data != nil {
		o.CustomerID = a.Customer.Data.ID
	}
	if a.EnderecoEntrega != "" {
		var addr domain.Address
		if err := json.Unmarshal([]byte(a.EnderecoEntrega), &addr); err != nil {
			r.logger.Debug("order repo: delivery address is not JSON", zap.Int("id", e.ID))
		} else {
			o.DeliveryAddress = &addr
		}
	}
	return o, nil
}
