package domain

import "time"

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
)

type Order struct {
	ID              int         `json:"id"`
	CustomerID      int         `json:"customerId"`
	Status          OrderStatus `json:"status"`
	OrderDate       time.Time   `json:"orderDate"`
	TotalCents      int64       `json:"totalCents"`
	ShippingCents   int64       `json:"shippingCents"`
	CarrierID       int         `json:"carrierId"`
	DeliveryAddress *Address    `json:"deliveryAddress,omitempty"`
	PaymentLink     string      `json:"paymentLink,omitempty"`
	PaymentID       string      `json:"paymentId,omitempty"`
	Items           []OrderItem `json:"items,omitempty"`
}

// OrderItem is one purchased line. Size is set only for products with variants.
type OrderItem struct {
	ID            int    `json:"id,omitempty"`
	OrderID       int    `json:"orderId"`
	ProductID     int    `json:"productId"`
	ProductName   string `json:"productName,omitempty"`
	SubtotalCents int64  `json:"subtotalCents"`
	Quantity      int    `json:"quantity"`
	Size          *int   `json:"size,omitempty"`
}

// Favorite links a customer to a product.
type Favorite struct {
	ID         int       `json:"id"`
	CustomerID int       `json:"customerId"`
	ProductID  int       `json:"productId"`
	CreatedAt  time.Time `json:"createdAt"`
}
