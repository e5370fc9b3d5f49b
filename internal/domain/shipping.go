package domain

// Package is one parcel sent for a shipping quote.
type Package struct {
	ID                  string  `json:"id"`
	Width               float64 `json:"width"`
	Height              float64 `json:"height"`
	Length              float64 `json:"length"`
	Weight              float64 `json:"weight"`
	InsuranceValueCents int64   `json:"insuranceValueCents"`
	Quantity            int     `json:"quantity"`
}

// ShippingOption is one carrier offer.
type ShippingOption struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PriceCents    int64  `json:"priceCents"`
	DiscountCents int64  `json:"discountCents"`
	DeliveryDays  int    `json:"deliveryDays"`
	CompanyName   string `json:"companyName"`
	CompanyLogo   string `json:"companyLogo,omitempty"`
}
