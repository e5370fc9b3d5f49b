package domain

// PreferenceItem is one line sent to the payment gateway.
type PreferenceItem struct {
	ID             string
	Title          string
	Quantity       int
	UnitPriceCents int64
}

type Payer struct {
	Name    string
	Email   string
	Address *Address
}

// PreferenceRequest describes a hosted checkout session.
type PreferenceRequest struct {
	Items                []PreferenceItem
	Payer                Payer
	DefaultPaymentMethod string
	ShippingCents        int64
}

// Preference is the gateway response: an opaque id plus hosted checkout URLs.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CheckoutURL picks the sandbox URL when requested and available.
func (p Preference) CheckoutURL(sandbox bool) string {
	if sandbox && p.SandboxInitPoint != "" {
		return p.SandboxInitPoint
	}
	return p.InitPoint
}

type PaymentMethod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PaymentTypeID string `json:"payment_type_id"`
	Status        string `json:"status"`
	Thumbnail     string `json:"secure_thumbnail,omitempty"`
}
