package domain

// CheckoutStep is the position in the linear checkout wizard.
type CheckoutStep int

const (
	StepReview CheckoutStep = iota
	StepAddress
	StepPayment
	StepSummary
)

// Clamp bounds a step to [StepReview, StepSummary].
func (s CheckoutStep) Clamp() CheckoutStep {
	if s < StepReview {
		return StepReview
	}
	if s > StepSummary {
		return StepSummary
	}
	return s
}

func (s CheckoutStep) String() string {
	switch s {
	case StepReview:
		return "review"
	case StepAddress:
		return "address"
	case StepPayment:
		return "payment"
	case StepSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// ProductSnapshot is the display copy of a product taken when it was added to the cart.
type ProductSnapshot struct {
	Name        string   `json:"name"`
	Images      []string `json:"images,omitempty"`
	HasVariants bool     `json:"hasVariants"`
	Material    string   `json:"material,omitempty"`
	Width       float64  `json:"width,omitempty"`
	Height      float64  `json:"height,omitempty"`
	Length      float64  `json:"length,omitempty"`
	Weight      float64  `json:"weight,omitempty"`
}

// CartLine is keyed by (ProductID, Size). Size is empty for products without variants.
type CartLine struct {
	ProductID      int             `json:"productId"`
	Size           string          `json:"size"`
	Product        ProductSnapshot `json:"product"`
	Quantity       int             `json:"quantity"`
	UnitPriceCents int64           `json:"unitPriceCents"`
	SubtotalCents  int64           `json:"subtotalCents"`
}

// Recalc refreshes the derived subtotal.
func (l *CartLine) Recalc() {
	l.SubtotalCents = l.UnitPriceCents * int64(l.Quantity)
}

// CartState is the persisted cart aggregate.
type CartState struct {
	Lines          []CartLine   `json:"lines"`
	Step           CheckoutStep `json:"step"`
	OrderCompleted bool         `json:"orderCompleted"`
	Version        uint64       `json:"version"`
}

// TotalCents sums the line subtotals.
func (c CartState) TotalCents() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.SubtotalCents
	}
	return total
}

// ItemCount sums line quantities.
func (c CartState) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Clone returns a deep copy safe to hand to observers.
func (c CartState) Clone() CartState {
	out := c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, l := range c.Lines {
		if l.Product.Images != nil {
			l.Product.Images = append([]string(nil), l.Product.Images...)
		}
		out.Lines[i] = l
	}
	return out
}
