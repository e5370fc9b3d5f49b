// Package checkout runs the terminal purchase sequence once the cart reaches the
// summary step: customer, payment preference, order, order items.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
)

const (
	MsgEmptyCart = "Carrinho vazio"
	MsgSuccess   = "Compra realizada com sucesso! Você será redirecionado para o pagamento."
	MsgFailure   = "Erro ao criar o pedido e seus itens. Por favor, verifique os dados e tente novamente."
)

// Cart is the part of the cart store the sequence reads and settles.
type Cart interface {
	Snapshot() domain.CartState
	ClearCart(ctx context.Context)
	SetOrderCompleted(ctx context.Context, completed bool)
}

type CustomerDirectory interface {
	ResolveOrCreate(ctx context.Context, c domain.Customer) (*domain.Customer, error)
}

type PaymentGateway interface {
	CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o domain.Order) (*domain.Order, error)
	CreateItem(ctx context.Context, item domain.OrderItem) (*domain.OrderItem, error)
	UpdateStatus(ctx context.Context, id int, status domain.OrderStatus) error
}

// UI is the presentation side effect channel: a browsing context to open and
// transient notifications.
type UI interface {
	Open(url string)
	Notify(kind, message string)
}

const (
	NotifySuccess = "success"
	NotifyError   = "error"
)

// Request carries what the wizard collected across the address and payment steps.
type Request struct {
	Customer      domain.Customer
	PaymentMethod string
	ShippingCents int64
	CarrierID     int
}

type Result struct {
	Order      *domain.Order
	Preference *domain.Preference
	PaymentURL string
}

type Service struct {
	customers CustomerDirectory
	payments  PaymentGateway
	orders    OrderRepository
	sandbox   bool
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type Config struct {
	Sandbox bool
	Timeout time.Duration
}

func New(customers CustomerDirectory, payments PaymentGateway, orders OrderRepository, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Service{
		customers: customers,
		payments:  payments,
		orders:    orders,
		sandbox:   cfg.Sandbox,
		timeout:   cfg.Timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Submit runs the sequence. It is detached from caller cancellation once started
// and bounded by the service timeout. On failure the cart is left untouched.
func (s *Service) Submit(ctx context.Context, cart Cart, req Request, ui UI) (*Result, error) {
	state := cart.Snapshot()
	if len(state.Lines) == 0 {
		ui.Notify(NotifyError, MsgEmptyCart)
		return nil, domain.ErrEmptyCart
	}
	if state.Step != domain.StepSummary {
		return nil, domain.ErrNotAtSummary
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	res, err := s.run(ctx, state, req)
	if err != nil {
		s.logger.Error("checkout failed", zap.String("email", req.Customer.Email), zap.Error(err))
		ui.Notify(NotifyError, MsgFailure)
		return nil, err
	}

	cart.ClearCart(ctx)
	cart.SetOrderCompleted(ctx, true)
	ui.Notify(NotifySuccess, MsgSuccess)
	ui.Open(res.PaymentURL)
	s.logger.Info("checkout completed",
		zap.Int("order", res.Order.ID),
		zap.String("preference", res.Preference.ID),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, state domain.CartState, req Request) (*Result, error) {
	customer, err := s.customers.ResolveOrCreate(ctx, req.Customer)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}
	address := req.Customer.Address
	if address == nil {
		address = customer.Address
	}

	pref, err := s.payments.CreatePreference(ctx, preferenceFor(state, req, customer, address))
	if err != nil {
		return nil, fmt.Errorf("create payment preference: %w", err)
	}
	paymentURL := pref.CheckoutURL(s.sandbox)

	order, err := s.orders.Create(ctx, domain.Order{
		CustomerID:      customer.ID,
		Status:          domain.OrderPending,
		OrderDate:       s.now().UTC(),
		TotalCents:      state.TotalCents(),
		ShippingCents:   req.ShippingCents,
		CarrierID:       req.CarrierID,
		DeliveryAddress: address,
		PaymentLink:     paymentURL,
		PaymentID:       pref.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, line := range state.Lines {
		if _, err := s.orders.CreateItem(ctx, itemFor(order.ID, line)); err != nil {
			s.compensate(ctx, order.ID)
			return nil, fmt.Errorf("create order item product=%d: %w", line.ProductID, err)
		}
	}

	return &Result{Order: order, Preference: pref, PaymentURL: paymentURL}, nil
}

// compensate cancels an order whose items could not all be recorded. The
// customer record stays: it is found again by email on retry.
func (s *Service) compensate(ctx context.Context, orderID int) {
	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderCanceled); err != nil {
		s.logger.Warn("checkout: cancel partial order", zap.Int("order", orderID), zap.Error(err))
	}
}

func preferenceFor(state domain.CartState, req Request, customer *domain.Customer, address *domain.Address) domain.PreferenceRequest {
	items := make([]domain.PreferenceItem, 0, len(state.Lines))
	for _, l := range state.Lines {
		title := l.Product.Name
		if l.Size != "" {
			title += " - " + l.Size
		}
		items = append(items, domain.PreferenceItem{
			ID:             strconv.Itoa(l.ProductID),
			Title:          title,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
		})
	}
	name := strings.TrimSpace(req.Customer.FullName())
	if name == "" {
		name = customer.FullName()
	}
	email := req.Customer.Email
	if email == "" {
		email = customer.Email
	}
	return domain.PreferenceRequest{
		Items:                items,
		Payer:                domain.Payer{Name: name, Email: email, Address: address},
		DefaultPaymentMethod: req.PaymentMethod,
		ShippingCents:        req.ShippingCents,
	}
}

func itemFor(orderID int, l domain.CartLine) domain.OrderItem {
	item := domain.OrderItem{
		OrderID:       orderID,
		ProductID:     l.ProductID,
		ProductName:   l.Product.Name,
		SubtotalCents: l.SubtotalCents,
		Quantity:      l.Quantity,
	}
	if l.Product.HasVariants {
		if n, err := strconv.Atoi(l.Size); err == nil {
			item.Size = &n
		}
	}
	return item
}

// IsInputError reports whether a failure was caused by caller-supplied data.
func IsInputError(err error) bool {
	return errors.Is(err, domain.ErrEmptyCart) || errors.Is(err, domain.ErrNotAtSummary) || errors.Is(err, domain.ErrInvalidInput)
}
