package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourofino-storefront/internal/domain"
	cartrepo "ourofino-storefront/internal/repository/cart"
	cartsvc "ourofino-storefront/internal/service/cart"
)

type stubCustomers struct {
	existing *domain.Customer
	created  []domain.Customer
	err      error
}

func (s *stubCustomers) ResolveOrCreate(_ context.Context, c domain.Customer) (*domain.Customer, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.existing != nil {
		return s.existing, nil
	}
	s.created = append(s.created, c)
	c.ID = 9
	return &c, nil
}

type stubPayments struct {
	pref    *domain.Preference
	err     error
	lastReq domain.PreferenceRequest
	calls   int
}

func (s *stubPayments) CreatePreference(_ context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	s.calls++
	s.lastReq = req
	return s.pref, s.err
}

type stubOrders struct {
	created     []domain.Order
	items       []domain.OrderItem
	itemErr     error
	statusCalls map[int]domain.OrderStatus
}

func (s *stubOrders) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	s.created = append(s.created, o)
	o.ID = 42
	return &o, nil
}

func (s *stubOrders) CreateItem(_ context.Context, item domain.OrderItem) (*domain.OrderItem, error) {
	if s.itemErr != nil {
		return nil, s.itemErr
	}
	s.items = append(s.items, item)
	return &item, nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, id int, status domain.OrderStatus) error {
	if s.statusCalls == nil {
		s.statusCalls = map[int]domain.OrderStatus{}
	}
	s.statusCalls[id] = status
	return nil
}

type recordingUI struct {
	opened  []string
	notices []string
	kinds   []string
}

func (u *recordingUI) Open(url string) { u.opened = append(u.opened, url) }
func (u *recordingUI) Notify(kind, message string) {
	u.kinds = append(u.kinds, kind)
	u.notices = append(u.notices, message)
}

func summaryCart(t *testing.T) *cartsvc.Store {
	t.Helper()
	ctx := context.Background()
	store := cartsvc.Load(ctx, cartrepo.NewMemory(), "s", nil)
	price := domain.Cents(250.00)
	store.AddItem(ctx, domain.Product{ID: 1, Name: "Pulseira"}, 1, &price, "")
	for step := domain.StepAddress; step <= domain.StepSummary; step++ {
		store.SetStep(ctx, step)
	}
	return store
}

func request() Request {
	return Request{
		Customer: domain.Customer{
			FirstName: "Maria",
			LastName:  "Silva",
			Email:     "maria@example.com",
			Address:   &domain.Address{Street: "Rua A", Number: "10", ZipCode: "01001000"},
		},
		PaymentMethod: "pix",
		ShippingCents: 2500,
		CarrierID:     1,
	}
}

func TestSubmit_Success(t *testing.T) {
	store := summaryCart(t)
	customers := &stubCustomers{}
	payments := &stubPayments{pref: &domain.Preference{ID: "pref_1", InitPoint: "https://pay.example/pref_1"}}
	orders := &stubOrders{}
	ui := &recordingUI{}
	svc := New(customers, payments, orders, Config{}, nil)

	res, err := svc.Submit(context.Background(), store, request(), ui)
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/pref_1", res.PaymentURL)
	assert.Equal(t, []string{"https://pay.example/pref_1"}, ui.opened)
	require.Len(t, customers.created, 1, "lookup miss must create the customer")

	st := store.Snapshot()
	assert.Empty(t, st.Lines)
	assert.True(t, st.OrderCompleted)

	require.Len(t, orders.created, 1)
	order := orders.created[0]
	assert.Equal(t, 9, order.CustomerID)
	assert.Equal(t, "pref_1", order.PaymentID)
	assert.Equal(t, int64(25000), order.TotalCents)
	assert.Equal(t, domain.OrderPending, order.Status)

	require.Len(t, orders.items, 1)
	assert.Equal(t, 42, orders.items[0].OrderID)
	assert.Nil(t, orders.items[0].Size)

	require.Len(t, payments.lastReq.Items, 1)
	assert.Equal(t, "Pulseira", payments.lastReq.Items[0].Title)
	assert.Equal(t, "Maria Silva", payments.lastReq.Payer.Name)
	assert.Equal(t, "pix", payments.lastReq.DefaultPaymentMethod)
	assert.Equal(t, []string{NotifySuccess}, ui.kinds)
}

func TestSubmit_SandboxURL(t *testing.T) {
	store := summaryCart(t)
	payments := &stubPayments{pref: &domain.Preference{
		ID:               "pref_2",
		InitPoint:        "https://pay.example/live",
		SandboxInitPoint: "https://sandbox.pay.example/pref_2",
	}}
	svc := New(&stubCustomers{}, payments, &stubOrders{}, Config{Sandbox: true}, nil)
	ui := &recordingUI{}

	_, err := svc.Submit(context.Background(), store, request(), ui)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://sandbox.pay.example/pref_2"}, ui.opened)
}

func TestSubmit_PaymentFailureKeepsCart(t *testing.T) {
	store := summaryCart(t)
	payments := &stubPayments{err: errors.New("gateway rejected")}
	orders := &stubOrders{}
	ui := &recordingUI{}
	svc := New(&stubCustomers{}, payments, orders, Config{}, nil)

	_, err := svc.Submit(context.Background(), store, request(), ui)
	require.Error(t, err)

	st := store.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 1, st.Lines[0].ProductID)
	assert.False(t, st.OrderCompleted)
	assert.Empty(t, orders.created, "no order may be created after a payment failure")
	assert.Empty(t, ui.opened)
	assert.Equal(t, []string{NotifyError}, ui.kinds)
	assert.Equal(t, MsgFailure, ui.notices[0])
}

func TestSubmit_ItemFailureCancelsOrder(t *testing.T) {
	store := summaryCart(t)
	payments := &stubPayments{pref: &domain.Preference{ID: "p", InitPoint: "https://pay.example/p"}}
	orders := &stubOrders{itemErr: errors.New("boom")}
	svc := New(&stubCustomers{}, payments, orders, Config{}, nil)

	_, err := svc.Submit(context.Background(), store, request(), &recordingUI{})
	require.Error(t, err)
	assert.Equal(t, domain.OrderCanceled, orders.statusCalls[42])
	assert.Len(t, store.Snapshot().Lines, 1)
}

func TestSubmit_Guards(t *testing.T) {
	ctx := context.Background()
	svc := New(&stubCustomers{}, &stubPayments{}, &stubOrders{}, Config{}, nil)

	empty := cartsvc.Load(ctx, cartrepo.NewMemory(), "e", nil)
	ui := &recordingUI{}
	_, err := svc.Submit(ctx, empty, request(), ui)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, []string{MsgEmptyCart}, ui.notices)

	early := cartsvc.Load(ctx, cartrepo.NewMemory(), "r", nil)
	early.AddItem(ctx, domain.Product{ID: 2}, 1, nil, "")
	_, err = svc.Submit(ctx, early, request(), &recordingUI{})
	assert.ErrorIs(t, err, domain.ErrNotAtSummary)
	assert.True(t, IsInputError(err))
}

func TestItemFor_SizeOnlyForVariants(t *testing.T) {
	line := domain.CartLine{ProductID: 5, Size: "14", Product: domain.ProductSnapshot{HasVariants: true}, Quantity: 2, SubtotalCents: 400}
	item := itemFor(3, line)
	require.NotNil(t, item.Size)
	assert.Equal(t, 14, *item.Size)

	line.Product.HasVariants = false
	line.Size = ""
	assert.Nil(t, itemFor(3, line).Size)
}
