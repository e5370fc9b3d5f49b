package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/gateway/shipping"
	cartrepo "ourofino-storefront/internal/repository/cart"
	"ourofino-storefront/internal/repository/conversation"
	favrepo "ourofino-storefront/internal/repository/favorite"
	productrepo "ourofino-storefront/internal/repository/product"
	"ourofino-storefront/internal/service/anonymous"
	cartsvc "ourofino-storefront/internal/service/cart"
	chatsvc "ourofino-storefront/internal/service/chat"
	"ourofino-storefront/internal/service/checkout"
	productsvc "ourofino-storefront/internal/service/product"
)

var (
	shopper = domain.Identity{UserID: "user_1", FirstName: "Maria", LastName: "Silva", Email: "maria@example.com"}
	support = domain.Identity{UserID: "agent_1", FirstName: "Ana", Email: "ana@ourofino.example"}
)

type stubSessions struct{}

func (stubSessions) Verify(token string) (domain.Identity, error) {
	switch token {
	case "shopper":
		return shopper, nil
	case "support":
		return support, nil
	}
	return domain.Identity{}, errors.New("bad token")
}

type stubProducts struct{}

func (stubProducts) List(_ context.Context, params productrepo.ListParams) ([]domain.Product, error) {
	return []domain.Product{{ID: len(params.Filters), Name: "Anel"}}, nil
}

func (stubProducts) Showcase(context.Context) ([]domain.Product, error) { return nil, nil }

func (stubProducts) ByCollection(_ context.Context, id int) ([]domain.Product, error) {
	return []domain.Product{{ID: id}}, nil
}

func (stubProducts) Get(_ context.Context, id int) (*domain.Product, error) {
	if id != 1 {
		return nil, domain.ErrNotFound
	}
	return &domain.Product{ID: 1, Name: "Pulseira", Active: true}, nil
}

func (s stubProducts) Resolve(ctx context.Context, id int, _ string) (*productsvc.Priced, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	price := int64(25000)
	return &productsvc.Priced{Product: *p, PriceCents: &price}, nil
}

type stubCheckout struct {
	calls int
	last  checkout.Request
	err   error
}

func (s *stubCheckout) Submit(ctx context.Context, cart checkout.Cart, req checkout.Request, ui checkout.UI) (*checkout.Result, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		ui.Notify(checkout.NotifyError, checkout.MsgFailure)
		return nil, s.err
	}
	cart.ClearCart(ctx)
	ui.Notify(checkout.NotifySuccess, checkout.MsgSuccess)
	ui.Open("https://pay.example/pref_1")
	return &checkout.Result{Order: &domain.Order{ID: 42}, Preference: &domain.Preference{ID: "pref_1"}}, nil
}

type stubCustomers struct {
	events []domain.IdentityEvent
	err    error
}

func (s *stubCustomers) SaveAddress(_ context.Context, _ domain.Customer, addr domain.Address) (*domain.Address, error) {
	addr.ID = 3
	return &addr, nil
}

func (s *stubCustomers) MirrorIdentityEvent(_ context.Context, ev domain.IdentityEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

type stubFavorites struct{}

func (stubFavorites) Add(_ context.Context, who domain.Customer, productID int) (*domain.Favorite, error) {
	return &domain.Favorite{ID: 1, ProductID: productID}, nil
}

func (stubFavorites) List(context.Context, string) ([]favrepo.Entry, error) { return nil, nil }

func (stubFavorites) Remove(_ context.Context, _ string, productID int) error {
	if productID != 1 {
		return domain.ErrNotFound
	}
	return nil
}

type stubWebhooks struct{}

func (stubWebhooks) Verify(h http.Header, _ []byte) error {
	if h.Get("svix-signature") != "v1,ok" {
		return errors.New("bad signature")
	}
	return nil
}

type testServer struct {
	router   *gin.Engine
	checkout *stubCheckout
	cust     *stubCustomers
	chats    *conversation.Memory
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	chats := conversation.NewMemory()
	hub := chatsvc.NewHub(context.Background(), chats, chatsvc.Templates{"Olá {user_Name}!"}, chatsvc.DefaultBusinessHours(time.UTC), time.Minute, zap.NewNop())
	t.Cleanup(hub.Close)

	ts := &testServer{checkout: &stubCheckout{}, cust: &stubCustomers{}, chats: chats}
	opts.AgentIDs = append(opts.AgentIDs, support.UserID)
	ts.router = buildRouter(Deps{
		Carts:     cartsvc.NewSessions(cartrepo.NewMemory(), time.Minute, zap.NewNop()),
		Checkout:  ts.checkout,
		Products:  stubProducts{},
		Customers: ts.cust,
		Favorites: stubFavorites{},
		Sessions:  stubSessions{},
		Webhooks:  stubWebhooks{},
		Anonymous: anonymous.New("test-secret", time.Hour),
		Chat:      hub,
	}, opts, zap.NewNop())
	return ts
}

type call struct {
	method  string
	path    string
	body    string
	token   string
	cookies []*http.Cookie
	header  http.Header
}

func (ts *testServer) do(c call) *httptest.ResponseRecorder {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func cookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := buildRouter(Deps{Probes: map[string]Probe{
		"cart store": func(context.Context) error { return errors.New("down") },
	}}, Options{}, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCart_Flow(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(call{method: http.MethodPost, path: "/cart/items", body: `{"productId":1,"quantity":2}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	session := cookie(t, rec, cartCookie)
	var cart cartResponse
	decode(t, rec, &cart)
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 2 || cart.TotalCents != 50000 {
		t.Fatalf("unexpected cart after add: %+v", cart)
	}

	rec = ts.do(call{method: http.MethodPut, path: "/cart/step", body: `{"step":9}`, cookies: []*http.Cookie{session}})
	decode(t, rec, &cart)
	if cart.Step != domain.StepSummary {
		t.Fatalf("step should clamp to summary, got %d", cart.Step)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/cart/items", body: `{"productId":1}`, cookies: []*http.Cookie{session}})
	decode(t, rec, &cart)
	if cart.Step != domain.StepReview || cart.Lines[0].Quantity != 3 {
		t.Fatalf("adding must merge and reset the step: %+v", cart)
	}

	for i := 0; i < 3; i++ {
		rec = ts.do(call{method: http.MethodPost, path: "/cart/items/1/decrease", cookies: []*http.Cookie{session}})
	}
	decode(t, rec, &cart)
	if len(cart.Lines) != 0 {
		t.Fatalf("decreasing at one must remove the line: %+v", cart)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/cart/items", body: `{"productId":7}`, cookies: []*http.Cookie{session}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d", rec.Code)
	}
	rec = ts.do(call{method: http.MethodPost, path: "/cart/items/abc/increase", cookies: []*http.Cookie{session}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestCart_ForceReset(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(call{method: http.MethodPost, path: "/cart/items", body: `{"productId":1}`})
	session := cookie(t, rec, cartCookie)

	rec = ts.do(call{method: http.MethodPost, path: "/cart/force-reset", cookies: []*http.Cookie{session}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"reload":true`) {
		t.Fatalf("unexpected force reset response %d %s", rec.Code, rec.Body.String())
	}
	var cart cartResponse
	decode(t, ts.do(call{method: http.MethodGet, path: "/cart", cookies: []*http.Cookie{session}}), &cart)
	if len(cart.Lines) != 0 {
		t.Fatalf("cart should be empty after force reset: %+v", cart)
	}
}

func TestCheckout(t *testing.T) {
	ts := newTestServer(t, Options{})
	body := `{"firstName":"Maria","lastName":"Silva","address":{"street":"Rua A","number":"10","zipCode":"01001000"},"paymentMethod":"pix","shippingCents":2500,"carrierId":1}`

	rec := ts.do(call{method: http.MethodPost, path: "/checkout", body: body})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rec.Code)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/checkout", body: body, token: "shopper"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"paymentUrl":"https://pay.example/pref_1"`) {
		t.Fatalf("missing payment url: %s", rec.Body.String())
	}
	if ts.checkout.last.Customer.Email != shopper.Email || ts.checkout.last.PaymentMethod != "pix" {
		t.Fatalf("unexpected checkout request: %+v", ts.checkout.last)
	}

	ts.checkout.err = errors.New("gateway down")
	rec = ts.do(call{method: http.MethodPost, path: "/checkout", body: body, token: "shopper"})
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), checkout.MsgFailure) {
		t.Fatalf("expected 502 with failure notice, got %d %s", rec.Code, rec.Body.String())
	}

	ts.checkout.err = domain.ErrNotAtSummary
	rec = ts.do(call{method: http.MethodPost, path: "/checkout", body: body, token: "shopper"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before the summary step, got %d", rec.Code)
	}
}

func TestMe_Favorites(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(call{method: http.MethodPost, path: "/me/favorites", body: `{"productId":1}`, token: "shopper"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec = ts.do(call{method: http.MethodDelete, path: "/me/favorites/5", token: "shopper"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = ts.do(call{method: http.MethodGet, path: "/me/favorites"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentityWebhook(t *testing.T) {
	ts := newTestServer(t, Options{})
	event := `{"type":"user.created","data":{"id":"user_9","first_name":"Rita","email_addresses":[{"id":"e1","email_address":"rita@example.com"}],"primary_email_address_id":"e1"}}`

	rec := ts.do(call{method: http.MethodPost, path: "/webhooks/identity", body: event})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsigned webhook: expected 400, got %d", rec.Code)
	}
	if len(ts.cust.events) != 0 {
		t.Fatalf("unsigned webhook must not be mirrored")
	}

	signed := http.Header{"Svix-Signature": []string{"v1,ok"}}
	ts.cust.err = errors.New("strapi down")
	rec = ts.do(call{method: http.MethodPost, path: "/webhooks/identity", body: event, header: signed})
	if rec.Code != http.StatusOK {
		t.Fatalf("signed webhook: expected 200 even when mirroring fails, got %d", rec.Code)
	}
	if len(ts.cust.events) != 1 || ts.cust.events[0].Type != domain.IdentityUserCreated {
		t.Fatalf("unexpected mirrored events: %+v", ts.cust.events)
	}
}

func TestChat_AnonymousCustomer(t *testing.T) {
	ts := newTestServer(t, Options{})

	rec := ts.do(call{method: http.MethodGet, path: "/chat/state"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	visitor := cookie(t, rec, anonymousCookie)
	var st chatsvc.CustomerState
	decode(t, rec, &st)
	if !strings.HasPrefix(st.Viewer.Name, "Anônimo_") {
		t.Fatalf("unexpected viewer: %+v", st.Viewer)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/chat/conversations", cookies: []*http.Cookie{visitor}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start chat: expected 201, got %d", rec.Code)
	}
	var conv domain.Conversation
	decode(t, rec, &conv)
	if conv.CustomerID != st.Viewer.ID {
		t.Fatalf("conversation owner %q, want %q", conv.CustomerID, st.Viewer.ID)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/chat/messages", body: `{"text":"Oi!"}`, cookies: []*http.Cookie{visitor}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	stored, err := ts.chats.Get(context.Background(), conv.ID)
	if err != nil || len(stored.Messages) != 1 || stored.Messages[0].Text != "Oi!" {
		t.Fatalf("message not stored: %+v %v", stored, err)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/chat/conversations/" + conv.ID + "/cancel", cookies: []*http.Cookie{visitor}})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
}

func TestChat_LoginRequired(t *testing.T) {
	ts := newTestServer(t, Options{ChatLoginRequired: true})
	rec := ts.do(call{method: http.MethodGet, path: "/chat/state"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = ts.do(call{method: http.MethodGet, path: "/chat/state", token: "shopper"})
	if rec.Code != http.StatusOK {
		t.Fatalf("signed in: expected 200, got %d", rec.Code)
	}
}

func TestChat_Agent(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()
	open, err := ts.chats.Create(ctx, domain.Conversation{CustomerID: "user_1", CustomerName: "Maria Silva", Status: domain.StatusOpen, CreatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	canceled, err := ts.chats.Create(ctx, domain.Conversation{CustomerID: "user_1", CustomerName: "Maria Silva", Status: domain.StatusCanceled, CreatedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	if rec := ts.do(call{method: http.MethodGet, path: "/agent/chat/conversations", token: "shopper"}); rec.Code != http.StatusForbidden {
		t.Fatalf("customers must not reach the console, got %d", rec.Code)
	}

	rec := ts.do(call{method: http.MethodPost, path: "/agent/chat/conversations/" + open.ID + "/claim", token: "support"})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var claimed domain.Conversation
	decode(t, rec, &claimed)
	if claimed.Status != domain.StatusInProgress || claimed.AgentName == nil || *claimed.AgentName != "Ana" {
		t.Fatalf("unexpected claimed conversation: %+v", claimed)
	}

	rec = ts.do(call{method: http.MethodPost, path: "/agent/chat/template-messages", body: `{"index":0}`, token: "support"})
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "Olá Maria Silva!") {
		t.Fatalf("template: got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(call{method: http.MethodPost, path: "/agent/chat/conversations/" + canceled.ID + "/claim", token: "support"})
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"history"`) {
		t.Fatalf("claiming a canceled chat: got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(call{method: http.MethodGet, path: "/agent/chat/conversations?status=canceled", token: "support"})
	var listed struct {
		Results []domain.Conversation `json:"results"`
	}
	decode(t, rec, &listed)
	if len(listed.Results) != 1 || listed.Results[0].ID != canceled.ID {
		t.Fatalf("status filter: %+v", listed.Results)
	}

	if rec := ts.do(call{method: http.MethodPost, path: "/agent/chat/close-confirm", token: "support"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("confirm without request: expected 400, got %d", rec.Code)
	}
	ts.do(call{method: http.MethodPost, path: "/agent/chat/conversations/" + open.ID + "/close-request", token: "support"})
	rec = ts.do(call{method: http.MethodPost, path: "/agent/chat/close-confirm", token: "support"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm close: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	stored, _ := ts.chats.Get(ctx, open.ID)
	if stored.Status != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", stored.Status)
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newRateLimiter(1, 1)
	router := gin.New()
	router.GET("/x", rl.middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/x", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/x", nil))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}

	rl.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	rl.visitor("203.0.113.9")
	if _, ok := rl.visitors["192.0.2.1"]; ok {
		t.Fatalf("stale visitor should have been swept")
	}
}

func TestParseListParams(t *testing.T) {
	q := map[string][]string{
		"filters[name][$containsi]":    {"anel"},
		"filters[collection][id][$eq]": {"3"},
		"sort":                         {"price_primary:desc"},
		"pageSize":                     {"12"},
	}
	params, ok := parseListParams(q)
	if !ok {
		t.Fatal("expected valid params")
	}
	if len(params.Filters) != 2 || params.Filters[0].Field != "collection.id" || params.Filters[1].Operator != "$containsi" {
		t.Fatalf("unexpected filters: %+v", params.Filters)
	}
	if params.SortBy != "price_primary" || !params.SortDesc || params.PageSize != 12 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if _, ok := parseListParams(map[string][]string{"page": {"x"}}); ok {
		t.Fatal("expected invalid page to fail")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrLoginRequired, http.StatusUnauthorized},
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{shipping.ErrInvalidQuoteInput, http.StatusBadRequest},
		{shipping.ErrQuoteUnavailable, http.StatusBadGateway},
		{domain.ErrConversationTerminal, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
