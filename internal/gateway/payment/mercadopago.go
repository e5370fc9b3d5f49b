// Package payment talks to Mercado Pago through its Go SDK: hosted checkout
// preferences and the list of payment methods.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/paymentmethod"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.uber.org/zap"

	appconfig "ourofino-storefront/internal/config"
	"ourofino-storefront/internal/domain"
)

const currency = "BRL"

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment gateway: status %d: %s", e.Status, e.Body)
}

type Client struct {
	cfg         appconfig.PaymentConfig
	preferences preference.Client
	methods     paymentmethod.Client
	logger      *zap.Logger
	now         func() time.Time
}

func New(cfg appconfig.PaymentConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	requester, err := rebase(cfg.APIURL, httpClient)
	if err != nil {
		return nil, err
	}
	sdk, err := config.New(cfg.AccessToken, config.WithHTTPClient(requester))
	if err != nil {
		return nil, fmt.Errorf("payment gateway config: %w", err)
	}
	return &Client{
		cfg:         cfg,
		preferences: preference.NewClient(sdk),
		methods:     paymentmethod.NewClient(sdk),
		logger:      logger,
		now:         time.Now,
	}, nil
}

type doer interface {
	Do(*http.Request) (*http.Response, error)
}

// baseURLClient sends SDK requests to another host, used for sandboxes and
// tests. Path and query are kept.
type baseURLClient struct {
	base *url.URL
	http *http.Client
}

func rebase(apiURL string, httpClient *http.Client) (doer, error) {
	apiURL = strings.TrimRight(apiURL, "/")
	if apiURL == "" {
		return httpClient, nil
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("payment gateway url: %w", err)
	}
	return &baseURLClient{base: base, http: httpClient}, nil
}

func (c *baseURLClient) Do(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = c.base.Scheme
	out.URL.Host = c.base.Host
	out.URL.Path = c.base.Path + req.URL.Path
	out.Host = c.base.Host
	return c.http.Do(out)
}

func (c *Client) preferenceRequest(req domain.PreferenceRequest) preference.Request {
	label := fmt.Sprintf("Ourofino - %d", c.now().Year())
	body := preference.Request{
		AdditionalInfo:      label,
		StatementDescriptor: label,
		Payer:               &preference.PayerRequest{Name: req.Payer.Name, Email: req.Payer.Email},
		BackURLs: &preference.BackURLsRequest{
			Success: c.cfg.SuccessURL,
			Failure: c.cfg.FailureURL,
			Pending: c.cfg.PendingURL,
		},
		NotificationURL: c.cfg.NotificationURL,
	}
	if c.cfg.SuccessURL != "" {
		body.AutoReturn = "approved"
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, preference.ItemRequest{
			ID:          it.ID,
			Title:       it.Title,
			Description: it.Title,
			Quantity:    it.Quantity,
			UnitPrice:   domain.Amount(it.UnitPriceCents),
			CurrencyID:  currency,
		})
	}
	if a := req.Payer.Address; a != nil {
		body.Payer.Address = &preference.AddressRequest{StreetName: a.Street, StreetNumber: a.Number, ZipCode: a.ZipCode}
	}
	if req.DefaultPaymentMethod != "" {
		body.PaymentMethods = &preference.PaymentMethodsRequest{DefaultPaymentMethodID: req.DefaultPaymentMethod}
	}
	if req.ShippingCents > 0 {
		body.Shipments = &preference.ShipmentsRequest{Cost: domain.Amount(req.ShippingCents), Mode: "frete"}
	}
	return body
}

// CreatePreference opens a hosted checkout session.
func (c *Client) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: preference without items", domain.ErrInvalidInput)
	}
	res, err := c.preferences.Create(ctx, c.preferenceRequest(req))
	if err != nil {
		return nil, c.gatewayError("create preference", err)
	}
	if res.ID == "" {
		return nil, fmt.Errorf("payment gateway: preference without id")
	}
	c.logger.Info("payment preference created", zap.String("preference_id", res.ID), zap.Int("items", len(req.Items)))
	return &domain.Preference{ID: res.ID, InitPoint: res.InitPoint, SandboxInitPoint: res.SandboxInitPoint}, nil
}

// ListPaymentMethods returns the active payment methods.
func (c *Client) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	all, err := c.methods.List(ctx)
	if err != nil {
		return nil, c.gatewayError("list payment methods", err)
	}
	active := make([]domain.PaymentMethod, 0, len(all))
	for _, m := range all {
		if m.Status != "active" {
			continue
		}
		active = append(active, domain.PaymentMethod{
			ID:            m.ID,
			Name:          m.Name,
			PaymentTypeID: m.PaymentTypeID,
			Status:        m.Status,
			Thumbnail:     m.SecureThumbnail,
		})
	}
	return active, nil
}

// gatewayError turns SDK response errors into APIError.
func (c *Client) gatewayError(op string, err error) error {
	var resErr *mperror.ResponseError
	if errors.As(err, &resErr) {
		c.logger.Warn("payment gateway error", zap.String("op", op), zap.Int("status", resErr.StatusCode), zap.String("body", resErr.Message))
		return &APIError{Status: resErr.StatusCode, Body: resErr.Message}
	}
	return fmt.Errorf("payment gateway %s: %w", op, err)
}
