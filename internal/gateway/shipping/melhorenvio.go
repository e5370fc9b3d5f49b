// Package shipping quotes carrier options from Melhor Envio.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/config"
	"ourofino-storefront/internal/domain"
)

var (
	// ErrInvalidQuoteInput means the carrier API rejected the postal code or packages.
	ErrInvalidQuoteInput = fmt.Errorf("%w: shipping quote rejected", domain.ErrInvalidInput)
	ErrQuoteUnavailable  = errors.New("shipping quote unavailable")
)

type Client struct {
	cfg    config.ShippingConfig
	http   *http.Client
	logger *zap.Logger
}

func New(cfg config.ShippingConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

type postal struct {
	PostalCode string `json:"postal_code"`
}

type product struct {
	ID             string  `json:"id"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	Length         float64 `json:"length"`
	Weight         float64 `json:"weight"`
	InsuranceValue float64 `json:"insurance_value"`
	Quantity       int     `json:"quantity"`
}

type quoteRequest struct {
	From     postal    `json:"from"`
	To       postal    `json:"to"`
	Products []product `json:"products"`
}

// amount accepts prices encoded as JSON numbers or numeric strings.
type amount float64

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*a = amount(f)
	return nil
}

type quoteOption struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Price        amount `json:"price"`
	CustomPrice  amount `json:"custom_price"`
	Discount     amount `json:"discount"`
	DeliveryTime int    `json:"delivery_time"`
	Error        string `json:"error"`
	Company      struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	} `json:"company"`
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Quote asks for carrier options to deliver packages to the destination postal
// code. Options the carrier reports as unavailable are dropped.
func (c *Client) Quote(ctx context.Context, destination string, packages []domain.Package) ([]domain.ShippingOption, error) {
	to := digits(destination)
	if len(to) != 8 {
		return nil, fmt.Errorf("%w: postal code %q", ErrInvalidQuoteInput, destination)
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no packages", ErrInvalidQuoteInput)
	}
	body := quoteRequest{From: postal{digits(c.cfg.OriginPostalCode)}, To: postal{to}}
	for _, p := range packages {
		body.Products = append(body.Products, product{
			ID:             p.ID,
			Width:          p.Width,
			Height:         p.Height,
			Length:         p.Length,
			Weight:         p.Weight,
			InsuranceValue: domain.Amount(p.InsuranceValueCents),
			Quantity:       p.Quantity,
		})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/api/v2/me/shipment/calculate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", "ourofino-storefront")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("shipping quote failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuoteInput, msg)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("shipping quote error status", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var options []quoteOption
	if err := json.NewDecoder(resp.Body).Decode(&options); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrQuoteUnavailable, err)
	}
	out := make([]domain.ShippingOption, 0, len(options))
	for _, o := range options {
		if o.Error != "" {
			continue
		}
		price := o.CustomPrice
		if price == 0 {
			price = o.Price
		}
		out = append(out, domain.ShippingOption{
			ID:            o.ID,
			Name:          o.Name,
			PriceCents:    domain.Cents(float64(price)),
			DiscountCents: domain.Cents(float64(o.Discount)),
			DeliveryDays:  o.DeliveryTime,
			CompanyName:   o.Company.Name,
			CompanyLogo:   o.Company.Picture,
		})
	}
	return out, nil
}

// PackagesFromCart builds one package per cart line from the product
// dimensions. The insured value is per unit.
func PackagesFromCart(state domain.CartState) []domain.Package {
	out := make([]domain.Package, 0, len(state.Lines))
	for _, l := range state.Lines {
		id := strconv.Itoa(l.ProductID)
		if l.Size != "" {
			id += "-" + l.Size
		}
		out = append(out, domain.Package{
			ID:                  id,
			Width:               l.Product.Width,
			Height:              l.Product.Height,
			Length:              l.Product.Length,
			Weight:              l.Product.Weight,
			InsuranceValueCents: l.UnitPriceCents,
			Quantity:            l.Quantity,
		})
	}
	return out
}
