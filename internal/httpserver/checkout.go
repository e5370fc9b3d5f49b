package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/gateway/shipping"
	"ourofino-storefront/internal/service/checkout"
)

type checkoutRequest struct {
	FirstName     string          `json:"firstName" binding:"required"`
	LastName      string          `json:"lastName"`
	Phone         string          `json:"phone"`
	CPF           string          `json:"cpf"`
	Address       *domain.Address `json:"address" binding:"required"`
	PaymentMethod string          `json:"paymentMethod" binding:"required"`
	ShippingCents int64           `json:"shippingCents"`
	CarrierID     int             `json:"carrierId"`
}

type notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// responseUI collects what the checkout wants shown so it can travel back in
// the response body.
type responseUI struct {
	redirect string
	notices  []notice
}

func (u *responseUI) Open(url string) { u.redirect = url }

func (u *responseUI) Notify(kind, message string) {
	u.notices = append(u.notices, notice{Kind: kind, Message: message})
}

func (h *handlers) submitCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid checkout request")
		return
	}
	if req.ShippingCents < 0 {
		badRequest(c, "invalid shipping cost")
		return
	}
	id := currentIdentity(c)
	ui := &responseUI{}
	res, err := h.deps.Checkout.Submit(c.Request.Context(), h.cart(c), checkout.Request{
		Customer: domain.Customer{
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Email:     id.Email,
			Phone:     req.Phone,
			CPF:       req.CPF,
			ClerkID:   id.UserID,
			Address:   req.Address,
		},
		PaymentMethod: req.PaymentMethod,
		ShippingCents: req.ShippingCents,
		CarrierID:     req.CarrierID,
	}, ui)
	if err != nil {
		_ = c.Error(err)
		status, msg := statusFor(err), err.Error()
		if !checkout.IsInputError(err) {
			status, msg = http.StatusBadGateway, checkout.MsgFailure
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg, "notices": ui.notices})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"orderId":    res.Order.ID,
		"paymentId":  res.Preference.ID,
		"paymentUrl": ui.redirect,
		"notices":    ui.notices,
	})
}

func (h *handlers) listPaymentMethods(c *gin.Context) {
	methods, err := h.deps.Payments.ListPaymentMethods(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": methods})
}

type quoteRequest struct {
	PostalCode string `json:"postalCode" binding:"required"`
}

// quoteShipping prices the current cart for a destination postal code.
func (h *handlers) quoteShipping(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "postal code required")
		return
	}
	state := h.cart(c).Snapshot()
	if len(state.Lines) == 0 {
		writeError(c, domain.ErrEmptyCart)
		return
	}
	options, err := h.deps.Shipping.Quote(c.Request.Context(), req.PostalCode, shipping.PackagesFromCart(state))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": options})
}
