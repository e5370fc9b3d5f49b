package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ourofino-storefront/internal/domain"
	cartsvc "ourofino-storefront/internal/service/cart"
)

const (
	cartCookie       = "cart_session"
	cartCookieMaxAge = 60 * 60 * 24 * 30
)

type cartResponse struct {
	domain.CartState
	TotalCents int64  `json:"totalCents"`
	StepName   string `json:"stepName"`
}

type addItemRequest struct {
	ProductID int    `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type sizeRequest struct {
	From string `json:"from"`
	To   string `json:"to" binding:"required"`
}

type stepRequest struct {
	Step *int `json:"step" binding:"required"`
}

type completedRequest struct {
	Completed bool `json:"completed"`
}

// cart returns the session's store, issuing the session cookie on first use.
func (h *handlers) cart(c *gin.Context) *cartsvc.Store {
	key, err := c.Cookie(cartCookie)
	if err != nil || key == "" {
		key = uuid.NewString()
		h.setCookie(c, cartCookie, key, cartCookieMaxAge)
	}
	return h.deps.Carts.Get(c.Request.Context(), key)
}

func writeCart(c *gin.Context, state domain.CartState) {
	c.JSON(http.StatusOK, cartResponse{CartState: state, TotalCents: state.TotalCents(), StepName: state.Step.String()})
}

func (h *handlers) getCart(c *gin.Context) {
	writeCart(c, h.cart(c).Snapshot())
}

func (h *handlers) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid cart item")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		badRequest(c, "quantity must be positive")
		return
	}
	priced, err := h.deps.Products.Resolve(c.Request.Context(), req.ProductID, req.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	store := h.cart(c)
	store.AddItem(c.Request.Context(), priced.Product, req.Quantity, priced.PriceCents, priced.Size)
	writeCart(c, store.Snapshot())
}

func (h *handlers) removeCartItem(c *gin.Context) {
	id, ok := intParam(c, "productId")
	if !ok {
		return
	}
	store := h.cart(c)
	store.RemoveItem(c.Request.Context(), id, c.Query("size"))
	writeCart(c, store.Snapshot())
}

func (h *handlers) increaseCartItem(c *gin.Context) {
	id, ok := intParam(c, "productId")
	if !ok {
		return
	}
	store := h.cart(c)
	store.IncreaseQuantity(c.Request.Context(), id, c.Query("size"))
	writeCart(c, store.Snapshot())
}

func (h *handlers) decreaseCartItem(c *gin.Context) {
	id, ok := intParam(c, "productId")
	if !ok {
		return
	}
	store := h.cart(c)
	store.DecreaseQuantity(c.Request.Context(), id, c.Query("size"))
	writeCart(c, store.Snapshot())
}

// updateCartItemSize only accepts sizes some variant of the product covers.
func (h *handlers) updateCartItemSize(c *gin.Context) {
	id, ok := intParam(c, "productId")
	if !ok {
		return
	}
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid size change")
		return
	}
	if _, err := h.deps.Products.Resolve(c.Request.Context(), id, req.To); err != nil {
		writeError(c, err)
		return
	}
	store := h.cart(c)
	store.UpdateItemSize(c.Request.Context(), id, req.From, req.To)
	writeCart(c, store.Snapshot())
}

func (h *handlers) setStep(c *gin.Context) {
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid step")
		return
	}
	store := h.cart(c)
	store.SetStep(c.Request.Context(), domain.CheckoutStep(*req.Step))
	writeCart(c, store.Snapshot())
}

func (h *handlers) resetStep(c *gin.Context) {
	store := h.cart(c)
	store.ResetStep(c.Request.Context())
	writeCart(c, store.Snapshot())
}

func (h *handlers) clearCart(c *gin.Context) {
	store := h.cart(c)
	store.ClearCart(c.Request.Context())
	writeCart(c, store.Snapshot())
}

func (h *handlers) resetCart(c *gin.Context) {
	store := h.cart(c)
	store.ResetCart(c.Request.Context())
	writeCart(c, store.Snapshot())
}

// forceResetCart wipes the cart and tells the client to reload.
func (h *handlers) forceResetCart(c *gin.Context) {
	h.cart(c).ForceReset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"reload": true})
}

func (h *handlers) setOrderCompleted(c *gin.Context) {
	var req completedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid flag")
		return
	}
	store := h.cart(c)
	store.SetOrderCompleted(c.Request.Context(), req.Completed)
	writeCart(c, store.Snapshot())
}
