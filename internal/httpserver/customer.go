package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ourofino-storefront/internal/domain"
)

// customerOf turns the signed-in identity into a directory lookup key.
func customerOf(id *domain.Identity) domain.Customer {
	return domain.Customer{
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Email:     id.Email,
		Phone:     id.Phone,
		ClerkID:   id.UserID,
	}
}

func (h *handlers) listOrders(c *gin.Context) {
	orders, err := h.deps.Orders.ListByCustomerEmail(c.Request.Context(), currentIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": orders})
}

func (h *handlers) listFavorites(c *gin.Context) {
	favorites, err := h.deps.Favorites.List(c.Request.Context(), currentIdentity(c).Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": favorites})
}

type favoriteRequest struct {
	ProductID int `json:"productId" binding:"required"`
}

func (h *handlers) addFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "product id required")
		return
	}
	fav, err := h.deps.Favorites.Add(c.Request.Context(), customerOf(currentIdentity(c)), req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fav)
}

func (h *handlers) removeFavorite(c *gin.Context) {
	id, ok := intParam(c, "productId")
	if !ok {
		return
	}
	if err := h.deps.Favorites.Remove(c.Request.Context(), currentIdentity(c).Email, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) saveAddress(c *gin.Context) {
	var addr domain.Address
	if err := c.ShouldBindJSON(&addr); err != nil {
		badRequest(c, "invalid address")
		return
	}
	saved, err := h.deps.Customers.SaveAddress(c.Request.Context(), customerOf(currentIdentity(c)), addr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
