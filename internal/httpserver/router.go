package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	favrepo "ourofino-storefront/internal/repository/favorite"
	productrepo "ourofino-storefront/internal/repository/product"
	"ourofino-storefront/internal/repository/settings"
	cartsvc "ourofino-storefront/internal/service/cart"
	chatsvc "ourofino-storefront/internal/service/chat"
	"ourofino-storefront/internal/service/checkout"
	productsvc "ourofino-storefront/internal/service/product"
)

type CheckoutService interface {
	Submit(ctx context.Context, cart checkout.Cart, req checkout.Request, ui checkout.UI) (*checkout.Result, error)
}

type ProductService interface {
	List(ctx context.Context, params productrepo.ListParams) ([]domain.Product, error)
	Showcase(ctx context.Context) ([]domain.Product, error)
	ByCollection(ctx context.Context, collectionID int) ([]domain.Product, error)
	Get(ctx context.Context, id int) (*domain.Product, error)
	Resolve(ctx context.Context, id int, size string) (*productsvc.Priced, error)
}

type CategoryService interface {
	Tree(ctx context.Context) ([]domain.Category, error)
}

type CustomerService interface {
	SaveAddress(ctx context.Context, who domain.Customer, addr domain.Address) (*domain.Address, error)
	MirrorIdentityEvent(ctx context.Context, ev domain.IdentityEvent) error
}

type OrderLister interface {
	ListByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error)
}

type FavoriteService interface {
	Add(ctx context.Context, who domain.Customer, productID int) (*domain.Favorite, error)
	List(ctx context.Context, email string) ([]favrepo.Entry, error)
	Remove(ctx context.Context, email string, productID int) error
}

type PaymentMethods interface {
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
}

type ShippingQuoter interface {
	Quote(ctx context.Context, destination string, packages []domain.Package) ([]domain.ShippingOption, error)
}

// SessionVerifier validates identity provider session tokens.
type SessionVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// UserDirectory fills in profile fields a session token does not carry.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (domain.Identity, error)
}

type WebhookVerifier interface {
	Verify(h http.Header, body []byte) error
}

// AnonymousIssuer hands out and checks anonymous visitor tokens.
type AnonymousIssuer interface {
	Issue(ctx context.Context) (token, anonymousID string, err error)
	LookupByToken(ctx context.Context, token string) (string, error)
	TTLSeconds() int
}

// Deps holds the services the router needs.
type Deps struct {
	Carts      *cartsvc.Sessions
	Checkout   CheckoutService
	Products   ProductService
	Categories CategoryService
	Customers  CustomerService
	Orders     OrderLister
	Favorites  FavoriteService
	Payments   PaymentMethods
	Shipping   ShippingQuoter
	Sessions   SessionVerifier
	Users      UserDirectory
	Webhooks   WebhookVerifier
	Anonymous  AnonymousIssuer
	Chat       *chatsvc.Hub
	Settings   settings.Repository
	Probes     map[string]Probe
}

// Options tunes the transport layer.
type Options struct {
	CORSOrigins       []string
	RateLimitRPS      int
	RateLimitBurst    int
	SecureCookies     bool
	ChatLoginRequired bool
	AgentIDs          []string
}

// buildRouter wires routes for the API.
func buildRouter(deps Deps, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &handlers{deps: deps, opts: opts, logger: logger, agents: make(map[string]struct{}, len(opts.AgentIDs))}
	for _, id := range opts.AgentIDs {
		h.agents[id] = struct{}{}
	}
	limited := newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware()

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Probes, logger))
	router.POST("/webhooks/identity", limited, h.identityWebhook)

	api := router.Group("/", identityMiddleware(deps.Sessions, deps.Users, logger))

	cart := api.Group("/cart")
	cart.GET("", h.getCart)
	cart.POST("/items", h.addCartItem)
	cart.DELETE("/items", h.clearCart)
	cart.DELETE("/items/:productId", h.removeCartItem)
	cart.POST("/items/:productId/increase", h.increaseCartItem)
	cart.POST("/items/:productId/decrease", h.decreaseCartItem)
	cart.PUT("/items/:productId/size", h.updateCartItemSize)
	cart.PUT("/step", h.setStep)
	cart.DELETE("/step", h.resetStep)
	cart.POST("/reset", h.resetCart)
	cart.POST("/force-reset", h.forceResetCart)
	cart.PUT("/order-completed", h.setOrderCompleted)

	api.POST("/checkout", limited, requireIdentity, h.submitCheckout)
	api.GET("/payment-methods", h.listPaymentMethods)
	api.POST("/shipping/quotes", h.quoteShipping)

	api.GET("/products", h.listProducts)
	api.GET("/products/showcase", h.showcase)
	api.GET("/products/:id", h.getProduct)
	api.GET("/collections", h.listCollections)

	me := api.Group("/me", requireIdentity)
	me.GET("/orders", h.listOrders)
	me.GET("/favorites", h.listFavorites)
	me.POST("/favorites", h.addFavorite)
	me.DELETE("/favorites/:productId", h.removeFavorite)
	me.PUT("/address", h.saveAddress)

	chat := api.Group("/chat")
	chat.GET("/stream", h.customerStream)
	chat.GET("/state", h.customerState)
	chat.GET("/suggestions", h.chatSuggestions)
	chat.POST("/conversations", limited, h.startChat)
	chat.POST("/conversations/:id/select", h.selectChat)
	chat.POST("/conversations/:id/cancel", h.cancelChat)
	chat.POST("/messages", limited, h.customerMessage)

	agent := api.Group("/agent/chat", requireIdentity, h.requireAgent)
	agent.GET("/stream", h.agentStream)
	agent.GET("/conversations", h.agentConversations)
	agent.GET("/templates", h.agentTemplates)
	agent.POST("/conversations/:id/claim", h.claimChat)
	agent.POST("/conversations/:id/activate", h.activateChat)
	agent.POST("/conversations/:id/history", h.showHistory)
	agent.DELETE("/history", h.hideHistory)
	agent.POST("/messages", limited, h.agentMessage)
	agent.POST("/template-messages", limited, h.agentTemplateMessage)
	agent.POST("/conversations/:id/close-request", h.requestClose)
	agent.DELETE("/close-request", h.dismissClose)
	agent.POST("/close-confirm", h.confirmClose)

	return router
}

type handlers struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	agents map[string]struct{}
}
