package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"ourofino-storefront/internal/config"
	"ourofino-storefront/internal/db"
	"ourofino-storefront/internal/gateway/identity"
	"ourofino-storefront/internal/gateway/payment"
	"ourofino-storefront/internal/gateway/shipping"
	"ourofino-storefront/internal/httpserver"
	"ourofino-storefront/internal/logging"
	"ourofino-storefront/internal/migrate"
	cartrepo "ourofino-storefront/internal/repository/cart"
	categoryrepo "ourofino-storefront/internal/repository/category"
	"ourofino-storefront/internal/repository/conversation"
	customerrepo "ourofino-storefront/internal/repository/customer"
	favoriterepo "ourofino-storefront/internal/repository/favorite"
	orderrepo "ourofino-storefront/internal/repository/order"
	productrepo "ourofino-storefront/internal/repository/product"
	"ourofino-storefront/internal/repository/settings"
	anonymoussvc "ourofino-storefront/internal/service/anonymous"
	cartsvc "ourofino-storefront/internal/service/cart"
	categorysvc "ourofino-storefront/internal/service/category"
	chatsvc "ourofino-storefront/internal/service/chat"
	"ourofino-storefront/internal/service/checkout"
	customersvc "ourofino-storefront/internal/service/customer"
	favoritesvc "ourofino-storefront/internal/service/favorite"
	productsvc "ourofino-storefront/internal/service/product"
	"ourofino-storefront/internal/strapi"
)

const cartRedisTTL = 30 * 24 * time.Hour

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, "api")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probes := map[string]httpserver.Probe{}

	cartRepo, closeCarts, err := openCartRepo(ctx, cfg, logger, probes)
	if err != nil {
		logger.Fatal("open cart storage", zap.String("storage", cfg.CartStorage), zap.Error(err))
	}
	defer closeCarts()

	conversations, closeChats, err := openConversations(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open conversation store", zap.Error(err))
	}
	defer closeChats()

	backend := strapi.New(cfg.StrapiHost, cfg.StrapiToken, nil, logger.Named("strapi"))
	customerService := customersvc.New(customerrepo.NewStrapi(backend, logger), logger)
	orderRepo := orderrepo.NewStrapi(backend, logger)
	productService := productsvc.New(productrepo.NewStrapi(backend, logger))
	categoryService := categorysvc.New(categoryrepo.NewStrapi(backend, logger))
	favoriteService := favoritesvc.New(favoriterepo.NewStrapi(backend, logger), customerService, logger)
	settingsRepo := settings.NewStrapi(backend, logger)

	payments, err := payment.New(cfg.Payment, nil, logger.Named("payment"))
	if err != nil {
		logger.Fatal("configure payment gateway", zap.Error(err))
	}
	checkoutService := checkout.New(customerService, payments, orderRepo, checkout.Config{Sandbox: cfg.Payment.Sandbox}, logger.Named("checkout"))

	deps := httpserver.Deps{
		Carts:      cartsvc.NewSessions(cartRepo, cfg.CartSessionIdle, logger.Named("cart")),
		Checkout:   checkoutService,
		Products:   productService,
		Categories: categoryService,
		Customers:  customerService,
		Orders:     orderRepo,
		Favorites:  favoriteService,
		Payments:   payments,
		Shipping:   shipping.New(cfg.Shipping, nil, logger.Named("shipping")),
		Anonymous:  anonymoussvc.New(cfg.Identity.AnonymousSecret, cfg.Identity.AnonymousTTL),
		Settings:   settingsRepo,
		Probes:     probes,
	}
	wireIdentity(&deps, cfg.Identity, logger)

	loc, err := time.LoadLocation(cfg.Chat.BusinessTimezone)
	if err != nil {
		logger.Warn("unknown business timezone, using UTC", zap.String("tz", cfg.Chat.BusinessTimezone), zap.Error(err))
		loc = time.UTC
	}
	templates, err := chatsvc.LoadTemplates(cfg.Chat.TemplatesFile)
	if err != nil {
		logger.Fatal("load chat templates", zap.String("path", cfg.Chat.TemplatesFile), zap.Error(err))
	}
	hub := chatsvc.NewHub(ctx, conversations, templates, chatsvc.DefaultBusinessHours(loc), cfg.Chat.ViewIdle, logger.Named("chat"))
	deps.Chat = hub

	srv := httpserver.New(cfg.HTTPAddr, deps, httpserver.Options{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		SecureCookies:     cfg.SecureCookies,
		ChatLoginRequired: cfg.Chat.RequireLogin,
		AgentIDs:          cfg.Chat.AgentIDs,
	}, logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Carts.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// openCartRepo picks the cart snapshot store. Postgres and redis are shared
// between instances; memory is for single-process development.
func openCartRepo(ctx context.Context, cfg config.Config, logger *zap.Logger, probes map[string]httpserver.Probe) (cartrepo.Repository, func(), error) {
	switch cfg.CartStorage {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DBConnString, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Apply(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		probes["postgres"] = pool.Ping
		return cartrepo.NewPostgres(pool, logger), pool.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return cartrepo.NewRedis(client, cartRedisTTL, logger), func() { _ = client.Close() }, nil
	default:
		logger.Warn("cart snapshots kept in memory", zap.String("storage", cfg.CartStorage))
		return cartrepo.NewMemory(), func() {}, nil
	}
}

func openConversations(ctx context.Context, cfg config.Config, logger *zap.Logger) (conversation.Repository, func(), error) {
	if cfg.Chat.FirebaseProjectID == "" {
		logger.Warn("no firebase project configured, conversations kept in memory")
		return conversation.NewMemory(), func() {}, nil
	}
	var opts []option.ClientOption
	if cfg.Chat.FirebaseCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Chat.FirebaseCredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Chat.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, nil, err
	}
	var client *firestore.Client
	if client, err = app.Firestore(ctx); err != nil {
		return nil, nil, err
	}
	return conversation.NewFirestore(client, logger.Named("firestore")), func() { _ = client.Close() }, nil
}

// wireIdentity installs the identity provider integrations that have keys
// configured. Without them every request is anonymous.
func wireIdentity(deps *httpserver.Deps, cfg config.IdentityConfig, logger *zap.Logger) {
	if cfg.JWTPublicKey != "" {
		verifier, err := identity.NewSessionVerifier(cfg.JWTPublicKey)
		if err != nil {
			logger.Fatal("parse session public key", zap.Error(err))
		}
		deps.Sessions = verifier
	}
	if cfg.SecretKey != "" {
		deps.Users = identity.NewUsers(cfg.APIURL, cfg.SecretKey, nil, logger.Named("identity"))
	}
	if cfg.WebhookSecret != "" {
		verifier, err := identity.NewWebhookVerifier(cfg.WebhookSecret)
		if err != nil {
			logger.Fatal("parse webhook secret", zap.Error(err))
		}
		deps.Webhooks = verifier
	}
}
