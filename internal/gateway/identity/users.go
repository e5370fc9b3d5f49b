package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ourofino-storefront/internal/domain"
)

// toIdentity flattens a provider user. The primary address wins over the
// first one listed.
func toIdentity(u *clerk.User) domain.Identity {
	id := domain.Identity{
		UserID:    u.ID,
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
		ImageURL:  deref(u.ImageURL),
	}
	primary := deref(u.PrimaryEmailAddressID)
	for i, e := range u.EmailAddresses {
		if e == nil {
			continue
		}
		if i == 0 || e.ID == primary {
			id.Email = e.EmailAddress
		}
	}
	if len(u.PhoneNumbers) > 0 && u.PhoneNumbers[0] != nil {
		id.Phone = u.PhoneNumbers[0].PhoneNumber
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type cachedUser struct {
	identity domain.Identity
	expires  time.Time
}

// Users fetches profiles from the provider backend API. Results are cached
// briefly and concurrent lookups for one user share a request.
type Users struct {
	client *user.Client
	logger *zap.Logger
	ttl    time.Duration
	group  singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedUser
}

func NewUsers(baseURL, secretKey string, httpClient *http.Client, logger *zap.Logger) *Users {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(secretKey)
	cfg.HTTPClient = httpClient
	if baseURL != "" {
		cfg.URL = clerk.String(baseURL)
	}
	return &Users{
		client: user.NewClient(cfg),
		logger: logger,
		ttl:    5 * time.Minute,
		cache:  make(map[string]cachedUser),
	}
}

func (u *Users) Get(ctx context.Context, userID string) (domain.Identity, error) {
	u.mu.Lock()
	if c, ok := u.cache[userID]; ok && time.Now().Before(c.expires) {
		u.mu.Unlock()
		return c.identity, nil
	}
	u.mu.Unlock()

	v, err, _ := u.group.Do(userID, func() (any, error) {
		return u.fetch(ctx, userID)
	})
	if err != nil {
		return domain.Identity{}, err
	}
	id := v.(domain.Identity)
	u.mu.Lock()
	u.cache[userID] = cachedUser{identity: id, expires: time.Now().Add(u.ttl)}
	u.mu.Unlock()
	return id, nil
}

func (u *Users) fetch(ctx context.Context, userID string) (domain.Identity, error) {
	usr, err := u.client.Get(ctx, userID)
	if err != nil {
		var apiErr *clerk.APIErrorResponse
		if errors.As(err, &apiErr) {
			if apiErr.HTTPStatusCode == http.StatusNotFound {
				return domain.Identity{}, domain.ErrNotFound
			}
			u.logger.Warn("identity user lookup failed", zap.String("user_id", userID), zap.Int("status", apiErr.HTTPStatusCode))
		}
		return domain.Identity{}, fmt.Errorf("identity user lookup: %w", err)
	}
	return toIdentity(usr), nil
}
