package cart

import (
	"context"

	"ourofino-storefront/internal/domain"
)

// StorageKeyPrefix namespaces cart slots, one per browsing session.
const StorageKeyPrefix = "cart-storage:"

// Repository is the durable slot holding one serialized CartState per session.
// Load returns domain.ErrNotFound when the slot is empty.
type Repository interface {
	Load(ctx context.Context, key string) (*domain.CartState, error)
	Save(ctx context.Context, key string, state domain.CartState) error
	Delete(ctx context.Context, key string) error
}

// ChangeFeed is implemented by repositories shared between processes. The channel
// yields the keys of slots written by other processes and is closed when ctx ends.
type ChangeFeed interface {
	Changes(ctx context.Context) (<-chan string, error)
}

// SharedRepository is a Repository that announces writes to other processes.
type SharedRepository interface {
	Repository
	ChangeFeed
}

type changeNotice struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}
