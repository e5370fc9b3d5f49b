package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
)

const redisChangeChannel = "cart-storage:changes"

type redisRepo struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
	origin string
}

// NewRedis returns a Repository storing each slot under cart-storage:<key>.
// A zero ttl keeps slots until deleted.
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) SharedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisRepo{client: client, logger: logger, ttl: ttl, origin: uuid.NewString()}
}

func (r *redisRepo) Load(ctx context.Context, key string) (*domain.CartState, error) {
	raw, err := r.client.Get(ctx, StorageKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var state domain.CartState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	return &state, nil
}

func (r *redisRepo) Save(ctx context.Context, key string, state domain.CartState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, StorageKeyPrefix+key, raw, r.ttl).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

func (r *redisRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, StorageKeyPrefix+key).Err(); err != nil {
		return err
	}
	r.publish(ctx, key)
	return nil
}

func (r *redisRepo) publish(ctx context.Context, key string) {
	payload, _ := json.Marshal(changeNotice{Key: key, Origin: r.origin})
	if err := r.client.Publish(ctx, redisChangeChannel, payload).Err(); err != nil {
		r.logger.Warn("cart repo: publish change", zap.String("key", key), zap.Error(err))
	}
}

func (r *redisRepo) Changes(ctx context.Context) (<-chan string, error) {
	sub := r.client.Subscribe(ctx, redisChangeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var notice changeNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					r.logger.Warn("cart repo: malformed notice", zap.String("payload", msg.Payload))
					continue
				}
				if notice.Origin == r.origin {
					continue
				}
				select {
				case out <- notice.Key:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
