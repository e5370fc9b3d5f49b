package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
)

const pgChangeChannel = "cart_changes"

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	origin string
}

// NewPostgres returns a Repository backed by the cart_snapshots table. Writes are
// announced through LISTEN/NOTIFY so other API instances can rehydrate.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) SharedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger, origin: uuid.NewString()}
}

func (r *postgresRepo) Load(ctx context.Context, key string) (*domain.CartState, error) {
	const q = `SELECT payload FROM cart_snapshots WHERE session_key = $1`
	var payload []byte
	if err := r.pool.QueryRow(ctx, q, key).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var state domain.CartState
	if err := json.Unmarshal(payload, &state); err != nil {
		r.logger.Warn("cart repo: decode snapshot", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	return &state, nil
}

func (r *postgresRepo) Save(ctx context.Context, key string, state domain.CartState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO cart_snapshots (session_key, payload, version, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (session_key) DO UPDATE
SET payload = EXCLUDED.payload, version = EXCLUDED.version, updated_at = now()
`
	if _, err := r.pool.Exec(ctx, q, key, payload, int64(state.Version)); err != nil {
		return err
	}
	r.notify(ctx, key)
	return nil
}

func (r *postgresRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM cart_snapshots WHERE session_key = $1`, key); err != nil {
		return err
	}
	r.notify(ctx, key)
	return nil
}

func (r *postgresRepo) notify(ctx context.Context, key string) {
	payload, _ := json.Marshal(changeNotice{Key: key, Origin: r.origin})
	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChangeChannel, string(payload)); err != nil {
		r.logger.Warn("cart repo: notify", zap.String("key", key), zap.Error(err))
	}
}

// Changes holds one pooled connection in LISTEN mode until ctx ends.
func (r *postgresRepo) Changes(ctx context.Context) (<-chan string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Warn("cart repo: wait for notification", zap.Error(err))
				}
				return
			}
			var notice changeNotice
			if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil {
				r.logger.Warn("cart repo: malformed notice", zap.String("payload", n.Payload))
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
	}()
	return out, nil
}
