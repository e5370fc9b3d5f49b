package cart

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	cartrepo "ourofino-storefront/internal/repository/cart"
)

// Observer receives a copy of the state after every applied mutation.
type Observer func(domain.CartState)

// Store is the single source of truth for one session's cart and checkout step.
// Mutations never fail: persistence errors are logged and the in-memory state
// stays authoritative.
type Store struct {
	mu        sync.Mutex
	key       string
	repo      cartrepo.Repository
	logger    *zap.Logger
	state     domain.CartState
	observers map[int]Observer
	nextObs   int
	reload    func(ctx context.Context)
}

type Option func(*Store)

// WithReloader sets the hook ForceReset uses to rebuild the presentation layer.
func WithReloader(fn func(ctx context.Context)) Option {
	return func(s *Store) { s.reload = fn }
}

// Load builds a Store from the persisted slot, or an empty cart when the slot is
// missing or unreadable.
func Load(ctx context.Context, repo cartrepo.Repository, key string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		key:       key,
		repo:      repo,
		logger:    logger.With(zap.String("cart", key)),
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.loadOrDefault(ctx)
	return s
}

func (s *Store) loadOrDefault(ctx context.Context) domain.CartState {
	persisted, err := s.repo.Load(ctx, s.key)
	switch {
	case err == nil:
		st := *persisted
		st.Step = st.Step.Clamp()
		return st
	case errors.Is(err, domain.ErrNotFound):
	default:
		s.logger.Warn("cart: rehydrate failed, starting empty", zap.Error(err))
	}
	return domain.CartState{Lines: []domain.CartLine{}}
}

// Key returns the storage slot name.
func (s *Store) Key() string { return s.key }

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers fn and returns a function removing it.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// mutate applies fn to a copy of the state. When fn reports a change the copy
// becomes current, is persisted and observers are notified.
func (s *Store) mutate(ctx context.Context, op string, fn func(st *domain.CartState) bool) {
	s.mu.Lock()
	next := s.state.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	next.Version = s.state.Version + 1
	s.state = next
	if err := s.repo.Save(ctx, s.key, next); err != nil {
		s.logger.Error("cart: persist failed", zap.String("op", op), zap.Error(err))
	}
	snapshot, observers := s.state.Clone(), s.observerList()
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

func (s *Store) observerList() []Observer {
	out := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		out = append(out, o)
	}
	return out
}

// normalizeSize collapses the size of products without variants to "".
func normalizeSize(hasVariants bool, size string) string {
	if !hasVariants {
		return ""
	}
	return size
}

func findLine(st *domain.CartState, productID int, size string) int {
	for i, l := range st.Lines {
		if l.ProductID == productID && l.Size == normalizeSize(l.Product.HasVariants, size) {
			return i
		}
	}
	return -1
}

func removeAt(lines []domain.CartLine, i int) []domain.CartLine {
	return append(lines[:i], lines[i+1:]...)
}

// AddItem merges quantity into the line keyed by (product, size) or appends a new
// line. A nil price is treated as zero. The checkout step always returns to review.
func (s *Store) AddItem(ctx context.Context, product domain.Product, quantity int, price *int64, size string) {
	var unit int64
	if price != nil {
		unit = *price
	}
	s.mutate(ctx, "addItem", func(st *domain.CartState) bool {
		if i := findLine(st, product.ID, size); i >= 0 {
			st.Lines[i].Quantity += quantity
			st.Lines[i].Recalc()
		} else {
			line := domain.CartLine{
				ProductID:      product.ID,
				Size:           normalizeSize(product.HasVariants(), size),
				Product:        product.Snapshot(),
				Quantity:       quantity,
				UnitPriceCents: unit,
			}
			line.Recalc()
			st.Lines = append(st.Lines, line)
		}
		st.Step = domain.StepReview
		return true
	})
}

func (s *Store) RemoveItem(ctx context.Context, productID int, size string) {
	s.mutate(ctx, "removeItem", func(st *domain.CartState) bool {
		i := findLine(st, productID, size)
		if i < 0 {
			return false
		}
		st.Lines = removeAt(st.Lines, i)
		return true
	})
}

func (s *Store) IncreaseQuantity(ctx context.Context, productID int, size string) {
	s.mutate(ctx, "increaseQuantity", func(st *domain.CartState) bool {
		i := findLine(st, productID, size)
		if i < 0 {
			return false
		}
		st.Lines[i].Quantity++
		st.Lines[i].Recalc()
		return true
	})
}

// DecreaseQuantity removes the line instead of leaving a zero quantity.
func (s *Store) DecreaseQuantity(ctx context.Context, productID int, size string) {
	s.mutate(ctx, "decreaseQuantity", func(st *domain.CartState) bool {
		i := findLine(st, productID, size)
		if i < 0 {
			return false
		}
		if st.Lines[i].Quantity <= 1 {
			st.Lines = removeAt(st.Lines, i)
			return true
		}
		st.Lines[i].Quantity--
		st.Lines[i].Recalc()
		return true
	})
}

// UpdateItemSize moves a line to a new size, merging into an existing line there.
// The unit price fixed at add time is kept.
func (s *Store) UpdateItemSize(ctx context.Context, productID int, oldSize, newSize string) {
	s.mutate(ctx, "updateItemSize", func(st *domain.CartState) bool {
		src := findLine(st, productID, oldSize)
		if src < 0 || !st.Lines[src].Product.HasVariants || oldSize == newSize {
			return false
		}
		if dst := findLine(st, productID, newSize); dst >= 0 {
			st.Lines[dst].Quantity += st.Lines[src].Quantity
			st.Lines[dst].Recalc()
			st.Lines = removeAt(st.Lines, src)
			return true
		}
		st.Lines[src].Size = newSize
		st.Lines[src].Recalc()
		return true
	})
}

// SetStep clamps step to the wizard range and is a no-op when unchanged.
func (s *Store) SetStep(ctx context.Context, step domain.CheckoutStep) {
	step = step.Clamp()
	s.mutate(ctx, "setStep", func(st *domain.CartState) bool {
		if st.Step == step {
			return false
		}
		st.Step = step
		return true
	})
}

func (s *Store) ResetStep(ctx context.Context) {
	s.SetStep(ctx, domain.StepReview)
}

// ClearCart empties the lines and leaves the step untouched.
func (s *Store) ClearCart(ctx context.Context) {
	s.mutate(ctx, "clearCart", func(st *domain.CartState) bool {
		st.Lines = []domain.CartLine{}
		return true
	})
}

func (s *Store) SetOrderCompleted(ctx context.Context, completed bool) {
	s.mutate(ctx, "setOrderCompleted", func(st *domain.CartState) bool {
		if st.OrderCompleted == completed {
			return false
		}
		st.OrderCompleted = completed
		return true
	})
}

// ResetCart returns to an empty cart and wipes the slot. It does nothing when the
// cart is already pristine.
func (s *Store) ResetCart(ctx context.Context) {
	s.mu.Lock()
	st := s.state
	if len(st.Lines) == 0 && st.Step == domain.StepReview && !st.OrderCompleted {
		s.mu.Unlock()
		return
	}
	s.wipeLocked(ctx, "resetCart")
}

// ForceReset unconditionally wipes the cart and its slot, then triggers a reload.
func (s *Store) ForceReset(ctx context.Context) {
	s.mu.Lock()
	s.wipeLocked(ctx, "forceReset")
	if s.reload != nil {
		s.reload(ctx)
	}
}

// wipeLocked must be called with mu held and releases it.
func (s *Store) wipeLocked(ctx context.Context, op string) {
	s.state = domain.CartState{Lines: []domain.CartLine{}, Version: s.state.Version + 1}
	if err := s.repo.Delete(ctx, s.key); err != nil {
		s.logger.Error("cart: wipe failed", zap.String("op", op), zap.Error(err))
	}
	snapshot, observers := s.state.Clone(), s.observerList()
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
}

// Rehydrate replaces the in-memory state with the persisted slot after another
// process wrote it. The slot is read under mu so a local mutation cannot land
// between the read and the swap. Last writer wins.
func (s *Store) Rehydrate(ctx context.Context) {
	s.mu.Lock()
	fresh := s.loadOrDefault(ctx)
	fresh.Version = max(fresh.Version, s.state.Version+1)
	s.state = fresh
	snapshot, observers := s.state.Clone(), s.observerList()
	s.mu.Unlock()

	s.logger.Debug("cart: rehydrated from foreign write")
	for _, obs := range observers {
		obs(snapshot)
	}
}
