package cart

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourofino-storefront/internal/domain"
	cartrepo "ourofino-storefront/internal/repository/cart"
)

func ring(id int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Anel",
		Variants: []domain.Variant{{Tier: "P", PriceCents: 10000, MinSize: 8, MaxSize: 30}},
	}
}

func chain(id int) domain.Product {
	return domain.Product{ID: id, Name: "Corrente"}
}

func price(c int64) *int64 { return &c }

func newStore(t *testing.T) (*Store, *cartrepo.Memory) {
	t.Helper()
	repo := cartrepo.NewMemory()
	return Load(context.Background(), repo, "session-1", nil), repo
}

func TestAddItem_MergesSameKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	s.AddItem(ctx, ring(7), 2, price(10000), "10")
	s.AddItem(ctx, ring(7), 3, price(10000), "10")

	st := s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 5, st.Lines[0].Quantity)
	assert.Equal(t, int64(50000), st.Lines[0].SubtotalCents)
}

func TestAddItem_NormalizesSizeWithoutVariants(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	s.AddItem(ctx, chain(3), 1, price(5000), "12")
	s.AddItem(ctx, chain(3), 1, price(5000), "18")

	st := s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "", st.Lines[0].Size)
	assert.Equal(t, 2, st.Lines[0].Quantity)

	s.RemoveItem(ctx, 3, "anything")
	assert.Empty(t, s.Snapshot().Lines)
}

func TestAddItem_MissingPriceIsZero(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	s.AddItem(ctx, chain(1), 2, nil, "")

	st := s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Zero(t, st.Lines[0].UnitPriceCents)
	assert.Zero(t, st.Lines[0].SubtotalCents)
}

func TestAddItem_ResetsStep(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.SetStep(ctx, domain.StepPayment)
	require.Equal(t, domain.StepPayment, s.Snapshot().Step)

	s.AddItem(ctx, chain(1), 1, price(100), "")
	assert.Equal(t, domain.StepReview, s.Snapshot().Step)
}

func TestDecreaseQuantity_Floor(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.AddItem(ctx, ring(7), 2, price(10000), "10")

	s.DecreaseQuantity(ctx, 7, "10")
	st := s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 1, st.Lines[0].Quantity)
	assert.Equal(t, int64(10000), st.Lines[0].SubtotalCents)

	s.DecreaseQuantity(ctx, 7, "10")
	assert.Empty(t, s.Snapshot().Lines)
}

func TestIncreaseQuantity_RecomputesSubtotal(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.AddItem(ctx, ring(7), 1, price(2500), "10")

	s.IncreaseQuantity(ctx, 7, "10")
	s.IncreaseQuantity(ctx, 7, "11")

	st := s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 2, st.Lines[0].Quantity)
	assert.Equal(t, int64(5000), st.Lines[0].SubtotalCents)
}

func TestUpdateItemSize(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.AddItem(ctx, ring(7), 1, price(10000), "10")
	s.AddItem(ctx, ring(7), 2, price(10000), "12")

	s.UpdateItemSize(ctx, 7, "10", "14")
	st := s.Snapshot()
	require.Len(t, st.Lines, 2)
	assert.Equal(t, "14", st.Lines[0].Size)

	s.UpdateItemSize(ctx, 7, "14", "12")
	st = s.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "12", st.Lines[0].Size)
	assert.Equal(t, 3, st.Lines[0].Quantity)
	assert.Equal(t, int64(30000), st.Lines[0].SubtotalCents)
}

func TestSetStep_ClampsAndGuards(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t)
	notified := 0
	s.Subscribe(func(domain.CartState) { notified++ })

	s.SetStep(ctx, 9)
	assert.Equal(t, domain.StepSummary, s.Snapshot().Step)
	s.SetStep(ctx, -4)
	assert.Equal(t, domain.StepReview, s.Snapshot().Step)

	before := s.Snapshot().Version
	writes := repo.WriteCount()
	s.SetStep(ctx, domain.StepReview)
	s.ResetStep(ctx)
	s.SetOrderCompleted(ctx, false)

	assert.Equal(t, before, s.Snapshot().Version)
	assert.Equal(t, writes, repo.WriteCount())
	assert.Equal(t, 2, notified)
}

func TestClearCart_KeepsStep(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	s.AddItem(ctx, chain(1), 1, price(100), "")
	s.SetStep(ctx, domain.StepAddress)

	s.ClearCart(ctx)
	st := s.Snapshot()
	assert.Empty(t, st.Lines)
	assert.Equal(t, domain.StepAddress, st.Step)
}

func TestResetCart_WipesStorage(t *testing.T) {
	ctx := context.Background()
	s, repo := newStore(t)
	s.AddItem(ctx, chain(1), 1, price(100), "")
	s.SetOrderCompleted(ctx, true)
	_, ok := repo.Raw("session-1")
	require.True(t, ok)

	s.ResetCart(ctx)

	_, ok = repo.Raw("session-1")
	assert.False(t, ok)
	fresh := Load(ctx, repo, "session-1", nil).Snapshot()
	assert.Empty(t, fresh.Lines)
	assert.False(t, fresh.OrderCompleted)

	writes := repo.WriteCount()
	s.ResetCart(ctx)
	assert.Equal(t, writes, repo.WriteCount(), "reset of a pristine cart must not touch storage")
}

func TestForceReset_TriggersReload(t *testing.T) {
	ctx := context.Background()
	repo := cartrepo.NewMemory()
	reloaded := false
	s := Load(ctx, repo, "k", nil, WithReloader(func(context.Context) { reloaded = true }))

	s.ForceReset(ctx)

	assert.True(t, reloaded)
	assert.Empty(t, s.Snapshot().Lines)
	_, ok := repo.Raw("k")
	assert.False(t, ok)
}

func TestLoad_Rehydrates(t *testing.T) {
	ctx := context.Background()
	repo := cartrepo.NewMemory()
	first := Load(ctx, repo, "k", nil)
	first.AddItem(ctx, ring(2), 3, price(700), "15")
	first.SetStep(ctx, domain.StepPayment)

	second := Load(ctx, repo, "k", nil)
	st := second.Snapshot()
	require.Len(t, st.Lines, 1)
	assert.Equal(t, 3, st.Lines[0].Quantity)
	assert.Equal(t, domain.StepPayment, st.Step)
}

type failingRepo struct{}

func (failingRepo) Load(context.Context, string) (*domain.CartState, error) {
	return nil, errors.New("corrupt")
}
func (failingRepo) Save(context.Context, string, domain.CartState) error { return errors.New("down") }
func (failingRepo) Delete(context.Context, string) error                 { return errors.New("down") }

func TestStore_PersistenceFailureDoesNotBlockMutation(t *testing.T) {
	ctx := context.Background()
	s := Load(ctx, failingRepo{}, "k", nil)

	s.AddItem(ctx, chain(1), 1, price(100), "")
	assert.Len(t, s.Snapshot().Lines, 1)
	s.ForceReset(ctx)
	assert.Empty(t, s.Snapshot().Lines)
}

func TestRehydrate_AdoptsForeignWrite(t *testing.T) {
	ctx := context.Background()
	repo := cartrepo.NewMemory()
	local := Load(ctx, repo, "k", nil)
	other := Load(ctx, repo, "k", nil)

	var seen domain.CartState
	local.Subscribe(func(st domain.CartState) { seen = st })
	other.AddItem(ctx, chain(5), 4, price(100), "")

	local.Rehydrate(ctx)
	require.Len(t, seen.Lines, 1)
	assert.Equal(t, 4, local.Snapshot().Lines[0].Quantity)
}

// gatedRepo pauses the first Load after arm until release is closed.
type gatedRepo struct {
	*cartrepo.Memory
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newGatedRepo() *gatedRepo {
	return &gatedRepo{Memory: cartrepo.NewMemory(), loaded: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRepo) Load(ctx context.Context, key string) (*domain.CartState, error) {
	st, err := g.Memory.Load(ctx, key)
	if g.armed.CompareAndSwap(true, false) {
		close(g.loaded)
		<-g.release
	}
	return st, err
}

func productIDs(lines []domain.CartLine) []int {
	ids := make([]int, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func TestRehydrate_KeepsConcurrentLocalMutation(t *testing.T) {
	ctx := context.Background()
	repo := newGatedRepo()
	local := Load(ctx, repo, "k", nil)
	other := Load(ctx, repo, "k", nil)
	other.AddItem(ctx, chain(1), 1, price(100), "")

	repo.armed.Store(true)
	rehydrated := make(chan struct{})
	go func() {
		local.Rehydrate(ctx)
		close(rehydrated)
	}()
	<-repo.loaded

	added := make(chan struct{})
	go func() {
		local.AddItem(ctx, chain(2), 1, price(200), "")
		close(added)
	}()
	select {
	case <-added:
		t.Fatal("mutation applied while the slot was being read")
	case <-time.After(50 * time.Millisecond):
	}
	close(repo.release)
	<-rehydrated
	<-added

	stored, err := repo.Memory.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, productIDs(local.Snapshot().Lines))
	assert.Equal(t, productIDs(local.Snapshot().Lines), productIDs(stored.Lines))
}

func TestSessions_SlowLoadDoesNotBlockOtherKeys(t *testing.T) {
	ctx := context.Background()
	repo := newGatedRepo()
	sessions := NewSessions(repo, time.Minute, nil)

	repo.armed.Store(true)
	slow := make(chan *Store, 2)
	go func() { slow <- sessions.Get(ctx, "slow") }()
	<-repo.loaded
	go func() { slow <- sessions.Get(ctx, "slow") }()

	fast := make(chan *Store)
	go func() { fast <- sessions.Get(ctx, "fast") }()
	select {
	case st := <-fast:
		assert.Equal(t, "fast", st.Key())
	case <-time.After(time.Second):
		t.Fatal("Get for another key waited on a pending load")
	}

	close(repo.release)
	a, b := <-slow, <-slow
	assert.Same(t, a, b)
	assert.Same(t, a, sessions.Get(ctx, "slow"))
	assert.Equal(t, 2, sessions.Len())
}

func TestSessions_GetSweepEvict(t *testing.T) {
	ctx := context.Background()
	repo := cartrepo.NewMemory()
	sessions := NewSessions(repo, time.Minute, nil)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	a := sessions.Get(ctx, "a")
	assert.Same(t, a, sessions.Get(ctx, "a"))
	sessions.Get(ctx, "b")

	now = now.Add(2 * time.Minute)
	sessions.Get(ctx, "b")
	assert.Equal(t, 1, sessions.Sweep())
	assert.Equal(t, 1, sessions.Len())

	b := sessions.Get(ctx, "b")
	b.ForceReset(ctx)
	assert.Equal(t, 0, sessions.Len(), "force reset evicts the session")
	assert.NotSame(t, b, sessions.Get(ctx, "b"))
}

func TestProperty_MergeInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated adds collapse into one line with summed quantity", prop.ForAll(
		func(qtys []int, unit int64) bool {
			ctx := context.Background()
			s := Load(ctx, cartrepo.NewMemory(), "p", nil)
			sum := 0
			for _, q := range qtys {
				s.AddItem(ctx, ring(7), q, &unit, "10")
				sum += q
			}
			st := s.Snapshot()
			if len(qtys) == 0 {
				return len(st.Lines) == 0
			}
			return len(st.Lines) == 1 &&
				st.Lines[0].Quantity == sum &&
				st.Lines[0].SubtotalCents == unit*int64(sum)
		},
		gen.SliceOf(gen.IntRange(1, 20)),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("decrement never leaves a zero quantity line", prop.ForAll(
		func(start, decrements int) bool {
			ctx := context.Background()
			s := Load(ctx, cartrepo.NewMemory(), "p", nil)
			s.AddItem(ctx, chain(1), start, price(100), "")
			for i := 0; i < decrements; i++ {
				s.DecreaseQuantity(ctx, 1, "")
			}
			st := s.Snapshot()
			if decrements >= start {
				return len(st.Lines) == 0
			}
			return len(st.Lines) == 1 && st.Lines[0].Quantity == start-decrements
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
