package recipes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	menu    map[int64]MenuItem
	recipes map[int64][]Row
	known   map[int64]bool
	lookups atomic.Int64
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{menu: map[int64]MenuItem{}, recipes: map[int64][]Row{}, known: map[int64]bool{}}
}

func (m *memoryRepo) Recipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	m.lookups.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menu[menuItemID]; !ok {
		return Recipe{}, ErrRecipeLookup
	}
	return Recipe{MenuItemID: menuItemID, Rows: append([]Row{}, m.recipes[menuItemID]...)}, nil
}

func (m *memoryRepo) CreateMenuItem(ctx context.Context, item MenuItem) (MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	item.ID = m.nextID
	m.menu[item.ID] = item
	return item, nil
}

func (m *memoryRepo) GetMenuItem(ctx context.Context, id int64) (MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.menu[id]
	if !ok {
		return MenuItem{}, ErrRecipeLookup
	}
	return item, nil
}

func (m *memoryRepo) ReplaceRecipe(ctx context.Context, menuItemID int64, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.menu[menuItemID]; !ok {
		return ErrRecipeLookup
	}
	for _, row := range rows {
		if !m.known[row.InventoryItemID] {
			return ErrUnknownInventoryItem
		}
	}
	m.recipes[menuItemID] = append([]Row{}, rows...)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExpandMultipliesEveryRow(t *testing.T) {
	repo := newMemoryRepo()
	combo, _ := repo.CreateMenuItem(context.Background(), MenuItem{Name: "Combo"})
	repo.recipes[combo.ID] = []Row{
		{InventoryItemID: 1, QuantityPerUnit: d("5")},
		{InventoryItemID: 2, QuantityPerUnit: d("0.25")},
	}
	demand, err := NewExpander(repo).Expand(context.Background(), combo.ID, d("2"))
	require.NoError(t, err)
	require.Len(t, demand, 2)
	require.True(t, demand[1].Equal(d("10")))
	require.True(t, demand[2].Equal(d("0.5")))
}

func TestExpandEmptyRecipeHasNoStockImpact(t *testing.T) {
	repo := newMemoryRepo()
	service, _ := repo.CreateMenuItem(context.Background(), MenuItem{Name: "Waiter service"})
	demand, err := NewExpander(repo).Expand(context.Background(), service.ID, d("3"))
	require.NoError(t, err)
	require.NotNil(t, demand)
	require.Empty(t, demand)
}

func TestExpandFailures(t *testing.T) {
	repo := newMemoryRepo()
	exp := NewExpander(repo)
	_, err := exp.Expand(context.Background(), 42, d("1"))
	require.ErrorIs(t, err, ErrRecipeLookup)
	require.ErrorIs(t, err, shared.ErrNotFound)

	item, _ := repo.CreateMenuItem(context.Background(), MenuItem{Name: "Combo"})
	_, err = exp.Expand(context.Background(), item.ID, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
}

func TestSetRecipeValidatesRows(t *testing.T) {
	repo := newMemoryRepo()
	repo.known[1] = true
	repo.known[2] = true
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()
	item, err := svc.CreateMenuItem(ctx, CreateMenuItemInput{Name: "Combo", Price: d("12.499")})
	require.NoError(t, err)
	require.True(t, item.Price.Equal(d("12.50")))

	_, err = svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 1, QuantityPerUnit: d("0")}}, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 1, QuantityPerUnit: d("1")}, {InventoryItemID: 1, QuantityPerUnit: d("2")}}, 0)
	require.ErrorIs(t, err, ErrDuplicateRow)
	_, err = svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 9, QuantityPerUnit: d("1")}}, 0)
	require.ErrorIs(t, err, ErrUnknownInventoryItem)

	recipe, err := svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 1, QuantityPerUnit: d("5")}}, 0)
	require.NoError(t, err)
	require.Len(t, recipe.Rows, 1)

	_, err = svc.CreateMenuItem(ctx, CreateMenuItemInput{Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCachedSourceReadThroughAndInvalidate(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := newMemoryRepo()
	repo.known[1] = true
	ctx := context.Background()
	item, _ := repo.CreateMenuItem(ctx, MenuItem{Name: "Combo"})
	repo.recipes[item.ID] = []Row{{InventoryItemID: 1, QuantityPerUnit: d("5")}}

	cached := NewCachedSource(repo, rdb, time.Minute, nil)
	first, err := cached.Recipe(ctx, item.ID)
	require.NoError(t, err)
	second, err := cached.Recipe(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.lookups.Load())
	require.True(t, first.Rows[0].QuantityPerUnit.Equal(second.Rows[0].QuantityPerUnit))
	require.True(t, mr.Exists(cacheKey(item.ID, 0)))

	svc := NewService(repo, cached, cached, nil, nil)
	_, err = svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 1, QuantityPerUnit: d("7")}}, 0)
	require.NoError(t, err)
	gen, err := mr.Get(generationKey(item.ID))
	require.NoError(t, err)
	require.Equal(t, "1", gen)
	require.False(t, mr.Exists(cacheKey(item.ID, 1)))

	updated, err := svc.GetRecipe(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, updated.Rows[0].QuantityPerUnit.Equal(d("7")))
}

func TestCachedSourceDoesNotCacheMissingMenuItems(t *testing.T) {
	mr, rdb := newRedis(t)
	cached := NewCachedSource(newMemoryRepo(), rdb, time.Minute, nil)
	_, err := cached.Recipe(context.Background(), 5)
	require.ErrorIs(t, err, ErrRecipeLookup)
	require.False(t, mr.Exists(cacheKey(5, 0)))
}

// gatedSource holds its first lookup until release is closed.
type gatedSource struct {
	next    Source
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) Recipe(ctx context.Context, menuItemID int64) (Recipe, error) {
	recipe, err := g.next.Recipe(ctx, menuItemID)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-g.release
	}
	return recipe, err
}

func TestCachedSourceIgnoresLoadFinishingAfterInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	repo := newMemoryRepo()
	repo.known[1] = true
	ctx := context.Background()
	item, _ := repo.CreateMenuItem(ctx, MenuItem{Name: "Combo"})
	repo.recipes[item.ID] = []Row{{InventoryItemID: 1, QuantityPerUnit: d("5")}}

	gated := &gatedSource{next: repo, started: make(chan struct{}), release: make(chan struct{})}
	cached := NewCachedSource(gated, rdb, time.Minute, nil)
	svc := NewService(repo, cached, cached, nil, nil)

	loaded := make(chan Recipe, 1)
	go func() {
		recipe, err := cached.Recipe(ctx, item.ID)
		if err == nil {
			loaded <- recipe
		}
		close(loaded)
	}()
	<-gated.started

	_, err := svc.SetRecipe(ctx, item.ID, []Row{{InventoryItemID: 1, QuantityPerUnit: d("7")}}, 0)
	require.NoError(t, err)
	close(gated.release)
	stale, ok := <-loaded
	require.True(t, ok)
	require.True(t, stale.Rows[0].QuantityPerUnit.Equal(d("5")))

	demand, err := NewExpander(cached).Expand(ctx, item.ID, d("2"))
	require.NoError(t, err)
	require.True(t, demand[1].Equal(d("14")), "got %s", demand[1])
}

func TestCachedSourceFallsBackWhenRedisIsDown(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := newMemoryRepo()
	item, _ := repo.CreateMenuItem(context.Background(), MenuItem{Name: "Combo"})
	cached := NewCachedSource(repo, rdb, time.Minute, nil)
	mr.Close()

	recipe, err := cached.Recipe(context.Background(), item.ID)
	require.NoError(t, err)
	require.Empty(t, recipe.Rows)
}

func TestExpandHandler(t *testing.T) {
	repo := newMemoryRepo()
	item, _ := repo.CreateMenuItem(context.Background(), MenuItem{Name: "Combo"})
	repo.recipes[item.ID] = []Row{{InventoryItemID: 3, QuantityPerUnit: d("1.5")}}
	h := NewHandler(nil, NewService(repo, nil, nil, nil, nil), NewExpander(repo))
	router := chi.NewRouter()
	router.Route("/menu-items", h.MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu-items/1/expand?qty=4", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Demand map[string]decimal.Decimal `json:"demand"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.True(t, body.Demand["3"].Equal(d("6")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu-items/99/expand?qty=1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/menu-items/1/recipe", strings.NewReader(`{"rows":[{"inventory_item_id":0,"quantity_per_unit":"1"}]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
