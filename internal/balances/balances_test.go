package balances

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type quoteRow struct {
	discount decimal.Decimal
	total    decimal.Decimal
	lines    map[int64]decimal.Decimal
}

type poRow struct {
	supplierID int64
	total      decimal.Decimal
	items      map[int64]decimal.Decimal
}

type supplierRow struct {
	purchases decimal.Decimal
	paid      decimal.Decimal
	payments  map[int64]decimal.Decimal
}

type orderRow struct {
	received decimal.Decimal
	payments map[int64]decimal.Decimal
}

// memoryStore keeps parents and children in maps; children can be edited out of band.
type memoryStore struct {
	mu        sync.Mutex
	quotes    map[int64]*quoteRow
	pos       map[int64]*poRow
	suppliers map[int64]*supplierRow
	orders    map[int64]*orderRow
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		quotes:    map[int64]*quoteRow{},
		pos:       map[int64]*poRow{},
		suppliers: map[int64]*supplierRow{},
		orders:    map[int64]*orderRow{},
	}
}

func values(m map[int64]decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (m *memoryStore) QuoteForUpdate(ctx context.Context, id int64) (decimal.Decimal, decimal.Decimal, error) {
	q, ok := m.quotes[id]
	if !ok {
		return decimal.Zero, decimal.Zero, ErrQuoteNotFound
	}
	return q.discount, q.total, nil
}

func (m *memoryStore) QuoteLineTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return values(m.quotes[id].lines), nil
}

func (m *memoryStore) SetQuoteTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	m.quotes[id].total = total
	return nil
}

func (m *memoryStore) PurchaseOrderForUpdate(ctx context.Context, id int64) (int64, decimal.Decimal, error) {
	po, ok := m.pos[id]
	if !ok {
		return 0, decimal.Zero, ErrPurchaseOrderNotFound
	}
	return po.supplierID, po.total, nil
}

func (m *memoryStore) PurchaseOrderItemTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return values(m.pos[id].items), nil
}

func (m *memoryStore) SetPurchaseOrderTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	m.pos[id].total = total
	return nil
}

func (m *memoryStore) SupplierForUpdate(ctx context.Context, id int64) (decimal.Decimal, decimal.Decimal, error) {
	s, ok := m.suppliers[id]
	if !ok {
		return decimal.Zero, decimal.Zero, ErrSupplierNotFound
	}
	return s.purchases, s.paid, nil
}

func (m *memoryStore) SupplierPurchaseOrderTotals(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, po := range m.pos {
		if po.supplierID == id {
			out = append(out, po.total)
		}
	}
	return out, nil
}

func (m *memoryStore) SupplierPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return values(m.suppliers[id].payments), nil
}

func (m *memoryStore) SetSupplierTotals(ctx context.Context, id int64, purchases, paid decimal.Decimal) error {
	m.suppliers[id].purchases, m.suppliers[id].paid = purchases, paid
	return nil
}

func (m *memoryStore) OrderForUpdate(ctx context.Context, id int64) (decimal.Decimal, error) {
	o, ok := m.orders[id]
	if !ok {
		return decimal.Zero, ErrOrderNotFound
	}
	return o.received, nil
}

func (m *memoryStore) OrderPaymentAmounts(ctx context.Context, id int64) ([]decimal.Decimal, error) {
	return values(m.orders[id].payments), nil
}

func (m *memoryStore) SetOrderReceived(ctx context.Context, id int64, received decimal.Decimal) error {
	m.orders[id].received = received
	return nil
}

func (m *memoryStore) WithStore(ctx context.Context, fn func(context.Context, Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func sortedKeys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *memoryStore) Parents(ctx context.Context) (Parents, error) {
	return Parents{
		Quotes:         sortedKeys(m.quotes),
		PurchaseOrders: sortedKeys(m.pos),
		Suppliers:      sortedKeys(m.suppliers),
		Orders:         sortedKeys(m.orders),
	}, nil
}

type recordingMetrics struct {
	recalcs map[string]int
	drift   map[string]int
}

func (r *recordingMetrics) ObserveRecalc(kind string) {
	if r.recalcs == nil {
		r.recalcs = map[string]int{}
	}
	r.recalcs[kind]++
}

func (r *recordingMetrics) ObserveDrift(kind string, n int) {
	if r.drift == nil {
		r.drift = map[string]int{}
	}
	r.drift[kind] = n
}

func TestQuoteTotalScenario(t *testing.T) {
	st := newMemoryStore()
	st.quotes[1] = &quoteRow{discount: d("10"), lines: map[int64]decimal.Decimal{1: d("1000"), 2: d("500")}}
	recalc := NewRecalculator(nil)
	ctx := context.Background()

	total, err := recalc.RecalcQuoteTotal(ctx, st, 1)
	require.NoError(t, err)
	require.Equal(t, "1350.00", total.StringFixed(2))

	delete(st.quotes[1].lines, 2)
	total, err = recalc.RecalcQuoteTotal(ctx, st, 1)
	require.NoError(t, err)
	require.Equal(t, "900.00", total.StringFixed(2))
	require.True(t, st.quotes[1].total.Equal(d("900")))
}

func TestRules(t *testing.T) {
	require.True(t, LineTotal(d("3"), d("33.335")).Equal(d("100.01")))
	require.True(t, LineTotal(d("1"), d("0.005")).Equal(d("0.01")))
	require.True(t, QuoteTotal(nil, d("15")).IsZero())
	require.True(t, QuoteTotal([]decimal.Decimal{d("99.99")}, d("33.33")).Equal(d("66.66")))
	require.True(t, QuoteTotal([]decimal.Decimal{d("250")}, d("100")).IsZero())
	purchases, paid := SupplierTotals([]decimal.Decimal{d("10.50"), d("4.50")}, []decimal.Decimal{d("3")})
	require.True(t, purchases.Equal(d("15")))
	require.True(t, paid.Equal(d("3")))
	require.True(t, ValidDiscount(d("0")))
	require.True(t, ValidDiscount(d("100")))
	require.False(t, ValidDiscount(d("100.01")))
	require.False(t, ValidDiscount(d("-1")))
}

func TestPurchaseOrderChainUpdatesSupplier(t *testing.T) {
	st := newMemoryStore()
	st.suppliers[1] = &supplierRow{payments: map[int64]decimal.Decimal{1: d("200")}}
	st.pos[1] = &poRow{supplierID: 1, items: map[int64]decimal.Decimal{1: d("150"), 2: d("75.25")}}
	st.pos[2] = &poRow{supplierID: 1, total: d("100"), items: map[int64]decimal.Decimal{1: d("100")}}
	metrics := &recordingMetrics{}
	recalc := NewRecalculator(metrics)

	require.NoError(t, recalc.RecalcPurchaseOrderChain(context.Background(), st, 1))
	require.True(t, st.pos[1].total.Equal(d("225.25")))
	require.True(t, st.suppliers[1].purchases.Equal(d("325.25")))
	require.True(t, st.suppliers[1].paid.Equal(d("200")))
	require.Equal(t, 1, metrics.recalcs[KindPurchaseOrder])
	require.Equal(t, 1, metrics.recalcs[KindSupplier])

	_, _, err := recalc.RecalcPurchaseOrderTotal(context.Background(), st, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecalcConvergesAfterAnySequence(t *testing.T) {
	st := newMemoryStore()
	st.orders[1] = &orderRow{payments: map[int64]decimal.Decimal{}}
	recalc := NewRecalculator(nil)
	ctx := context.Background()

	steps := []func(){
		func() { st.orders[1].payments[1] = d("100") },
		func() { st.orders[1].payments[2] = d("250.50") },
		func() { st.orders[1].payments[1] = d("80") },
		func() { delete(st.orders[1].payments, 2) },
		func() { st.orders[1].payments[3] = d("0.01") },
	}
	for _, step := range steps {
		step()
		got, err := recalc.RecalcOrderReceived(ctx, st, 1)
		require.NoError(t, err)
		require.True(t, got.Equal(Sum(values(st.orders[1].payments))))
		require.True(t, st.orders[1].received.Equal(got))
	}
}

func TestReconcilerFindsAndRepairsDrift(t *testing.T) {
	st := newMemoryStore()
	st.quotes[1] = &quoteRow{discount: d("10"), total: d("1350"), lines: map[int64]decimal.Decimal{1: d("1000"), 2: d("500")}}
	st.suppliers[1] = &supplierRow{purchases: d("50"), paid: d("0"), payments: map[int64]decimal.Decimal{}}
	st.pos[1] = &poRow{supplierID: 1, total: d("50"), items: map[int64]decimal.Decimal{1: d("50")}}
	st.orders[1] = &orderRow{received: d("10"), payments: map[int64]decimal.Decimal{1: d("10")}}
	metrics := &recordingMetrics{}
	reconciler := NewReconciler(st, NewRecalculator(metrics), nil)
	ctx := context.Background()

	drifts, err := reconciler.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	// out-of-band edits
	delete(st.quotes[1].lines, 2)
	st.pos[1].items[2] = d("25")
	st.orders[1].payments[2] = d("5")

	drifts, err = reconciler.Check(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 3)
	require.Equal(t, 1, metrics.drift[KindQuote])
	require.Equal(t, 0, metrics.drift[KindSupplier])

	repaired, err := reconciler.Repair(ctx)
	require.NoError(t, err)
	require.Len(t, repaired, 3)
	require.True(t, st.quotes[1].total.Equal(d("900")))
	require.True(t, st.pos[1].total.Equal(d("75")))
	require.True(t, st.suppliers[1].purchases.Equal(d("75")))
	require.True(t, st.orders[1].received.Equal(d("15")))

	drifts, err = reconciler.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestDriftEndpoint(t *testing.T) {
	st := newMemoryStore()
	st.orders[4] = &orderRow{received: d("0"), payments: map[int64]decimal.Decimal{1: d("12.5")}}
	router := chi.NewRouter()
	router.Route("/admin/balances", NewHandler(nil, NewReconciler(st, NewRecalculator(nil), nil)).MountRoutes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/balances/drift", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Drifts []Drift `json:"drifts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Drifts, 1)
	require.Equal(t, KindOrder, body.Drifts[0].Kind)
	require.Equal(t, int64(4), body.Drifts[0].ID)
}
