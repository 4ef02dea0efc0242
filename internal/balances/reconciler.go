package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-catering/internal/platform/db"
)

// Drift is a derived total that no longer matches its constituent rows.
type Drift struct {
	Kind     string          `json:"kind"`
	ID       int64           `json:"id"`
	Field    string          `json:"field"`
	Stored   decimal.Decimal `json:"stored"`
	Computed decimal.Decimal `json:"computed"`
}

// Parents lists every row carrying a derived total.
type Parents struct {
	Quotes         []int64
	PurchaseOrders []int64
	Suppliers      []int64
	Orders         []int64
}

// ReconcileRepository gives the reconciler transactional access to the store.
type ReconcileRepository interface {
	WithStore(ctx context.Context, fn func(context.Context, Store) error) error
	Parents(ctx context.Context) (Parents, error)
}

// Reconciler finds and repairs drift introduced by out-of-band edits.
type Reconciler struct {
	repo   ReconcileRepository
	recalc *Recalculator
	logger *slog.Logger
}

// NewReconciler builds Reconciler.
func NewReconciler(repo ReconcileRepository, recalc *Recalculator, logger *slog.Logger) *Reconciler {
	return &Reconciler{repo: repo, recalc: recalc, logger: logger}
}

// Check recomputes every derived total and reports mismatches without writing.
func (r *Reconciler) Check(ctx context.Context) ([]Drift, error) {
	parents, err := r.repo.Parents(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	err = r.repo.WithStore(ctx, func(ctx context.Context, st Store) error {
		drifts = nil
		for _, id := range parents.Quotes {
			d, err := checkQuote(ctx, st, id)
			if err != nil {
				return err
			}
			drifts = append(drifts, d...)
		}
		for _, id := range parents.PurchaseOrders {
			d, err := checkPurchaseOrder(ctx, st, id)
			if err != nil {
				return err
			}
			drifts = append(drifts, d...)
		}
		for _, id := range parents.Suppliers {
			d, err := checkSupplier(ctx, st, id)
			if err != nil {
				return err
			}
			drifts = append(drifts, d...)
		}
		for _, id := range parents.Orders {
			d, err := checkOrder(ctx, st, id)
			if err != nil {
				return err
			}
			drifts = append(drifts, d...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.report(drifts)
	return drifts, nil
}

// Repair rewrites every drifted total. Purchase orders are fixed before suppliers
// because supplier purchases sum purchase order totals.
func (r *Reconciler) Repair(ctx context.Context) ([]Drift, error) {
	drifts, err := r.Check(ctx)
	if err != nil {
		return nil, err
	}
	if len(drifts) == 0 {
		return nil, nil
	}
	err = r.repo.WithStore(ctx, func(ctx context.Context, st Store) error {
		suppliers := map[int64]struct{}{}
		for _, d := range drifts {
			switch d.Kind {
			case KindQuote:
				if _, err := r.recalc.RecalcQuoteTotal(ctx, st, d.ID); err != nil {
					return err
				}
			case KindPurchaseOrder:
				supplierID, _, err := r.recalc.RecalcPurchaseOrderTotal(ctx, st, d.ID)
				if err != nil {
					return err
				}
				suppliers[supplierID] = struct{}{}
			case KindSupplier:
				suppliers[d.ID] = struct{}{}
			case KindOrder:
				if _, err := r.recalc.RecalcOrderReceived(ctx, st, d.ID); err != nil {
					return err
				}
			}
		}
		for id := range suppliers {
			if _, _, err := r.recalc.RecalcSupplierTotals(ctx, st, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.logger != nil {
		r.logger.Info("balances repaired", slog.Int("drifts", len(drifts)))
	}
	return drifts, nil
}

func (r *Reconciler) report(drifts []Drift) {
	counts := map[string]int{KindQuote: 0, KindPurchaseOrder: 0, KindSupplier: 0, KindOrder: 0}
	for _, d := range drifts {
		counts[d.Kind]++
	}
	if r.recalc != nil && r.recalc.metrics != nil {
		for kind, n := range counts {
			r.recalc.metrics.ObserveDrift(kind, n)
		}
	}
	if len(drifts) > 0 && r.logger != nil {
		r.logger.Warn("balance drift detected", slog.Int("drifts", len(drifts)))
	}
}

func checkQuote(ctx context.Context, st Store, id int64) ([]Drift, error) {
	stored, computed, err := computeQuote(ctx, st, id)
	if err != nil || stored.Equal(computed) {
		return nil, err
	}
	return []Drift{{Kind: KindQuote, ID: id, Field: "total_amount", Stored: stored, Computed: computed}}, nil
}

func checkPurchaseOrder(ctx context.Context, st Store, id int64) ([]Drift, error) {
	_, stored, computed, err := computePurchaseOrder(ctx, st, id)
	if err != nil || stored.Equal(computed) {
		return nil, err
	}
	return []Drift{{Kind: KindPurchaseOrder, ID: id, Field: "total_amount", Stored: stored, Computed: computed}}, nil
}

func checkSupplier(ctx context.Context, st Store, id int64) ([]Drift, error) {
	stored, computed, err := computeSupplier(ctx, st, id)
	if err != nil || stored.equal(computed) {
		return nil, err
	}
	var out []Drift
	if !stored.purchases.Equal(computed.purchases) {
		out = append(out, Drift{Kind: KindSupplier, ID: id, Field: "total_purchases", Stored: stored.purchases, Computed: computed.purchases})
	}
	if !stored.paid.Equal(computed.paid) {
		out = append(out, Drift{Kind: KindSupplier, ID: id, Field: "total_paid", Stored: stored.paid, Computed: computed.paid})
	}
	return out, nil
}

func checkOrder(ctx context.Context, st Store, id int64) ([]Drift, error) {
	stored, computed, err := computeOrder(ctx, st, id)
	if err != nil || stored.Equal(computed) {
		return nil, err
	}
	return []Drift{{Kind: KindOrder, ID: id, Field: "received_amount", Stored: stored, Computed: computed}}, nil
}

// Repository implements ReconcileRepository over PostgreSQL.
type Repository struct {
	runner *db.TxRunner
}

// NewRepository constructs Repository.
func NewRepository(runner *db.TxRunner) *Repository {
	return &Repository{runner: runner}
}

// WithStore runs fn inside a transaction with a Store bound to it.
func (r *Repository) WithStore(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil {
		return errors.New("balances repository not initialised")
	}
	return r.runner.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, NewPgStore(tx))
	})
}

// Parents lists ids of every row with a derived total.
func (r *Repository) Parents(ctx context.Context) (Parents, error) {
	if r == nil {
		return Parents{}, errors.New("balances repository not initialised")
	}
	var p Parents
	targets := []struct {
		table string
		dest  *[]int64
	}{
		{"quotes", &p.Quotes},
		{"purchase_orders", &p.PurchaseOrders},
		{"suppliers", &p.Suppliers},
		{"orders", &p.Orders},
	}
	for _, t := range targets {
		rows, err := r.runner.Pool().Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, t.table))
		if err != nil {
			return Parents{}, err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return Parents{}, err
		}
		*t.dest = ids
	}
	return p, nil
}
