package masterdata

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// insertAll queues one statement per row and counts rows actually inserted; rows
// skipped by ON CONFLICT report zero.
func (r *repository) insertAll(ctx context.Context, sql string, args [][]any) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, a := range args {
		batch.Queue(sql, a...)
	}
	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range args {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	return inserted, tx.Commit(ctx)
}

func (r *repository) InsertUnits(ctx context.Context, units []Unit) (int, error) {
	args := make([][]any, 0, len(units))
	for _, u := range units {
		args = append(args, []any{u.Name, u.Abbreviation})
	}
	return r.insertAll(ctx, `INSERT INTO units_of_measure (name, abbreviation) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, args)
}

func (r *repository) InsertCategories(ctx context.Context, names []string) (int, error) {
	args := make([][]any, 0, len(names))
	for _, n := range names {
		args = append(args, []any{n})
	}
	return r.insertAll(ctx, `INSERT INTO inventory_categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, args)
}

func (r *repository) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, abbreviation FROM units_of_measure ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Unit])
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM inventory_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
}
