package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketsim/internal/domain"
	"marketsim/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

// PgRepo stores run summaries and fills in Postgres.
type PgRepo struct {
	pool *pgxpool.Pool
}

// NewPgRepo connects a pool; call Close when finished with the database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PgRepo) SaveRun(ctx context.Context, run *domain.RunSummary) error {
	if run == nil {
		return errors.New("nil run")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO runs(id, started_at, finished_at, position, cash, spread_profit, fills, completed)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  finished_at = EXCLUDED.finished_at,
  position = EXCLUDED.position,
  cash = EXCLUDED.cash,
  spread_profit = EXCLUDED.spread_profit,
  fills = EXCLUDED.fills,
  completed = EXCLUDED.completed
`, run.ID, run.StartedAt, run.FinishedAt, run.Position, run.Cash, run.SpreadProfit, run.Fills, run.Completed)
	return err
}

func (p *PgRepo) SaveFill(ctx context.Context, f *domain.Fill) error {
	if f == nil {
		return errors.New("nil fill")
	}
	_, err := p.pool.Exec(ctx, `
INSERT INTO fills(id, run_id, order_id, price, shares, event_time)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, f.ID, f.RunID, f.OrderID, f.Price, f.Shares, f.Timestamp)
	return err
}

func (p *PgRepo) LoadFills(ctx context.Context, runID string) ([]*domain.Fill, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, run_id, order_id, price, shares, event_time
FROM fills WHERE run_id = $1 ORDER BY event_time, id
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		var f domain.Fill
		if err := rows.Scan(&f.ID, &f.RunID, &f.OrderID, &f.Price, &f.Shares, &f.Timestamp); err != nil {
			return nil, err
		}
		fills = append(fills, &f)
	}
	return fills, rows.Err()
}

// SaveRunWithFills writes a run summary and its fills in one transaction so
// a partially persisted run is never observable.
func (p *PgRepo) SaveRunWithFills(ctx context.Context, run *domain.RunSummary, fills []*domain.Fill) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO runs(id, started_at, finished_at, position, cash, spread_profit, fills, completed)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  finished_at = EXCLUDED.finished_at,
  position = EXCLUDED.position,
  cash = EXCLUDED.cash,
  spread_profit = EXCLUDED.spread_profit,
  fills = EXCLUDED.fills,
  completed = EXCLUDED.completed
`, run.ID, run.StartedAt, run.FinishedAt, run.Position, run.Cash, run.SpreadProfit, run.Fills, run.Completed)
		if err != nil {
			return err
		}
		for _, f := range fills {
			if _, err := tx.Exec(ctx, `
INSERT INTO fills(id, run_id, order_id, price, shares, event_time)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, f.ID, f.RunID, f.OrderID, f.Price, f.Shares, f.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *PgRepo) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}
