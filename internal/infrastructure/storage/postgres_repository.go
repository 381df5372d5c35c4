package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"PriceAggregator/internal/ports"
)

const snapshotTable = "price_snapshots"

// batchRows keeps each INSERT well below the 65535 bind parameters
// Postgres accepts per statement.
const batchRows = 1000

const snapshotSchema = `CREATE TABLE IF NOT EXISTS price_snapshots (
    id             BIGSERIAL PRIMARY KEY,
    run_id         UUID        NOT NULL,
    store_id       TEXT        NOT NULL,
    url            TEXT        NOT NULL,
    product_type   TEXT        NOT NULL,
    product_name   TEXT        NOT NULL DEFAULT '',
    payment_method TEXT        NOT NULL DEFAULT '',
    amount         NUMERIC,
    available      BOOLEAN     NOT NULL,
    error          TEXT,
    fetched_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_snapshots_run_idx ON price_snapshots (run_id);`

var snapshotColumns = []string{
	"run_id",
	"store_id",
	"url",
	"product_type",
	"product_name",
	"payment_method",
	"amount",
	"available",
	"error",
	"fetched_at",
}

// PostgresRepository persists aggregation runs as price snapshots in Postgres.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ResultRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun stores one row per payment method of every priced product, one row
// for unavailable products and one row per failure. All rows of a run are
// written in a single transaction, in batches of at most batchRows rows.
func (r *PostgresRepository) SaveRun(ctx context.Context, run ports.Run) error {
	if r.db == nil || len(run.Results) == 0 {
		return nil
	}

	batches, err := r.buildInserts(run)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for _, b := range batches {
		if _, err := tx.ExecContext(ctx, b.query, b.args...); err != nil {
			_ = tx.Rollback()
			var pqErr *pq.Error
			if errors.As(err, &pqErr) {
				return fmt.Errorf("insert snapshots (%s): %w", pqErr.Code.Name(), err)
			}
			return fmt.Errorf("insert snapshots: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}

	return nil
}

type insertBatch struct {
	query string
	args  []any
}

func (r *PostgresRepository) buildInserts(run ports.Run) ([]insertBatch, error) {
	rows := snapshotRows(run)

	batches := make([]insertBatch, 0, (len(rows)+batchRows-1)/batchRows)
	for start := 0; start < len(rows); start += batchRows {
		end := min(start+batchRows, len(rows))

		insert := r.builder.Insert(snapshotTable).Columns(snapshotColumns...)
		for _, row := range rows[start:end] {
			insert = insert.Values(row...)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return nil, err
		}
		batches = append(batches, insertBatch{query: query, args: args})
	}
	return batches, nil
}

func snapshotRows(run ports.Run) [][]any {
	var rows [][]any
	for _, res := range run.Results {
		row := func(method string, amount any, available bool, errText any) []any {
			return []any{
				run.ID,
				res.StoreID,
				res.URL,
				string(res.ProductType),
				res.Product.Name,
				method,
				amount,
				available,
				errText,
				run.StartedAt,
			}
		}

		switch {
		case res.Failed():
			rows = append(rows, row("", nil, false, res.Err.Error()))
		case !res.Product.Prices.Available():
			rows = append(rows, row("", nil, false, nil))
		default:
			for _, method := range res.Product.Prices.Methods() {
				rows = append(rows, row(method, amountValue(res.Product.Prices[method]), true, nil))
			}
		}
	}
	return rows
}

func amountValue(d decimal.Decimal) string {
	return d.String()
}
