package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/stockpulse/internal/model"
)

const selectSeeds = `SELECT symbol, price::text FROM instrument_seeds ORDER BY symbol`

// Querier is the subset of pgxpool.Pool the Postgres source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres loads seeds from the instrument_seeds table.
type Postgres struct {
	db     Querier
	logger *slog.Logger
}

// NewPostgres creates a Postgres seed source.
func NewPostgres(db Querier, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Load reads and validates every row.
func (p *Postgres) Load(ctx context.Context) ([]model.Instrument, error) {
	rows, err := p.db.Query(ctx, selectSeeds)
	if err != nil {
		return nil, fmt.Errorf("query seeds: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var symbol, price string
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, fmt.Errorf("scan seed: %w", err)
		}

		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, symbol, err)
		}
		out = append(out, model.NewInstrument(symbol, d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}

	if err := Validate(out); err != nil {
		return nil, err
	}

	p.logger.Info("loaded seeds from postgres", "count", len(out))
	return out, nil
}
