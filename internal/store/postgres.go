package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"BandSentinel/internal/model"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to dsn, verifies the connection and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("host", config.ConnConfig.Host).Info("postgres store opened")
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id            TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			is_stablecoin BOOLEAN NOT NULL DEFAULT FALSE,
			rank          INTEGER NOT NULL DEFAULT 0,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_symbol ON assets(symbol)`,

		`CREATE TABLE IF NOT EXISTS daily_prices (
			asset_id TEXT NOT NULL,
			date     DATE NOT NULL,
			close    DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (asset_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS bmsb_results (
			asset_id         TEXT NOT NULL,
			calculation_date DATE NOT NULL,
			sma_20           DOUBLE PRECISION,
			ema_21           DOUBLE PRECISION,
			sma_20_prev      DOUBLE PRECISION,
			ema_21_prev      DOUBLE PRECISION,
			support_lower    DOUBLE PRECISION,
			support_upper    DOUBLE PRECISION,
			current_price    DOUBLE PRECISION,
			price_position   TEXT,
			sma_trend        TEXT,
			ema_trend        TEXT,
			band_health      TEXT,
			is_applicable    BOOLEAN,
			weeks_used       INTEGER,
			PRIMARY KEY (asset_id, calculation_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_date ON bmsb_results(calculation_date)`,

		`CREATE TABLE IF NOT EXISTS calculation_status (
			asset_id         TEXT NOT NULL,
			calculation_date DATE NOT NULL,
			status           TEXT NOT NULL,
			detail           TEXT NOT NULL DEFAULT '',
			run_id           TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (asset_id, calculation_date)
		)`,

		`CREATE TABLE IF NOT EXISTS exclusions (
			date     DATE NOT NULL,
			asset_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			reason   TEXT NOT NULL,
			PRIMARY KEY (date, asset_id)
		)`,
	}

	for _, q := range stmts {
		if _, err := p.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:40], err)
		}
	}
	return nil
}

func (p *Postgres) UpsertAssets(ctx context.Context, assets []model.Asset) error {
	if err := validateAssets(assets); err != nil {
		return err
	}
	query := `
		INSERT INTO assets (id, symbol, name, is_stablecoin, rank, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			is_stablecoin = EXCLUDED.is_stablecoin,
			rank = EXCLUDED.rank,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	batch := &pgx.Batch{}
	for _, a := range assets {
		updated := a.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		batch.Queue(query, a.ID, a.Symbol, a.Name, a.IsStablecoin, a.Rank, a.Active, updated)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert assets: %w", err)
	}
	return nil
}

func (p *Postgres) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return p.listAssets(ctx, false)
}

func (p *Postgres) ListActiveAssets(ctx context.Context) ([]model.Asset, error) {
	return p.listAssets(ctx, true)
}

func (p *Postgres) listAssets(ctx context.Context, activeOnly bool) ([]model.Asset, error) {
	query := `SELECT id, symbol, name, is_stablecoin, rank, active, updated_at FROM assets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY CASE WHEN rank > 0 THEN rank ELSE 2147483647 END, id`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var a model.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.IsStablecoin, &a.Rank, &a.Active, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertDailyPrices(ctx context.Context, assetID string, points []model.DailyPricePoint) error {
	if assetID == "" {
		return ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}
	query := `
		INSERT INTO daily_prices (asset_id, date, close) VALUES ($1, $2, $3)
		ON CONFLICT (asset_id, date) DO UPDATE SET close = EXCLUDED.close
	`

	batch := &pgx.Batch{}
	for _, pt := range points {
		batch.Queue(query, assetID, model.UTCDay(pt.Date), pt.Close)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert daily prices %s: %w", assetID, err)
	}
	return nil
}

func (p *Postgres) DailyPrices(ctx context.Context, assetID string, through time.Time) ([]model.DailyPricePoint, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT date, close FROM daily_prices
		WHERE asset_id = $1 AND date <= $2
		ORDER BY date ASC
	`, assetID, model.UTCDay(through))
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	var out []model.DailyPricePoint
	for rows.Next() {
		var pt model.DailyPricePoint
		if err := rows.Scan(&pt.Date, &pt.Close); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		pt.Date = model.UTCDay(pt.Date)
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertResult(ctx context.Context, r *model.BMSBResult) error {
	if err := validateResult(r); err != nil {
		return err
	}
	query := `
		INSERT INTO bmsb_results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (asset_id, calculation_date) DO UPDATE SET
			sma_20 = EXCLUDED.sma_20,
			ema_21 = EXCLUDED.ema_21,
			sma_20_prev = EXCLUDED.sma_20_prev,
			ema_21_prev = EXCLUDED.ema_21_prev,
			support_lower = EXCLUDED.support_lower,
			support_upper = EXCLUDED.support_upper,
			current_price = EXCLUDED.current_price,
			price_position = EXCLUDED.price_position,
			sma_trend = EXCLUDED.sma_trend,
			ema_trend = EXCLUDED.ema_trend,
			band_health = EXCLUDED.band_health,
			is_applicable = EXCLUDED.is_applicable,
			weeks_used = EXCLUDED.weeks_used
	`
	_, err := p.pool.Exec(ctx, query,
		r.AssetID, model.UTCDay(r.CalculationDate),
		r.SMA20, r.EMA21, r.SMA20Prev, r.EMA21Prev,
		r.SupportLower, r.SupportUpper, r.CurrentPrice,
		string(r.PricePosition), string(r.SMATrend), string(r.EMATrend), string(r.BandHealth),
		r.IsApplicable, r.WeeksUsed,
	)
	if err != nil {
		return fmt.Errorf("upsert result %s: %w", r.AssetID, err)
	}
	return nil
}

func (p *Postgres) Result(ctx context.Context, assetID string, date time.Time) (*model.BMSBResult, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM bmsb_results
		WHERE asset_id = $1 AND calculation_date = $2`, assetID, model.UTCDay(date))
	r, err := scanPgResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

func (p *Postgres) LatestResults(ctx context.Context, date time.Time) ([]*model.BMSBResult, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+resultColumns+` FROM bmsb_results
		WHERE calculation_date = $1 ORDER BY asset_id`, model.UTCDay(date))
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*model.BMSBResult
	for rows.Next() {
		r, err := scanPgResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPgResult(row pgx.Row) (*model.BMSBResult, error) {
	var (
		r                       model.BMSBResult
		pos, smaT, emaT, health string
	)
	err := row.Scan(&r.AssetID, &r.CalculationDate, &r.SMA20, &r.EMA21, &r.SMA20Prev, &r.EMA21Prev,
		&r.SupportLower, &r.SupportUpper, &r.CurrentPrice, &pos, &smaT, &emaT, &health,
		&r.IsApplicable, &r.WeeksUsed)
	if err != nil {
		return nil, err
	}
	r.CalculationDate = model.UTCDay(r.CalculationDate)
	r.PricePosition = model.PricePosition(pos)
	r.SMATrend = model.Trend(smaT)
	r.EMATrend = model.Trend(emaT)
	r.BandHealth = model.BandHealth(health)
	return &r, nil
}

func (p *Postgres) RecordStatus(ctx context.Context, st *model.CalculationStatus) error {
	if err := validateStatus(st); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO calculation_status (asset_id, calculation_date, status, detail, run_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset_id, calculation_date) DO UPDATE SET
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			run_id = EXCLUDED.run_id
	`, st.AssetID, model.UTCDay(st.CalculationDate), string(st.Status), st.Detail, st.RunID)
	if err != nil {
		return fmt.Errorf("record status %s: %w", st.AssetID, err)
	}
	return nil
}

func (p *Postgres) Statuses(ctx context.Context, date time.Time) ([]*model.CalculationStatus, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT asset_id, calculation_date, status, detail, run_id
		FROM calculation_status WHERE calculation_date = $1 ORDER BY asset_id
	`, model.UTCDay(date))
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	var out []*model.CalculationStatus
	for rows.Next() {
		var (
			st     model.CalculationStatus
			status string
		)
		if err := rows.Scan(&st.AssetID, &st.CalculationDate, &status, &st.Detail, &st.RunID); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st.CalculationDate = model.UTCDay(st.CalculationDate)
		st.Status = model.StatusKind(status)
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (p *Postgres) ReplaceExclusions(ctx context.Context, date time.Time, excl []model.Exclusion) error {
	for _, e := range excl {
		if e.AssetID == "" {
			return ErrInvalidInput
		}
	}
	day := model.UTCDay(date)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM exclusions WHERE date = $1`, day); err != nil {
		return fmt.Errorf("clear exclusions: %w", err)
	}
	for _, e := range excl {
		if _, err := tx.Exec(ctx, `
			INSERT INTO exclusions (date, asset_id, symbol, reason) VALUES ($1, $2, $3, $4)
			ON CONFLICT (date, asset_id) DO UPDATE SET symbol = EXCLUDED.symbol, reason = EXCLUDED.reason
		`, day, e.AssetID, e.Symbol, e.Reason); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", e.AssetID, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Exclusions(ctx context.Context, date time.Time) ([]model.Exclusion, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT date, asset_id, symbol, reason FROM exclusions
		WHERE date = $1 ORDER BY asset_id
	`, model.UTCDay(date))
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	out := []model.Exclusion{}
	for rows.Next() {
		var e model.Exclusion
		if err := rows.Scan(&e.Date, &e.AssetID, &e.Symbol, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		e.Date = model.UTCDay(e.Date)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) PruneResults(ctx context.Context, before time.Time) (int64, error) {
	day := model.UTCDay(before)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM bmsb_results WHERE calculation_date < $1`, day)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM calculation_status WHERE calculation_date < $1`, day); err != nil {
		return 0, fmt.Errorf("prune statuses: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
