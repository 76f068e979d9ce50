package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"BandSentinel/internal/model"
)

// SQLite persists the registry and calculation outputs to a SQLite database.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the SQLite database and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id            TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			is_stablecoin INTEGER NOT NULL DEFAULT 0,
			rank          INTEGER NOT NULL DEFAULT 0,
			active        INTEGER NOT NULL DEFAULT 1,
			updated_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_symbol ON assets(symbol)`,

		`CREATE TABLE IF NOT EXISTS daily_prices (
			asset_id TEXT NOT NULL,
			date     TEXT NOT NULL,
			close    REAL NOT NULL,
			PRIMARY KEY (asset_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS bmsb_results (
			asset_id         TEXT NOT NULL,
			calculation_date TEXT NOT NULL,
			sma_20           REAL,
			ema_21           REAL,
			sma_20_prev      REAL,
			ema_21_prev      REAL,
			support_lower    REAL,
			support_upper    REAL,
			current_price    REAL,
			price_position   TEXT,
			sma_trend        TEXT,
			ema_trend        TEXT,
			band_health      TEXT,
			is_applicable    INTEGER,
			weeks_used       INTEGER,
			PRIMARY KEY (asset_id, calculation_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_date ON bmsb_results(calculation_date)`,

		`CREATE TABLE IF NOT EXISTS calculation_status (
			asset_id         TEXT NOT NULL,
			calculation_date TEXT NOT NULL,
			status           TEXT NOT NULL,
			detail           TEXT NOT NULL DEFAULT '',
			run_id           TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (asset_id, calculation_date)
		)`,

		`CREATE TABLE IF NOT EXISTS exclusions (
			date     TEXT NOT NULL,
			asset_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			reason   TEXT NOT NULL,
			PRIMARY KEY (date, asset_id)
		)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:40], err)
		}
	}
	return nil
}

func (s *SQLite) UpsertAssets(ctx context.Context, assets []model.Asset) error {
	if err := validateAssets(assets); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO assets
			(id, symbol, name, is_stablecoin, rank, active, updated_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				symbol=excluded.symbol, name=excluded.name,
				is_stablecoin=excluded.is_stablecoin, rank=excluded.rank,
				active=excluded.active, updated_at=excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range assets {
			updated := a.UpdatedAt
			if updated.IsZero() {
				updated = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, a.ID, a.Symbol, a.Name, a.IsStablecoin,
				a.Rank, a.Active, updated.Unix()); err != nil {
				return fmt.Errorf("upsert asset %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLite) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.listAssets(ctx, false)
}

func (s *SQLite) ListActiveAssets(ctx context.Context) ([]model.Asset, error) {
	return s.listAssets(ctx, true)
}

func (s *SQLite) listAssets(ctx context.Context, activeOnly bool) ([]model.Asset, error) {
	q := `SELECT id, symbol, name, is_stablecoin, rank, active, updated_at FROM assets`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY CASE WHEN rank > 0 THEN rank ELSE 9223372036854775807 END, id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var (
			a       model.Asset
			updated int64
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.IsStablecoin, &a.Rank, &a.Active, &updated); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertDailyPrices(ctx context.Context, assetID string, points []model.DailyPricePoint) error {
	if assetID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_prices (asset_id, date, close)
			VALUES (?,?,?)
			ON CONFLICT(asset_id, date) DO UPDATE SET close=excluded.close`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, assetID, formatDay(p.Date), p.Close); err != nil {
				return fmt.Errorf("upsert price %s %s: %w", assetID, formatDay(p.Date), err)
			}
		}
		return nil
	})
}

func (s *SQLite) DailyPrices(ctx context.Context, assetID string, through time.Time) ([]model.DailyPricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, close FROM daily_prices
		WHERE asset_id = ? AND date <= ? ORDER BY date ASC`, assetID, formatDay(through))
	if err != nil {
		return nil, fmt.Errorf("query daily prices: %w", err)
	}
	defer rows.Close()

	var out []model.DailyPricePoint
	for rows.Next() {
		var (
			day string
			p   model.DailyPricePoint
		)
		if err := rows.Scan(&day, &p.Close); err != nil {
			return nil, fmt.Errorf("scan daily price: %w", err)
		}
		if p.Date, err = parseDay(day); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const resultColumns = `asset_id, calculation_date, sma_20, ema_21, sma_20_prev, ema_21_prev,
	support_lower, support_upper, current_price, price_position, sma_trend, ema_trend,
	band_health, is_applicable, weeks_used`

func (s *SQLite) UpsertResult(ctx context.Context, r *model.BMSBResult) error {
	if err := validateResult(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO bmsb_results (`+resultColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.AssetID, formatDay(r.CalculationDate), r.SMA20, r.EMA21, r.SMA20Prev, r.EMA21Prev,
		r.SupportLower, r.SupportUpper, r.CurrentPrice,
		string(r.PricePosition), string(r.SMATrend), string(r.EMATrend), string(r.BandHealth),
		r.IsApplicable, r.WeeksUsed,
	)
	if err != nil {
		return fmt.Errorf("upsert result %s: %w", r.AssetID, err)
	}
	return nil
}

func (s *SQLite) Result(ctx context.Context, assetID string, date time.Time) (*model.BMSBResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM bmsb_results
		WHERE asset_id = ? AND calculation_date = ?`, assetID, formatDay(date))
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLite) LatestResults(ctx context.Context, date time.Time) ([]*model.BMSBResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM bmsb_results
		WHERE calculation_date = ? ORDER BY asset_id`, formatDay(date))
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*model.BMSBResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(sc scanner) (*model.BMSBResult, error) {
	var (
		r                       model.BMSBResult
		day                     string
		pos, smaT, emaT, health string
	)
	err := sc.Scan(&r.AssetID, &day, &r.SMA20, &r.EMA21, &r.SMA20Prev, &r.EMA21Prev,
		&r.SupportLower, &r.SupportUpper, &r.CurrentPrice, &pos, &smaT, &emaT, &health,
		&r.IsApplicable, &r.WeeksUsed)
	if err != nil {
		return nil, err
	}
	if r.CalculationDate, err = parseDay(day); err != nil {
		return nil, err
	}
	r.PricePosition = model.PricePosition(pos)
	r.SMATrend = model.Trend(smaT)
	r.EMATrend = model.Trend(emaT)
	r.BandHealth = model.BandHealth(health)
	return &r, nil
}

func (s *SQLite) RecordStatus(ctx context.Context, st *model.CalculationStatus) error {
	if err := validateStatus(st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO calculation_status
		(asset_id, calculation_date, status, detail, run_id) VALUES (?,?,?,?,?)`,
		st.AssetID, formatDay(st.CalculationDate), string(st.Status), st.Detail, st.RunID)
	if err != nil {
		return fmt.Errorf("record status %s: %w", st.AssetID, err)
	}
	return nil
}

func (s *SQLite) Statuses(ctx context.Context, date time.Time) ([]*model.CalculationStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset_id, calculation_date, status, detail, run_id
		FROM calculation_status WHERE calculation_date = ? ORDER BY asset_id`, formatDay(date))
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	var out []*model.CalculationStatus
	for rows.Next() {
		var (
			st     model.CalculationStatus
			day    string
			status string
		)
		if err := rows.Scan(&st.AssetID, &day, &status, &st.Detail, &st.RunID); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		if st.CalculationDate, err = parseDay(day); err != nil {
			return nil, err
		}
		st.Status = model.StatusKind(status)
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *SQLite) ReplaceExclusions(ctx context.Context, date time.Time, excl []model.Exclusion) error {
	for _, e := range excl {
		if e.AssetID == "" {
			return ErrInvalidInput
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	day := formatDay(date)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exclusions WHERE date = ?`, day); err != nil {
			return fmt.Errorf("clear exclusions: %w", err)
		}
		for _, e := range excl {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO exclusions (date, asset_id, symbol, reason)
				VALUES (?,?,?,?)`, day, e.AssetID, e.Symbol, e.Reason); err != nil {
				return fmt.Errorf("insert exclusion %s: %w", e.AssetID, err)
			}
		}
		return nil
	})
}

func (s *SQLite) Exclusions(ctx context.Context, date time.Time) ([]model.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, asset_id, symbol, reason FROM exclusions
		WHERE date = ? ORDER BY asset_id`, formatDay(date))
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	out := []model.Exclusion{}
	for rows.Next() {
		var (
			e   model.Exclusion
			day string
		)
		if err := rows.Scan(&day, &e.AssetID, &e.Symbol, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		if e.Date, err = parseDay(day); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) PruneResults(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := formatDay(before)
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM bmsb_results WHERE calculation_date < ?`, day)
		if err != nil {
			return fmt.Errorf("prune results: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM calculation_status WHERE calculation_date < ?`, day); err != nil {
			return fmt.Errorf("prune statuses: %w", err)
		}
		return nil
	})
	return n, err
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	log.Info("closing sqlite store")
	return s.db.Close()
}

func formatDay(t time.Time) string {
	return model.UTCDay(t).Format(dateLayout)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
