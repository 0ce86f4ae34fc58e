package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"StockSentinel/internal/model"
)

// Store is the durable (code, trade_date)-keyed table of canonical daily
// records. Upserts overwrite mutable fields so providers can correct
// previously reported figures; the same key is never duplicated. Writes are
// serialized behind a mutex, which is the concurrency contract the worker
// pool relies on.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so reporting tools can read while the pipeline writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] store opened: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS daily_bars (
			code         TEXT NOT NULL,
			trade_date   TEXT NOT NULL,
			open         REAL,
			high         REAL,
			low          REAL,
			close        REAL,
			volume       INTEGER,
			amount       REAL,
			pct_chg      REAL,
			ma5          REAL,
			ma10         REAL,
			ma20         REAL,
			volume_ratio REAL,
			source       TEXT,
			updated_at   INTEGER NOT NULL,
			PRIMARY KEY (code, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_date ON daily_bars(trade_date)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// UpsertDaily writes records under the (code, trade_date) key, overwriting
// price, volume and derived fields on conflict. Returns the number of rows
// written.
func (s *Store) UpsertDaily(records []model.DailyRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO daily_bars
		(code, trade_date, open, high, low, close, volume, amount,
		 pct_chg, ma5, ma10, ma20, volume_ratio, source, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(code, trade_date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume, amount=excluded.amount,
			pct_chg=excluded.pct_chg, ma5=excluded.ma5, ma10=excluded.ma10,
			ma20=excluded.ma20, volume_ratio=excluded.volume_ratio,
			source=excluded.source, updated_at=excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	count := 0
	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(
			r.Code, r.DateString(), r.Open, r.High, r.Low, r.Close,
			r.Volume, r.Amount,
			nullable(r.PctChg), nullable(r.MA5), nullable(r.MA10),
			nullable(r.MA20), nullable(r.VolumeRatio),
			r.Source, now,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert %s %s: %w", r.Code, r.DateString(), err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return count, nil
}

// HasData reports whether a record exists for (code, day). The resume check
// that lets interrupted runs skip completed work.
func (s *Store) HasData(code string, day time.Time) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM daily_bars WHERE code = ? AND trade_date = ?`,
		code, day.Format(model.DateLayout),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has data %s: %w", code, err)
	}
	return true, nil
}

// LatestDate returns the most recent trade date stored for code, or the
// zero time when there is no history.
func (s *Store) LatestDate(code string) (time.Time, error) {
	var ds sql.NullString
	err := s.db.QueryRow(
		`SELECT MAX(trade_date) FROM daily_bars WHERE code = ?`, code,
	).Scan(&ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest date %s: %w", code, err)
	}
	if !ds.Valid || ds.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.DateLayout, ds.String)
}

// Context returns the most recent lookback records for code, ordered oldest
// to newest, for the enrichment and scoring stages.
func (s *Store) Context(code string, lookback int) ([]model.DailyRecord, error) {
	rows, err := s.db.Query(
		`SELECT code, trade_date, open, high, low, close, volume, amount,
		        pct_chg, ma5, ma10, ma20, volume_ratio, source
		 FROM daily_bars WHERE code = ?
		 ORDER BY trade_date DESC LIMIT ?`,
		code, lookback,
	)
	if err != nil {
		return nil, fmt.Errorf("query context %s: %w", code, err)
	}
	defer rows.Close()

	var records []model.DailyRecord
	for rows.Next() {
		var (
			r    model.DailyRecord
			ds   string
			pct  sql.NullFloat64
			ma5  sql.NullFloat64
			ma10 sql.NullFloat64
			ma20 sql.NullFloat64
			vr   sql.NullFloat64
		)
		if err := rows.Scan(&r.Code, &ds, &r.Open, &r.High, &r.Low, &r.Close,
			&r.Volume, &r.Amount, &pct, &ma5, &ma10, &ma20, &vr, &r.Source); err != nil {
			return nil, fmt.Errorf("scan context %s: %w", code, err)
		}
		if r.TradeDate, err = time.Parse(model.DateLayout, ds); err != nil {
			return nil, fmt.Errorf("parse trade_date %q: %w", ds, err)
		}
		r.PctChg = fromNull(pct)
		r.MA5 = fromNull(ma5)
		r.MA10 = fromNull(ma10)
		r.MA20 = fromNull(ma20)
		r.VolumeRatio = fromNull(vr)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context %s: %w", code, err)
	}

	// Newest-first from the query; callers want oldest-first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *Store) Close() error {
	log.Println("[INFO] closing store")
	return s.db.Close()
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
