package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/shelfline/bookpricer/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pricing_cache (
	id               TEXT PRIMARY KEY,
	isbn             TEXT NOT NULL UNIQUE,
	pricing_data     TEXT NOT NULL,
	confidence       TEXT NOT NULL,
	total_sales      INTEGER NOT NULL,
	average_price    REAL NOT NULL,
	fetched_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at       DATETIME NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id               TEXT PRIMARY KEY,
	pricing_cache_days    INTEGER NOT NULL DEFAULT 90,
	pricing_cache_enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS books (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	isbn            TEXT NOT NULL,
	title           TEXT,
	purchase_price  REAL NOT NULL DEFAULT 0,
	estimated_price REAL NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pricing_cache_isbn ON pricing_cache(isbn);
CREATE INDEX IF NOT EXISTS idx_pricing_cache_expires_at ON pricing_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_pricing_cache_confidence ON pricing_cache(confidence);
CREATE INDEX IF NOT EXISTS idx_books_user_id ON books(user_id);
CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCachedPricing(ctx context.Context, isbn string) (*model.PricingData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pricing_data FROM pricing_cache
		 WHERE isbn = ? AND expires_at > ?`,
		isbn, time.Now().UTC(),
	)
	return scanPricingData(row, "sqlite")
}

func (s *SQLiteStore) GetStalePricing(ctx context.Context, isbn string) (*model.PricingData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pricing_data FROM pricing_cache WHERE isbn = ?`,
		isbn,
	)
	return scanPricingData(row, "sqlite")
}

func (s *SQLiteStore) SetCachedPricing(ctx context.Context, isbn string, data *model.PricingData, ttl time.Duration) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pricing data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pricing_cache
		   (id, isbn, pricing_data, confidence, total_sales, average_price, fetched_at, expires_at, access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)
		 ON CONFLICT(isbn) DO UPDATE SET
		   pricing_data = excluded.pricing_data,
		   confidence = excluded.confidence,
		   total_sales = excluded.total_sales,
		   average_price = excluded.average_price,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at,
		   access_count = 0,
		   last_accessed_at = NULL`,
		uuid.New().String(), isbn, string(payload), string(data.Confidence),
		data.TotalSales, data.AveragePrice, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: set cached pricing %s", isbn)
}

func (s *SQLiteStore) TouchPricingAccess(ctx context.Context, isbn string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pricing_cache
		 SET access_count = access_count + 1, last_accessed_at = ?
		 WHERE isbn = ?`,
		time.Now().UTC(), isbn,
	)
	return eris.Wrapf(err, "sqlite: touch pricing access %s", isbn)
}

func (s *SQLiteStore) DeleteExpiredPricing(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pricing_cache WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pricing")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, pricing_cache_days, pricing_cache_enabled
		 FROM user_settings WHERE user_id = ?`,
		userID,
	)

	var us model.UserSettings
	err := row.Scan(&us.UserID, &us.PricingCacheDays, &us.PricingCacheEnabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user settings %s", userID)
	}
	return &us, nil
}

func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, isbn, title, purchase_price, estimated_price, updated_at
		 FROM books WHERE id = ?`,
		id,
	)

	var b model.Book
	var title sql.NullString
	err := row.Scan(&b.ID, &b.UserID, &b.ISBN, &title, &b.PurchasePrice, &b.EstimatedPrice, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get book %s", id)
	}
	b.Title = title.String
	return &b, nil
}

func (s *SQLiteStore) UpdateBookEstimatedPrice(ctx context.Context, id string, price float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET estimated_price = ?, updated_at = ? WHERE id = ?`,
		price, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update book estimated price %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("book not found: %s", id)
	}
	return nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanPricingData(row scannable, driver string) (*model.PricingData, error) {
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: scan pricing data", driver)
	}

	var pd model.PricingData
	if err := json.Unmarshal([]byte(payload), &pd); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal pricing data", driver)
	}
	return &pd, nil
}
