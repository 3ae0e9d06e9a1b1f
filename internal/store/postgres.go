package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/shelfline/bookpricer/internal/db"
	"github.com/shelfline/bookpricer/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pricing_cache (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	isbn             TEXT NOT NULL UNIQUE,
	pricing_data     JSONB NOT NULL,
	confidence       TEXT NOT NULL,
	total_sales      INTEGER NOT NULL,
	average_price    NUMERIC(10,2) NOT NULL,
	fetched_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at       TIMESTAMPTZ NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id               TEXT PRIMARY KEY,
	pricing_cache_days    INTEGER NOT NULL DEFAULT 90,
	pricing_cache_enabled BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS books (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL,
	isbn            TEXT NOT NULL,
	title           TEXT,
	purchase_price  NUMERIC(10,2) NOT NULL DEFAULT 0,
	estimated_price NUMERIC(10,2) NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pricing_cache_isbn ON pricing_cache(isbn);
CREATE INDEX IF NOT EXISTS idx_pricing_cache_expires_at ON pricing_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_pricing_cache_confidence ON pricing_cache(confidence);
CREATE INDEX IF NOT EXISTS idx_books_user_id ON books(user_id);
CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCachedPricing(ctx context.Context, isbn string) (*model.PricingData, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT pricing_data FROM pricing_cache WHERE isbn = $1 AND expires_at > now()`,
		isbn,
	)
	return scanPostgresPricing(row)
}

func (s *PostgresStore) GetStalePricing(ctx context.Context, isbn string) (*model.PricingData, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT pricing_data FROM pricing_cache WHERE isbn = $1`,
		isbn,
	)
	return scanPostgresPricing(row)
}

func (s *PostgresStore) SetCachedPricing(ctx context.Context, isbn string, data *model.PricingData, ttl time.Duration) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pricing data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pricing_cache
		   (id, isbn, pricing_data, confidence, total_sales, average_price, fetched_at, expires_at, access_count, last_accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NULL)
		 ON CONFLICT (isbn) DO UPDATE SET
		   pricing_data = excluded.pricing_data,
		   confidence = excluded.confidence,
		   total_sales = excluded.total_sales,
		   average_price = excluded.average_price,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at,
		   access_count = 0,
		   last_accessed_at = NULL`,
		uuid.New().String(), isbn, payload, string(data.Confidence),
		data.TotalSales, data.AveragePrice, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set cached pricing %s", isbn)
}

func (s *PostgresStore) TouchPricingAccess(ctx context.Context, isbn string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pricing_cache
		 SET access_count = access_count + 1, last_accessed_at = now()
		 WHERE isbn = $1`,
		isbn,
	)
	return eris.Wrapf(err, "postgres: touch pricing access %s", isbn)
}

func (s *PostgresStore) DeleteExpiredPricing(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pricing_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired pricing")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	var us model.UserSettings
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, pricing_cache_days, pricing_cache_enabled
		 FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&us.UserID, &us.PricingCacheDays, &us.PricingCacheEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user settings %s", userID)
	}
	return &us, nil
}

func (s *PostgresStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var b model.Book
	var title *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, isbn, title, purchase_price, estimated_price, updated_at
		 FROM books WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.UserID, &b.ISBN, &title, &b.PurchasePrice, &b.EstimatedPrice, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get book %s", id)
	}
	if title != nil {
		b.Title = *title
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBookEstimatedPrice(ctx context.Context, id string, price float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE books SET estimated_price = $1, updated_at = now() WHERE id = $2`,
		price, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update book estimated price %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("book not found: %s", id)
	}
	return nil
}

func scanPostgresPricing(row pgx.Row) (*model.PricingData, error) {
	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan pricing data")
	}

	var pd model.PricingData
	if err := json.Unmarshal(payload, &pd); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pricing data")
	}
	return &pd, nil
}
