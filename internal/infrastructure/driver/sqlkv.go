package driver

import (
	"context"
	"fmt"
	"time"
)

const kvTableSchema = `
CREATE TABLE IF NOT EXISTS "kv_store" (
    "k" VARCHAR(255) NOT NULL PRIMARY KEY,
    "v" TEXT NOT NULL,
    "expires_at" BIGINT NOT NULL DEFAULT 0
)`

var kvUpsert = map[string]string{
	DialectMySQL: `
INSERT INTO "kv_store" ("k", "v", "expires_at") VALUES ($1, $2, $3)
ON DUPLICATE KEY UPDATE "v" = VALUES("v"), "expires_at" = VALUES("expires_at")`,
	DialectPostgres: `
INSERT INTO "kv_store" ("k", "v", "expires_at") VALUES ($1, $2, $3)
ON CONFLICT ("k") DO UPDATE SET "v" = EXCLUDED."v", "expires_at" = EXCLUDED."expires_at"`,
}

// SQLKeyValue KeyValueDB on top of a single SQL table, expired rows are filtered on read
type SQLKeyValue struct {
	conn   ITransactionalDB
	upsert string
	now    func() time.Time
}

var _ KeyValueDB = &SQLKeyValue{}

// NewSQLKeyValue wraps conn, the dialect is taken from the connection
func NewSQLKeyValue(conn ITransactionalDB) (*SQLKeyValue, error) {
	upsert, ok := kvUpsert[conn.Dialect()]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect for kv store: %s", conn.Dialect())
	}
	return &SQLKeyValue{
		conn:   conn,
		upsert: upsert,
		now:    time.Now,
	}, nil
}

// EnsureSchema create the backing table if missing
func (s *SQLKeyValue) EnsureSchema(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, kvTableSchema)
	return err
}

// Set implement KeyValueDB
func (s *SQLKeyValue) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	var expiresAt int64
	if expiration > 0 {
		expiresAt = s.now().Add(expiration).UnixNano() / int64(time.Millisecond)
	}
	_, err := s.conn.ExecContext(ctx, s.upsert, key, value, expiresAt)
	return err
}

// Get implement KeyValueDB
func (s *SQLKeyValue) Get(ctx context.Context, key string) (string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT "v", "expires_at" FROM "kv_store" WHERE "k" = $1`, key)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", ErrKeyNotFound
	}
	var (
		value     string
		expiresAt int64
	)
	if err := rows.Scan(&value, &expiresAt); err != nil {
		return "", err
	}
	if expiresAt > 0 && expiresAt <= s.now().UnixNano()/int64(time.Millisecond) {
		return "", ErrKeyNotFound
	}
	return value, nil
}

// Exists implement KeyValueDB
func (s *SQLKeyValue) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	return err == nil, err
}

// Ping implement KeyValueDB
func (s *SQLKeyValue) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close implement KeyValueDB
func (s *SQLKeyValue) Close() error {
	return s.conn.Close(context.Background())
}
