package connect

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/driftwatch/driftwatch/internal/metrics"
)

// TableSchema describes one reflected table.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Config holds connector pooling and timeout settings.
type Config struct {
	RedisAddr    string        `yaml:"redis_addr"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

// DefaultConfig returns reasonable connector defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout: 30 * time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
}

// UnmarshalYAML accepts duration strings ("30s", "1h") for the TTL and
// timeout fields.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		RedisAddr    string `yaml:"redis_addr"`
		TokenTTL     string `yaml:"token_ttl"`
		QueryTimeout string `yaml:"query_timeout"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	}
	r := raw{
		RedisAddr:    c.RedisAddr,
		TokenTTL:     c.TokenTTL.String(),
		QueryTimeout: c.QueryTimeout.String(),
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
	}
	if err := unmarshal(&r); err != nil {
		return err
	}
	ttl, err := time.ParseDuration(r.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid token_ttl %q: %w", r.TokenTTL, err)
	}
	timeout, err := time.ParseDuration(r.QueryTimeout)
	if err != nil {
		return fmt.Errorf("invalid query_timeout %q: %w", r.QueryTimeout, err)
	}
	c.RedisAddr = r.RedisAddr
	c.TokenTTL = ttl
	c.QueryTimeout = timeout
	c.MaxOpenConns = r.MaxOpenConns
	c.MaxIdleConns = r.MaxIdleConns
	return nil
}

// opener abstracts sqlx.Open so tests can substitute a mock database.
type opener func(dsn string) (*sqlx.DB, error)

func defaultOpener(dsn string) (*sqlx.DB, error) {
	return sqlx.Open("postgres", dsn)
}

// Connector validates credentials, reflects schemas, and fetches rows
// for analysis. Connection probes run through a circuit breaker so a
// repeatedly unreachable source trips fast instead of hanging every
// request.
type Connector struct {
	store   Store
	cfg     Config
	met     *metrics.Registry
	breaker *gobreaker.CircuitBreaker
	open    opener

	mu    sync.Mutex
	conns map[string]*sqlx.DB // token → pooled handle
}

// NewConnector builds a connector over the given token store.
func NewConnector(store Store, cfg Config, met *metrics.Registry) *Connector {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if met == nil {
		met = metrics.Default()
	}
	settings := gobreaker.Settings{
		Name:     "source-db",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Connector{
		store:   store,
		cfg:     cfg,
		met:     met,
		breaker: gobreaker.NewCircuitBreaker(settings),
		open:    defaultOpener,
		conns:   make(map[string]*sqlx.DB),
	}
}

// Connect validates the credentials and registers the DSN, returning
// the opaque token the rest of the system uses.
func (c *Connector) Connect(ctx context.Context, creds Credentials) (string, error) {
	dsn := creds.DSN()
	if err := c.Validate(ctx, dsn); err != nil {
		return "", err
	}
	token, err := c.store.Register(ctx, dsn)
	if err != nil {
		return "", fmt.Errorf("failed to register connection: %w", err)
	}
	log.Info().Str("host", creds.Host).Str("database", creds.Database).Msg("source connection registered")
	return token, nil
}

// Validate opens and pings the source through the circuit breaker.
func (c *Connector) Validate(ctx context.Context, dsn string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		db, err := c.open(dsn)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
		return nil, db.PingContext(pingCtx)
	})
	if err != nil {
		c.met.DBQueries.WithLabelValues("error").Inc()
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	c.met.DBQueries.WithLabelValues("ok").Inc()
	return nil
}

// Disconnect removes the token and closes any pooled handle.
func (c *Connector) Disconnect(ctx context.Context, token string) error {
	c.mu.Lock()
	if db, ok := c.conns[token]; ok {
		db.Close()
		delete(c.conns, token)
	}
	c.mu.Unlock()
	return c.store.Remove(ctx, token)
}

// Close releases every pooled handle.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, db := range c.conns {
		db.Close()
		delete(c.conns, token)
	}
}

// db resolves the token and returns a pooled handle for it.
func (c *Connector) db(ctx context.Context, token string) (*sqlx.DB, error) {
	c.mu.Lock()
	if db, ok := c.conns[token]; ok {
		c.mu.Unlock()
		return db, nil
	}
	c.mu.Unlock()

	dsn, err := c.store.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	db, err := c.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	db.SetMaxIdleConns(c.cfg.MaxIdleConns)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.conns[token]; ok {
		db.Close()
		return existing, nil
	}
	c.conns[token] = db
	return db, nil
}

const reflectQuery = `
SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

// ReflectSchema returns the (table, columns) descriptors for a token.
func (c *Connector) ReflectSchema(ctx context.Context, token string) ([]TableSchema, error) {
	db, err := c.db(ctx, token)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()
	rows, err := db.QueryxContext(queryCtx, reflectQuery)
	if err != nil {
		c.met.DBQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reflect schema: %w", err)
	}
	defer rows.Close()

	var tables []TableSchema
	byName := make(map[string]int)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		idx, ok := byName[table]
		if !ok {
			idx = len(tables)
			byName[table] = idx
			tables = append(tables, TableSchema{Name: table})
		}
		tables[idx].Columns = append(tables[idx].Columns, column)
	}
	if err := rows.Err(); err != nil {
		c.met.DBQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read schema rows: %w", err)
	}
	c.met.DBQueries.WithLabelValues("ok").Inc()
	return tables, nil
}

// FetchRows pulls up to limit rows of the named columns. Table and
// column identifiers are checked against the reflected schema before
// any query is built, so unknown names fail here instead of reaching
// the source.
func (c *Connector) FetchRows(ctx context.Context, token, table string, columns []string, limit int) ([]map[string]interface{}, error) {
	schema, err := c.ReflectSchema(ctx, token)
	if err != nil {
		return nil, err
	}
	known, err := findTable(schema, table)
	if err != nil {
		return nil, err
	}

	sel := "*"
	if len(columns) > 0 {
		quoted := make([]string, 0, len(columns))
		for _, col := range columns {
			if !contains(known.Columns, col) {
				return nil, fmt.Errorf("column %q does not exist in table %q", col, table)
			}
			quoted = append(quoted, pq.QuoteIdentifier(col))
		}
		sel = strings.Join(quoted, ", ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s", sel, pq.QuoteIdentifier(table))
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	db, err := c.db(ctx, token)
	if err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()
	rows, err := db.QueryxContext(queryCtx, query)
	if err != nil {
		c.met.DBQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		c.met.DBQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	c.met.DBQueries.WithLabelValues("ok").Inc()
	return out, nil
}

func findTable(schema []TableSchema, table string) (TableSchema, error) {
	for _, t := range schema {
		if t.Name == table {
			return t, nil
		}
	}
	return TableSchema{}, fmt.Errorf("table %q does not exist", table)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
