// Package store implements the tabular store clients used by transfers:
// PostgreSQL through a pgx pool and DuckDB through database/sql.
//
// A Connector caches one pool per distinct connection string. Every Open
// checks a dedicated connection out of that pool, so concurrent transfers
// never share a session. Closing the client returns the connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ferry/internal/config"
	"github.com/JonMunkholm/ferry/internal/core"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// Connector opens store clients, reusing one pool per connection string.
type Connector struct {
	cfg config.StoreConfig

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	dbs    map[string]*sql.DB
	closed bool
}

// NewConnector creates a Connector. cfg supplies the default driver and
// connection string and the pool sizing for every database opened.
func NewConnector(cfg config.StoreConfig) *Connector {
	return &Connector{
		cfg:   cfg,
		pools: make(map[string]*pgxpool.Pool),
		dbs:   make(map[string]*sql.DB),
	}
}

// Open returns a client for one transfer.
func (c *Connector) Open(ctx context.Context, cc core.ConnectionConfig) (core.StoreClient, error) {
	return c.OpenCatalog(ctx, cc)
}

// OpenCatalog returns a client that also supports schema-level calls.
func (c *Connector) OpenCatalog(ctx context.Context, cc core.ConnectionConfig) (core.CatalogClient, error) {
	driver, dsn, err := c.resolve(cc)
	if err != nil {
		return nil, err
	}

	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	switch driver {
	case DriverPostgres:
		pool, err := c.postgresPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		return &postgresClient{conn: conn}, nil

	case DriverDuckDB:
		db, err := c.duckDB(dsn)
		if err != nil {
			return nil, err
		}
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		return &duckdbClient{conn: conn}, nil
	}

	return nil, fmt.Errorf("%w: unsupported store driver %q", core.ErrInvalidRequest, driver)
}

// Close closes every cached pool. Clients still checked out fail on
// their next call.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for dsn, pool := range c.pools {
		pool.Close()
		delete(c.pools, dsn)
	}

	var firstErr error
	for dsn, db := range c.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.dbs, dsn)
	}
	return firstErr
}

func (c *Connector) postgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("store connector is closed")
	}
	if pool, ok := c.pools[dsn]; ok {
		return pool, nil
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %w", core.ErrInvalidRequest, err)
	}
	if c.cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(c.cfg.MaxConns)
	}
	poolConfig.MinConns = int32(c.cfg.MinConns)
	if c.cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = c.cfg.MaxConnLifetime
	}
	if c.cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = c.cfg.MaxConnIdleTime
	}
	if c.cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = c.cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	c.pools[dsn] = pool
	slog.Info("opened store pool",
		"driver", DriverPostgres,
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"max_conns", poolConfig.MaxConns,
	)
	return pool, nil
}

func (c *Connector) duckDB(dsn string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("store connector is closed")
	}
	if db, ok := c.dbs[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if c.cfg.MaxConns > 0 {
		db.SetMaxOpenConns(c.cfg.MaxConns)
	}
	db.SetMaxIdleConns(max(c.cfg.MinConns, 1))
	db.SetConnMaxIdleTime(c.cfg.MaxConnIdleTime)
	db.SetConnMaxLifetime(c.cfg.MaxConnLifetime)

	c.dbs[dsn] = db
	path := dsn
	if path == "" {
		path = ":memory:"
	}
	slog.Info("opened store database", "driver", DriverDuckDB, "path", path)
	return db, nil
}

// resolve picks the driver and connection string for cc, falling back to
// the configured defaults when cc is empty.
func (c *Connector) resolve(cc core.ConnectionConfig) (driver, dsn string, err error) {
	driver = strings.ToLower(strings.TrimSpace(cc.Driver))
	if driver == "" {
		driver = c.cfg.Driver
	}
	if driver == "" {
		driver = DriverPostgres
	}

	switch {
	case cc.URL != "":
		dsn = cc.URL
	case cc.IsZero():
		if !strings.EqualFold(driver, c.cfg.Driver) && c.cfg.Driver != "" {
			return "", "", fmt.Errorf("%w: no connection settings for driver %q", core.ErrInvalidRequest, driver)
		}
		dsn = c.cfg.URL
	case driver == DriverDuckDB:
		dsn = cc.Database
	default:
		dsn = postgresURL(cc)
	}

	if driver == DriverPostgres && dsn == "" {
		return "", "", fmt.Errorf("%w: no connection settings", core.ErrInvalidRequest)
	}
	return driver, dsn, nil
}

// postgresURL builds a connection URL from discrete settings. A JWT token
// is sent as the password when no password is given.
func postgresURL(cc core.ConnectionConfig) string {
	host := cc.Host
	if host == "" {
		host = "localhost"
	}
	port := cc.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + cc.Database,
	}

	password := cc.Password
	if password == "" {
		password = cc.JWTToken
	}
	switch {
	case cc.User != "" && password != "":
		u.User = url.UserPassword(cc.User, password)
	case cc.User != "":
		u.User = url.User(cc.User)
	}

	q := url.Values{}
	if cc.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
