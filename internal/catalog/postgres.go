package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rebeliceyang/lazyfilter/internal/filter"
	"github.com/rebeliceyang/lazyfilter/internal/models"
)

// PostgresSource translates composed queries to SQL over a products table
// with id, skuId and a JSONB attributes column
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
	sql   *filter.SQLBuilder
}

// NewPostgresSource creates a connection pool and verifies it
func NewPostgresSource(ctx context.Context, cfg models.ConnectionConfig) (*PostgresSource, error) {
	connString := cfg.URI
	if connString == "" {
		connString = buildConnectionString(cfg)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newPostgresSource(pool, cfg.Table), nil
}

func newPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	if table == "" {
		table = "products"
	}
	return &PostgresSource{
		pool:  pool,
		table: table,
		sql:   filter.NewSQLBuilder("attributes"),
	}
}

// Fetch runs the SQL translation of query
func (s *PostgresSource) Fetch(ctx context.Context, query models.ProductQuery) (*Page, error) {
	sql, args, err := s.BuildSelect(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		product, err := productFromRow(values)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	// Check for errors from iteration
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trimPage(products, query.Pagination), nil
}

// BuildSelect renders the paginated SELECT for query. One extra row is
// requested so HasMore can be reported.
func (s *PostgresSource) BuildSelect(query models.ProductQuery) (string, []interface{}, error) {
	where, args, err := s.sql.BuildWhere(query.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("failed to translate filter: %w", err)
	}

	sql := fmt.Sprintf(`SELECT "id", "skuId", "attributes" FROM %s`, pgx.Identifier{s.table}.Sanitize())
	if where != "" {
		sql += " " + where
	}
	sql += ` ORDER BY "id"`

	if query.Pagination.Limit > 0 {
		args = append(args, query.Pagination.Limit+1)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Pagination.Offset > 0 {
		args = append(args, query.Pagination.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return sql, args, nil
}

// Close closes the connection pool
func (s *PostgresSource) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// productFromRow converts id, skuId, attributes column values. JSONB arrives
// decoded, but text columns holding JSON are decoded here.
func productFromRow(values []interface{}) (models.Product, error) {
	if len(values) != 3 {
		return models.Product{}, fmt.Errorf("expected 3 columns, got %d", len(values))
	}

	product := models.Product{
		ID:    stringValue(values[0]),
		SkuID: stringValue(values[1]),
	}

	switch v := values[2].(type) {
	case nil:
	case map[string]interface{}:
		product.Attributes = v
	case []byte:
		if err := json.Unmarshal(v, &product.Attributes); err != nil {
			return models.Product{}, fmt.Errorf("failed to decode attributes: %w", err)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &product.Attributes); err != nil {
			return models.Product{}, fmt.Errorf("failed to decode attributes: %w", err)
		}
	default:
		return models.Product{}, fmt.Errorf("unexpected attributes type %T", v)
	}

	return product, nil
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// buildConnectionString creates a PostgreSQL connection string
func buildConnectionString(config models.ConnectionConfig) string {
	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := config.Port
	if port == 0 {
		port = 5432
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s database=%s sslmode=%s",
		config.Host,
		port,
		config.User,
		config.Database,
		sslMode,
	)

	if config.Password != "" {
		connStr += fmt.Sprintf(" password=%s", config.Password)
	}

	return connStr
}
