// Package catalog runs composed filter queries against a product database.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
)

// Drivers accepted by Open
const (
	DriverNone     = "none"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Page is one window of products matching a query
type Page struct {
	Products []models.Product `json:"products"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

// Source fetches products matching a query
type Source interface {
	Fetch(ctx context.Context, query models.ProductQuery) (*Page, error)
	Close(ctx context.Context) error
}

// Open connects to the source named by cfg.Driver
func Open(ctx context.Context, cfg models.ConnectionConfig) (Source, error) {
	switch cfg.Driver {
	case DriverMongo:
		return NewMongoSource(ctx, cfg)
	case DriverPostgres:
		return NewPostgresSource(ctx, cfg)
	case DriverNone, "":
		return nil, fmt.Errorf("no catalog driver configured")
	default:
		return nil, fmt.Errorf("unknown catalog driver: %s", cfg.Driver)
	}
}

// Fetcher publishes composed queries by fetching their first page from a Source
type Fetcher struct {
	source Source
	limit  int
	logger zerolog.Logger
	onPage func(*Page)

	mu   sync.Mutex
	last *Page
}

// NewFetcher creates a fetcher requesting limit products per publication.
// onPage, when set, receives every fetched page.
func NewFetcher(source Source, limit int, logger zerolog.Logger, onPage func(*Page)) *Fetcher {
	return &Fetcher{
		source: source,
		limit:  limit,
		logger: logger.With().Str("component", "catalog_fetcher").Logger(),
		onPage: onPage,
	}
}

// Publish fetches the first page for query
func (f *Fetcher) Publish(ctx context.Context, query bson.M) error {
	page, err := f.source.Fetch(ctx, models.NewProductQuery(query, f.limit))
	if err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}

	f.mu.Lock()
	f.last = page
	f.mu.Unlock()

	f.logger.Debug().Int("count", len(page.Products)).Bool("has_more", page.HasMore).Msg("fetched products")
	if f.onPage != nil {
		f.onPage(page)
	}
	return nil
}

// Last returns the most recently fetched page, or nil
func (f *Fetcher) Last() *Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// trimPage turns a fetch of limit+1 rows into a page with HasMore set
func trimPage(products []models.Product, p models.Pagination) *Page {
	page := &Page{Offset: p.Offset, Limit: p.Limit, Products: products}
	if page.Products == nil {
		page.Products = []models.Product{}
	}
	if p.Limit > 0 && len(page.Products) > p.Limit {
		page.Products = page.Products[:p.Limit]
		page.HasMore = true
	}
	return page
}
