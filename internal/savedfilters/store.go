package savedfilters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazyfilter/internal/metrics"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rebeliceyang/lazyfilter/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultKey is the well-known key the saved filters are stored under
const DefaultKey = "lazyfilter-saved-filters"

var (
	ErrFilterNotFound = errors.New("saved filter not found")
	ErrEmptyName      = errors.New("saved filter name cannot be empty")
)

// Store manages saved filters persisted as one JSON array in a key-value store.
// Read failures degrade to an empty list; write failures are returned.
type Store struct {
	mu      sync.Mutex
	kv      storage.KV
	key     string
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithKey overrides the storage key
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithMetrics reports the saved-filter count to m after every write
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the clock used for createdAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new saved-filter store
func NewStore(kv storage.KV, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: logger.With().Str("component", "saved_filters").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every saved filter, oldest first
func (s *Store) List(ctx context.Context) []models.SavedFilter {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// Get returns a saved filter by ID
func (s *Store) Get(ctx context.Context, id string) (*models.SavedFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.load(ctx) {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
}

// Create snapshots groups into a new saved filter with a fresh ID and timestamp
func (s *Store) Create(ctx context.Context, name, description string, groups models.FilterSet, shared bool) (*models.SavedFilter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	snapshot := groups.Clone()
	if snapshot == nil {
		snapshot = models.FilterSet{}
	}

	filter := models.SavedFilter{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  strings.TrimSpace(description),
		FilterGroups: snapshot,
		CreatedAt:    s.now(),
		IsShared:     shared,
	}

	if _, err := s.Add(ctx, filter); err != nil {
		return nil, err
	}
	return &filter, nil
}

// Add appends filter and returns the updated list. Adding a filter whose ID
// is already stored replaces it instead of duplicating it.
func (s *Store) Add(ctx context.Context, filter models.SavedFilter) ([]models.SavedFilter, error) {
	return s.AddAll(ctx, []models.SavedFilter{filter})
}

// AddAll appends filters with a single write
func (s *Store) AddAll(ctx context.Context, filters []models.SavedFilter) ([]models.SavedFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for _, f := range filters {
		f.FilterGroups = f.FilterGroups.Clone()
		if i := indexOf(list, f.ID); i >= 0 {
			list[i] = f
			continue
		}
		list = append(list, f)
	}

	if err := s.save(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Update replaces the stored filter with the same ID
func (s *Store) Update(ctx context.Context, filter models.SavedFilter) ([]models.SavedFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	i := indexOf(list, filter.ID)
	if i < 0 {
		return list, fmt.Errorf("%w: %s", ErrFilterNotFound, filter.ID)
	}
	filter.FilterGroups = filter.FilterGroups.Clone()
	list[i] = filter

	if err := s.save(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Remove deletes a saved filter by ID and returns the updated list
func (s *Store) Remove(ctx context.Context, id string) ([]models.SavedFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	i := indexOf(list, id)
	if i < 0 {
		return list, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	list = append(list[:i], list[i+1:]...)

	if err := s.save(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Clear removes every saved filter
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear saved filters")
		return fmt.Errorf("failed to clear saved filters: %w", err)
	}
	s.metrics.SetSavedFilters(0)
	return nil
}

func (s *Store) load(ctx context.Context) []models.SavedFilter {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.SavedFilter{}
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("failed to read saved filters")
		return []models.SavedFilter{}
	}

	var list []models.SavedFilter
	if err := json.Unmarshal(data, &list); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("discarding corrupt saved filters")
		return []models.SavedFilter{}
	}
	if list == nil {
		list = []models.SavedFilter{}
	}
	return list
}

func (s *Store) save(ctx context.Context, list []models.SavedFilter) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal saved filters: %w", err)
	}

	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("failed to write saved filters")
		return fmt.Errorf("failed to save filters: %w", err)
	}

	s.metrics.SetSavedFilters(len(list))
	return nil
}

func indexOf(list []models.SavedFilter, id string) int {
	for i, f := range list {
		if f.ID == id {
			return i
		}
	}
	return -1
}
