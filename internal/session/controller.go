// Package session holds the live filter-editing state and decides when a
// newly composed query is published to the data source.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rebeliceyang/lazyfilter/internal/export"
	"github.com/rebeliceyang/lazyfilter/internal/filter"
	"github.com/rebeliceyang/lazyfilter/internal/metrics"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rebeliceyang/lazyfilter/internal/savedfilters"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultGroupID     = "default"
	DefaultGroupName   = "Default Group"
	DefaultDebounceDur = 500 * time.Millisecond
)

var (
	ErrGroupNotFound     = errors.New("filter group not found")
	ErrConditionNotFound = errors.New("filter condition not found")
	ErrLastGroup         = errors.New("cannot remove the last filter group")
)

// Publisher receives every composed query
type Publisher interface {
	Publish(ctx context.Context, query bson.M) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, query bson.M) error

func (f PublisherFunc) Publish(ctx context.Context, query bson.M) error {
	return f(ctx, query)
}

// Controller owns the live filter groups, the search term and the last
// applied filter set. Edits never publish; ApplyFilters, LoadFilter,
// ClearAllFilters and settled search-term changes do.
type Controller struct {
	mu sync.Mutex

	builder   *filter.Builder
	store     *savedfilters.Store
	publisher Publisher
	debouncer *Debouncer
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	attributes  []string
	groups      models.FilterSet
	searchTerm  string
	lastApplied models.FilterSet
	saved       []models.SavedFilter
}

// Option configures a Controller
type Option func(*Controller)

// WithBuilder sets the query builder
func WithBuilder(b *filter.Builder) Option {
	return func(c *Controller) { c.builder = b }
}

// WithDebouncer sets the search-term debouncer
func WithDebouncer(d *Debouncer) Option {
	return func(c *Controller) { c.debouncer = d }
}

// WithMetrics records publications and imports
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithAttributes sets the attributes new conditions choose their default from
func WithAttributes(attributes ...string) Option {
	return func(c *Controller) { c.attributes = attributes }
}

// NewController creates a controller with one empty default group
func NewController(publisher Publisher, store *savedfilters.Store, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		builder:   filter.NewBuilder(),
		store:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "filter_session").Logger(),
		groups:    defaultGroups(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.debouncer == nil {
		c.debouncer = NewDebouncer(DefaultDebounceDur, nil)
	}
	return c
}

func defaultGroups() models.FilterSet {
	return models.FilterSet{{
		ID:              DefaultGroupID,
		Name:            DefaultGroupName,
		Conditions:      []models.FilterCondition{},
		LogicalOperator: models.LogicAnd,
	}}
}

// Groups returns a copy of the live filter groups
func (c *Controller) Groups() models.FilterSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups.Clone()
}

// LastApplied returns a copy of the most recently applied filter set
func (c *Controller) LastApplied() models.FilterSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastApplied.Clone()
}

// SearchTerm returns the live search term
func (c *Controller) SearchTerm() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchTerm
}

// SetAttributes replaces the attributes new conditions choose their default from
func (c *Controller) SetAttributes(attributes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes = append([]string(nil), attributes...)
}

// HasActiveFilters reports whether any condition or search term is set
func (c *Controller) HasActiveFilters() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.groups.IsEmpty() || c.searchTerm != ""
}

// TotalConditions counts the conditions across all live groups
func (c *Controller) TotalConditions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups.ConditionCount()
}

// AddCondition appends a condition on the default attribute to a group
func (c *Controller) AddCondition(groupID string) (models.FilterCondition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gi := c.groupIndex(groupID)
	if gi < 0 {
		return models.FilterCondition{}, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	attribute := filter.DefaultAttribute(c.attributes)
	dataType := filter.InferDataType(attribute)
	cond := models.FilterCondition{
		ID:        uuid.New().String(),
		Attribute: attribute,
		Operator:  filter.DefaultOperator(dataType),
		Value:     "",
		DataType:  dataType,
	}

	c.groups[gi].Conditions = append(c.groups[gi].Conditions, cond)
	return cond, nil
}

// RemoveCondition removes a condition from a group
func (c *Controller) RemoveCondition(groupID, conditionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gi, ci, err := c.conditionIndex(groupID, conditionID)
	if err != nil {
		return err
	}

	conds := c.groups[gi].Conditions
	c.groups[gi].Conditions = append(conds[:ci:ci], conds[ci+1:]...)
	return nil
}

// UpdateCondition replaces the condition with the same ID. Conditions whose
// operator is not valid for their data type are rejected and leave the
// state unchanged.
func (c *Controller) UpdateCondition(groupID string, cond models.FilterCondition) error {
	if err := filter.ValidateCondition(cond); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	gi, ci, err := c.conditionIndex(groupID, cond.ID)
	if err != nil {
		return err
	}
	c.groups[gi].Conditions[ci] = cond
	return nil
}

// ChangeAttribute points a condition at a new attribute, re-inferring its data
// type and resetting the operator to that type's default
func (c *Controller) ChangeAttribute(groupID, conditionID, attribute string) (models.FilterCondition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gi, ci, err := c.conditionIndex(groupID, conditionID)
	if err != nil {
		return models.FilterCondition{}, err
	}

	cond := &c.groups[gi].Conditions[ci]
	cond.Attribute = attribute
	cond.DataType = filter.InferDataType(attribute)
	cond.Operator = filter.DefaultOperator(cond.DataType)
	return *cond, nil
}

// AddGroup appends an empty AND group
func (c *Controller) AddGroup() models.FilterGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := models.FilterGroup{
		ID:              uuid.New().String(),
		Name:            fmt.Sprintf("Group %d", len(c.groups)+1),
		Conditions:      []models.FilterCondition{},
		LogicalOperator: models.LogicAnd,
	}
	c.groups = append(c.groups, group)
	return group
}

// RemoveGroup removes a group. The last remaining group cannot be removed.
func (c *Controller) RemoveGroup(groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gi := c.groupIndex(groupID)
	if gi < 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	if len(c.groups) <= 1 {
		return ErrLastGroup
	}

	c.groups = append(c.groups[:gi:gi], c.groups[gi+1:]...)
	return nil
}

// UpdateGroup renames a group and sets its logical operator. Empty values
// leave the current setting.
func (c *Controller) UpdateGroup(groupID, name string, logic models.LogicalOperator) error {
	if logic != "" && logic != models.LogicAnd && logic != models.LogicOr {
		return fmt.Errorf("unknown logical operator: %s", logic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	gi := c.groupIndex(groupID)
	if gi < 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	if name = strings.TrimSpace(name); name != "" {
		c.groups[gi].Name = name
	}
	if logic != "" {
		c.groups[gi].LogicalOperator = logic
	}
	return nil
}

// ReplaceGroups makes groups the live filter groups without publishing.
// Every condition must be valid; an empty set resets to the default group.
func (c *Controller) ReplaceGroups(groups models.FilterSet) error {
	if err := validateGroups(groups); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = groups.Clone()
	if len(c.groups) == 0 {
		c.groups = defaultGroups()
	}
	return nil
}

// ApplyFilters snapshots the live groups as the applied set and publishes
// them composed with the current search term
func (c *Controller) ApplyFilters(ctx context.Context) error {
	c.mu.Lock()
	c.lastApplied = c.groups.Clone()
	query := c.builder.Compose(c.lastApplied, c.searchTerm)
	c.mu.Unlock()

	return c.publish(ctx, query, metrics.TriggerApply)
}

// SetSearchTerm records the search term and schedules a publication once
// input settles. The settled query uses the last applied filter set, never
// unapplied edits.
func (c *Controller) SetSearchTerm(term string) {
	c.mu.Lock()
	c.searchTerm = term
	c.mu.Unlock()

	c.debouncer.Trigger(c.publishSearch)
}

// FlushSearch publishes a pending search-term change immediately
func (c *Controller) FlushSearch() bool {
	return c.debouncer.Flush()
}

func (c *Controller) publishSearch() {
	c.mu.Lock()
	query := c.builder.Compose(c.lastApplied, c.searchTerm)
	c.mu.Unlock()

	// errors are logged by publish; there is no caller to return them to
	_ = c.publish(context.Background(), query, metrics.TriggerSearch)
}

// ClearAllFilters resets every piece of live state and publishes the
// universal predicate
func (c *Controller) ClearAllFilters(ctx context.Context) error {
	c.debouncer.Cancel()

	c.mu.Lock()
	c.groups = defaultGroups()
	c.searchTerm = ""
	c.lastApplied = nil
	c.mu.Unlock()

	return c.publish(ctx, bson.M{}, metrics.TriggerClear)
}

// LoadFilter replaces the live groups with a saved snapshot and publishes it
// immediately with the current search term. The snapshot becomes the applied
// set, and a pending search is dropped since this publication carries the term.
func (c *Controller) LoadFilter(ctx context.Context, saved models.SavedFilter) error {
	if err := validateGroups(saved.FilterGroups); err != nil {
		return fmt.Errorf("failed to load filter %q: %w", saved.Name, err)
	}

	c.debouncer.Cancel()

	c.mu.Lock()
	c.groups = saved.FilterGroups.Clone()
	if len(c.groups) == 0 {
		c.groups = defaultGroups()
	}
	c.lastApplied = c.groups.Clone()
	query := c.builder.Compose(c.lastApplied, c.searchTerm)
	c.mu.Unlock()

	return c.publish(ctx, query, metrics.TriggerLoad)
}

// LoadSavedFilters refreshes the saved-filter list from the store
func (c *Controller) LoadSavedFilters(ctx context.Context) []models.SavedFilter {
	list := c.store.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = list
	return append([]models.SavedFilter(nil), list...)
}

// SavedFilters returns the cached saved-filter list
func (c *Controller) SavedFilters() []models.SavedFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.SavedFilter(nil), c.saved...)
}

// SaveFilter stores a snapshot of the live groups
func (c *Controller) SaveFilter(ctx context.Context, name, description string, shared bool) (*models.SavedFilter, error) {
	groups := c.Groups()

	saved, err := c.store.Create(ctx, name, description, groups, shared)
	if err != nil {
		return nil, fmt.Errorf("failed to save filter: %w", err)
	}

	c.LoadSavedFilters(ctx)
	return saved, nil
}

// DeleteFilter removes a saved filter
func (c *Controller) DeleteFilter(ctx context.Context, id string) error {
	list, err := c.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete filter: %w", err)
	}

	c.mu.Lock()
	c.saved = list
	c.mu.Unlock()
	return nil
}

// ExportFilters serializes the saved filters
func (c *Controller) ExportFilters() (string, error) {
	return export.Export(c.SavedFilters())
}

// ImportFilters parses blob and appends its filters to the store. Nothing is
// stored unless the whole blob is valid.
func (c *Controller) ImportFilters(ctx context.Context, blob string) ([]models.SavedFilter, error) {
	imported, err := export.Import(blob)
	if err != nil {
		c.metrics.RecordImport(metrics.ImportMalformed)
		c.logger.Warn().Err(err).Msg("rejected filter import")
		return nil, err
	}
	return c.storeImported(ctx, imported)
}

// ImportFile imports a .json export file
func (c *Controller) ImportFile(ctx context.Context, path string) ([]models.SavedFilter, error) {
	imported, err := export.ImportFile(path)
	if err != nil {
		if errors.Is(err, export.ErrMalformedImport) {
			c.metrics.RecordImport(metrics.ImportMalformed)
		}
		c.logger.Warn().Err(err).Str("path", path).Msg("rejected filter import")
		return nil, err
	}
	return c.storeImported(ctx, imported)
}

func (c *Controller) storeImported(ctx context.Context, imported []models.SavedFilter) ([]models.SavedFilter, error) {
	list, err := c.store.AddAll(ctx, imported)
	if err != nil {
		return nil, fmt.Errorf("failed to store imported filters: %w", err)
	}
	c.metrics.RecordImport(metrics.ImportOK)

	c.mu.Lock()
	c.saved = list
	c.mu.Unlock()

	c.logger.Info().Int("count", len(imported)).Msg("imported saved filters")
	return imported, nil
}

// Close cancels any pending search publication
func (c *Controller) Close() {
	c.debouncer.Cancel()
}

func (c *Controller) publish(ctx context.Context, query bson.M, trigger string) error {
	if err := c.publisher.Publish(ctx, query); err != nil {
		c.logger.Error().Err(err).Str("trigger", trigger).Msg("failed to publish query")
		return fmt.Errorf("failed to publish query: %w", err)
	}
	c.metrics.RecordPublish(trigger)

	c.logger.Debug().Str("trigger", trigger).Interface("query", query).Msg("published query")
	return nil
}

func (c *Controller) groupIndex(groupID string) int {
	for i, g := range c.groups {
		if g.ID == groupID {
			return i
		}
	}
	return -1
}

func (c *Controller) conditionIndex(groupID, conditionID string) (int, int, error) {
	gi := c.groupIndex(groupID)
	if gi < 0 {
		return -1, -1, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	for ci, cond := range c.groups[gi].Conditions {
		if cond.ID == conditionID {
			return gi, ci, nil
		}
	}
	return -1, -1, fmt.Errorf("%w: %s", ErrConditionNotFound, conditionID)
}

func validateGroups(groups models.FilterSet) error {
	for _, g := range groups {
		for _, cond := range g.Conditions {
			if err := filter.ValidateCondition(cond); err != nil {
				return fmt.Errorf("group %q: %w", g.Name, err)
			}
		}
	}
	return nil
}
