package savedfilters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rebeliceyang/lazyfilter/internal/metrics"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/rebeliceyang/lazyfilter/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// flakyKV wraps a MemoryKV and fails reads or writes on demand
type flakyKV struct {
	*storage.MemoryKV
	failGet bool
	failSet bool
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("disk on fire")
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("quota exceeded")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func newTestStore(kv storage.KV, opts ...Option) *Store {
	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	return NewStore(kv, zerolog.Nop(), opts...)
}

func sampleGroups() models.FilterSet {
	return models.FilterSet{{
		ID:              "g1",
		Name:            "Group 1",
		LogicalOperator: models.LogicAnd,
		Conditions: []models.FilterCondition{{
			ID:        "c1",
			Attribute: "attributes.brand",
			Operator:  models.OpEqual,
			Value:     "Apple",
			DataType:  models.DataTypeString,
		}},
	}}
}

func TestStore_ListEmpty(t *testing.T) {
	s := newTestStore(storage.NewMemoryKV())
	list := s.List(context.Background())
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemoryKV())

	created, err := s.Create(ctx, "  Apple laptops ", " cheap ones ", sampleGroups(), true)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Apple laptops", created.Name)
	assert.Equal(t, "cheap ones", created.Description)
	assert.Equal(t, fixedTime, created.CreatedAt)
	assert.True(t, created.IsShared)

	list := s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, *created, list[0])

	other, err := s.Create(ctx, "Dell", "", nil, false)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID, other.ID)
	assert.Len(t, s.List(ctx), 2)
}

func TestStore_CreateRejectsEmptyName(t *testing.T) {
	s := newTestStore(storage.NewMemoryKV())
	_, err := s.Create(context.Background(), "   ", "", sampleGroups(), false)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestStore_CreateSnapshotsGroups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemoryKV())

	groups := sampleGroups()
	created, err := s.Create(ctx, "snap", "", groups, false)
	require.NoError(t, err)

	groups[0].Conditions[0].Value = "Dell"
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", got.FilterGroups[0].Conditions[0].Value)
}

func TestStore_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemoryKV())
	f := models.SavedFilter{ID: "f1", Name: "First", FilterGroups: sampleGroups(), CreatedAt: fixedTime}

	list, err := s.Add(ctx, f)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.Add(ctx, f)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_UpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemoryKV())

	_, err := s.AddAll(ctx, []models.SavedFilter{
		{ID: "a", Name: "A", FilterGroups: models.FilterSet{}, CreatedAt: fixedTime},
		{ID: "b", Name: "B", FilterGroups: models.FilterSet{}, CreatedAt: fixedTime},
	})
	require.NoError(t, err)

	list, err := s.Update(ctx, models.SavedFilter{ID: "b", Name: "B2", FilterGroups: models.FilterSet{}, CreatedAt: fixedTime})
	require.NoError(t, err)
	assert.Equal(t, "B2", list[1].Name)

	_, err = s.Update(ctx, models.SavedFilter{ID: "zzz", Name: "nope"})
	assert.ErrorIs(t, err, ErrFilterNotFound)

	list, err = s.Remove(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	_, err = s.Remove(ctx, "a")
	assert.ErrorIs(t, err, ErrFilterNotFound)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrFilterNotFound)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(storage.NewMemoryKV())

	_, err := s.Create(ctx, "x", "", nil, false)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.List(ctx))
}

func TestStore_ReadFailureDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	s := newTestStore(kv)

	_, err := s.Create(ctx, "x", "", nil, false)
	require.NoError(t, err)

	kv.failGet = true
	assert.Empty(t, s.List(ctx))
}

func TestStore_CorruptDataDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, DefaultKey, []byte("{not json")))

	s := newTestStore(kv)
	assert.Empty(t, s.List(ctx))
}

func TestStore_WriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	s := newTestStore(kv)

	_, err := s.Create(ctx, "kept", "", nil, false)
	require.NoError(t, err)

	kv.failSet = true
	_, err = s.Create(ctx, "lost", "", nil, false)
	assert.Error(t, err)

	list := s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "kept", list[0].Name)
}

func TestStore_PersistsUnderKey(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := newTestStore(kv, WithKey("custom"))

	_, err := s.Create(ctx, "x", "", nil, false)
	require.NoError(t, err)

	data, err := kv.Get(ctx, "custom")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"createdAt":"2024-01-15T10:30:00Z"`)

	_, err = kv.Get(ctx, DefaultKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ReportsCount(t *testing.T) {
	ctx := context.Background()
	m, err := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := newTestStore(storage.NewMemoryKV(), WithMetrics(m))

	_, err = s.Create(ctx, "a", "", nil, false)
	require.NoError(t, err)
	_, err = s.Create(ctx, "b", "", nil, false)
	require.NoError(t, err)

	var metric dto.Metric
	require.NoError(t, m.SavedFilters.Write(&metric))
	assert.Equal(t, 2.0, metric.GetGauge().GetValue())
}
