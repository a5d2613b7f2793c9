package filter

import (
	"testing"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSQLBuilder_BuildWhere(t *testing.T) {
	b := NewSQLBuilder("")

	tests := []struct {
		name         string
		query        bson.M
		expectedSQL  string
		expectedArgs []interface{}
	}{
		{
			name:         "empty query",
			query:        bson.M{},
			expectedSQL:  "",
			expectedArgs: nil,
		},
		{
			name:         "attribute equality",
			query:        bson.M{"attributes.brand": bson.M{"$eq": "Apple"}},
			expectedSQL:  `WHERE "attributes" #>> '{brand}' = $1`,
			expectedArgs: []interface{}{"Apple"},
		},
		{
			name:         "top-level column",
			query:        bson.M{"skuId": bson.M{"$ne": "X-1"}},
			expectedSQL:  `WHERE "skuId" IS DISTINCT FROM $1`,
			expectedArgs: []interface{}{"X-1"},
		},
		{
			name:         "numeric comparison casts the attribute",
			query:        bson.M{"attributes.price": bson.M{"$lte": 1299.0}},
			expectedSQL:  `WHERE ("attributes" #>> '{price}')::numeric <= $1`,
			expectedArgs: []interface{}{1299.0},
		},
		{
			name:         "boolean comparison casts the attribute",
			query:        bson.M{"attributes.active": bson.M{"$eq": true}},
			expectedSQL:  `WHERE ("attributes" #>> '{active}')::boolean = $1`,
			expectedArgs: []interface{}{true},
		},
		{
			name:         "nested attribute path",
			query:        bson.M{"attributes.dimensions.width": bson.M{"$gt": 10.0}},
			expectedSQL:  `WHERE ("attributes" #>> '{dimensions,width}')::numeric > $1`,
			expectedArgs: []interface{}{10.0},
		},
		{
			name:         "case-insensitive regex",
			query:        bson.M{"attributes.category": bson.M{"$regex": "elec", "$options": "i"}},
			expectedSQL:  `WHERE "attributes" #>> '{category}' ~* $1`,
			expectedArgs: []interface{}{"elec"},
		},
		{
			name:         "case-sensitive regex",
			query:        bson.M{"attributes.category": bson.M{"$regex": "Elec"}},
			expectedSQL:  `WHERE "attributes" #>> '{category}' ~ $1`,
			expectedArgs: []interface{}{"Elec"},
		},
		{
			name:         "exists",
			query:        bson.M{"attributes.price": bson.M{"$exists": true}},
			expectedSQL:  `WHERE "attributes" #>> '{price}' IS NOT NULL`,
			expectedArgs: nil,
		},
		{
			name:         "not exists",
			query:        bson.M{"attributes.price": bson.M{"$exists": false}},
			expectedSQL:  `WHERE "attributes" #>> '{price}' IS NULL`,
			expectedArgs: nil,
		},
		{
			name:         "in with text list",
			query:        bson.M{"attributes.color": bson.M{"$in": bson.A{"red", "blue"}}},
			expectedSQL:  `WHERE "attributes" #>> '{color}' = ANY($1)`,
			expectedArgs: []interface{}{[]string{"red", "blue"}},
		},
		{
			name:         "nin with numeric list",
			query:        bson.M{"attributes.size": bson.M{"$nin": bson.A{1.0, 2.0}}},
			expectedSQL:  `WHERE ("attributes" #>> '{size}' IS NULL OR NOT (("attributes" #>> '{size}')::numeric = ANY($1)))`,
			expectedArgs: []interface{}{[]float64{1, 2}},
		},
		{
			name:         "bare value is implicit equality",
			query:        bson.M{"id": "p-1"},
			expectedSQL:  `WHERE "id" = $1`,
			expectedArgs: []interface{}{"p-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := b.BuildWhere(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSQL, sql)
			assert.Equal(t, tt.expectedArgs, args)
		})
	}
}

func TestSQLBuilder_ComposedQuery(t *testing.T) {
	fb := NewBuilder(WithSearchFields("id", "attributes.name"))
	query := fb.Compose(models.FilterSet{
		group(models.LogicOr,
			cond("attributes.brand", models.OpEqual, "Apple", models.DataTypeString),
			cond("attributes.price", models.OpLessThan, "500", models.DataTypePrice),
		),
	}, "book")

	sql, args, err := NewSQLBuilder("attrs").BuildWhere(query)
	require.NoError(t, err)

	expected := `WHERE (("attrs" #>> '{brand}' = $1) OR (("attrs" #>> '{price}')::numeric < $2)) AND ` +
		`(("id" ~* $3) OR ("attrs" #>> '{name}' ~* $4))`
	assert.Equal(t, expected, sql)
	assert.Equal(t, []interface{}{"Apple", 500.0, "book", "book"}, args)
}

func TestSQLBuilder_EmptyLogical(t *testing.T) {
	b := NewSQLBuilder("")

	sql, _, err := b.BuildWhere(bson.M{"$and": bson.A{}})
	require.NoError(t, err)
	assert.Equal(t, "WHERE TRUE", sql)

	sql, _, err = b.BuildWhere(bson.M{"$or": bson.A{}})
	require.NoError(t, err)
	assert.Equal(t, "WHERE FALSE", sql)

	sql, args, err := b.BuildWhere(bson.M{"$or": bson.A{
		bson.M{},
		bson.M{"attributes.brand": bson.M{"$eq": "Dell"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, `WHERE (TRUE) OR ("attributes" #>> '{brand}' = $1)`, sql)
	assert.Equal(t, []interface{}{"Dell"}, args)

	sql, _, err = b.BuildWhere(map[string]interface{}{"$and": []interface{}{map[string]interface{}{}}})
	require.NoError(t, err)
	assert.Equal(t, "WHERE (TRUE)", sql)
}

func TestSQLBuilder_Errors(t *testing.T) {
	b := NewSQLBuilder("")

	tests := []struct {
		name  string
		query bson.M
	}{
		{"unsupported operator", bson.M{"attributes.x": bson.M{"$where": "1"}}},
		{"logical without array", bson.M{"$and": "nope"}},
		{"logical element not a document", bson.M{"$or": bson.A{"nope"}}},
		{"in without array", bson.M{"attributes.x": bson.M{"$in": "red"}}},
		{"options only", bson.M{"attributes.x": bson.M{"$options": "i"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := b.BuildWhere(tt.query)
			assert.Error(t, err)
		})
	}
}

func TestSQLBuilder_DecodedJSONDocuments(t *testing.T) {
	query := map[string]interface{}{
		"$and": []interface{}{
			map[string]interface{}{"attributes.brand": map[string]interface{}{"$eq": "Dell"}},
			map[string]interface{}{"attributes.tags": map[string]interface{}{"$in": []interface{}{"sale"}}},
		},
	}

	sql, args, err := NewSQLBuilder("").BuildWhere(query)
	require.NoError(t, err)
	assert.Equal(t, `WHERE ("attributes" #>> '{brand}' = $1) AND ("attributes" #>> '{tags}' = ANY($2))`, sql)
	assert.Equal(t, []interface{}{"Dell", []string{"sale"}}, args)
}
