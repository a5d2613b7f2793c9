package filter

import (
	"encoding/json"
	"testing"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func cond(attr string, op models.FilterOperator, value interface{}, dt models.DataType) models.FilterCondition {
	return models.FilterCondition{ID: attr + string(op), Attribute: attr, Operator: op, Value: value, DataType: dt}
}

func group(logic models.LogicalOperator, conds ...models.FilterCondition) models.FilterGroup {
	return models.FilterGroup{ID: "g", Name: "Group", LogicalOperator: logic, Conditions: conds}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestBuildCondition_Conversion(t *testing.T) {
	b := NewBuilder()

	tests := []struct {
		name     string
		cond     models.FilterCondition
		expected bson.M
	}{
		{
			name:     "string unchanged",
			cond:     cond("attributes.brand", models.OpEqual, "Apple", models.DataTypeString),
			expected: bson.M{"attributes.brand": bson.M{"$eq": "Apple"}},
		},
		{
			name:     "number parsed",
			cond:     cond("attributes.stock", models.OpGreaterThan, "12.5", models.DataTypeNumber),
			expected: bson.M{"attributes.stock": bson.M{"$gt": 12.5}},
		},
		{
			name:     "price parsed",
			cond:     cond("attributes.price", models.OpLessOrEqual, " 1299 ", models.DataTypePrice),
			expected: bson.M{"attributes.price": bson.M{"$lte": 1299.0}},
		},
		{
			name:     "number fallback keeps raw string",
			cond:     cond("attributes.price", models.OpEqual, "cheap", models.DataTypePrice),
			expected: bson.M{"attributes.price": bson.M{"$eq": "cheap"}},
		},
		{
			name:     "empty number keeps raw string",
			cond:     cond("attributes.price", models.OpEqual, "", models.DataTypeNumber),
			expected: bson.M{"attributes.price": bson.M{"$eq": ""}},
		},
		{
			name:     "number already numeric",
			cond:     cond("attributes.price", models.OpEqual, 42.0, models.DataTypeNumber),
			expected: bson.M{"attributes.price": bson.M{"$eq": 42.0}},
		},
		{
			name:     "boolean strict true",
			cond:     cond("attributes.active", models.OpEqual, "true", models.DataTypeBoolean),
			expected: bson.M{"attributes.active": bson.M{"$eq": true}},
		},
		{
			name:     "boolean anything else is false",
			cond:     cond("attributes.active", models.OpEqual, "TRUE", models.DataTypeBoolean),
			expected: bson.M{"attributes.active": bson.M{"$eq": false}},
		},
		{
			name:     "date to epoch millis",
			cond:     cond("createdAt", models.OpGreaterOrEqual, "2024-01-15", models.DataTypeDate),
			expected: bson.M{"createdAt": bson.M{"$gte": int64(1705276800000)}},
		},
		{
			name:     "date fallback keeps raw string",
			cond:     cond("createdAt", models.OpLessThan, "someday", models.DataTypeDate),
			expected: bson.M{"createdAt": bson.M{"$lt": "someday"}},
		},
		{
			name:     "regex gets case-insensitive option",
			cond:     cond("attributes.category", models.OpRegex, "electronics", models.DataTypeString),
			expected: bson.M{"attributes.category": bson.M{"$regex": "electronics", "$options": "i"}},
		},
		{
			name:     "regex on url",
			cond:     cond("attributes.link", models.OpRegex, "example", models.DataTypeURL),
			expected: bson.M{"attributes.link": bson.M{"$regex": "example", "$options": "i"}},
		},
		{
			name:     "exists uses the boolean flag, not the converted value",
			cond:     cond("attributes.price", models.OpExists, "false", models.DataTypePrice),
			expected: bson.M{"attributes.price": bson.M{"$exists": false}},
		},
		{
			name:     "exists with empty value means present",
			cond:     cond("attributes.price", models.OpExists, "", models.DataTypePrice),
			expected: bson.M{"attributes.price": bson.M{"$exists": true}},
		},
		{
			name:     "in splits comma lists",
			cond:     cond("attributes.color", models.OpIn, "red, blue,,green ", models.DataTypeEnum),
			expected: bson.M{"attributes.color": bson.M{"$in": bson.A{"red", "blue", "green"}}},
		},
		{
			name:     "nin keeps decoded arrays",
			cond:     cond("attributes.color", models.OpNotIn, []interface{}{"red"}, models.DataTypeEnum),
			expected: bson.M{"attributes.color": bson.M{"$nin": bson.A{"red"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, b.BuildCondition(tt.cond))
		})
	}
}

func TestBuildGroup(t *testing.T) {
	b := NewBuilder()
	brand := cond("attributes.brand", models.OpEqual, "Apple", models.DataTypeString)
	price := cond("attributes.price", models.OpLessThan, "2000", models.DataTypePrice)

	t.Run("empty group is absorbed", func(t *testing.T) {
		assert.Nil(t, b.BuildGroup(group(models.LogicAnd)))
	})

	t.Run("single condition is not wrapped", func(t *testing.T) {
		assert.Equal(t, bson.M{"attributes.brand": bson.M{"$eq": "Apple"}}, b.BuildGroup(group(models.LogicOr, brand)))
	})

	t.Run("and group preserves order", func(t *testing.T) {
		got := b.BuildGroup(group(models.LogicAnd, brand, price))
		assert.Equal(t, bson.M{"$and": bson.A{
			bson.M{"attributes.brand": bson.M{"$eq": "Apple"}},
			bson.M{"attributes.price": bson.M{"$lt": 2000.0}},
		}}, got)
	})

	t.Run("or group", func(t *testing.T) {
		got := b.BuildGroup(group(models.LogicOr, price, brand))
		assert.Equal(t, bson.M{"$or": bson.A{
			bson.M{"attributes.price": bson.M{"$lt": 2000.0}},
			bson.M{"attributes.brand": bson.M{"$eq": "Apple"}},
		}}, got)
	})

	t.Run("missing logical operator defaults to and", func(t *testing.T) {
		got := b.BuildGroup(group("", brand, price))
		assert.Contains(t, got, "$and")
	})
}

func TestComposeGroups_Absorption(t *testing.T) {
	b := NewBuilder()

	assert.Equal(t, bson.M{}, b.ComposeGroups(nil))
	assert.Equal(t, bson.M{}, b.ComposeGroups(models.FilterSet{}))
	assert.Equal(t, bson.M{}, b.ComposeGroups(models.FilterSet{group(models.LogicAnd), group(models.LogicOr)}))
	assert.NotNil(t, b.ComposeGroups(models.FilterSet{group(models.LogicAnd)}))
}

func TestComposeGroups_Flattening(t *testing.T) {
	b := NewBuilder()
	fs := models.FilterSet{
		group(models.LogicAnd),
		group(models.LogicAnd, cond("attributes.brand", models.OpEqual, "Apple", models.DataTypeString)),
		group(models.LogicOr),
	}

	assert.JSONEq(t, `{"attributes.brand":{"$eq":"Apple"}}`, mustJSON(t, b.ComposeGroups(fs)))
}

// Groups are always AND-combined, even when every group uses OR internally.
func TestComposeGroups_CrossGroupConjunction(t *testing.T) {
	b := NewBuilder()
	fs := models.FilterSet{
		group(models.LogicOr,
			cond("attributes.brand", models.OpEqual, "Apple", models.DataTypeString),
			cond("attributes.brand", models.OpEqual, "Dell", models.DataTypeString),
		),
		group(models.LogicOr,
			cond("attributes.price", models.OpLessThan, "1000", models.DataTypePrice),
			cond("attributes.onSale", models.OpEqual, "true", models.DataTypeBoolean),
		),
	}

	expected := `{"$and":[
		{"$or":[{"attributes.brand":{"$eq":"Apple"}},{"attributes.brand":{"$eq":"Dell"}}]},
		{"$or":[{"attributes.price":{"$lt":1000}},{"attributes.onSale":{"$eq":true}}]}
	]}`
	assert.JSONEq(t, expected, mustJSON(t, b.ComposeGroups(fs)))
}

func TestComposeGroups_Idempotent(t *testing.T) {
	b := NewBuilder()
	fs := models.FilterSet{
		group(models.LogicAnd,
			cond("attributes.brand", models.OpRegex, "app", models.DataTypeString),
			cond("attributes.price", models.OpGreaterThan, "10", models.DataTypePrice),
		),
		group(models.LogicOr, cond("createdAt", models.OpGreaterThan, "2024-01-01", models.DataTypeDate)),
	}

	first := b.ComposeGroups(fs)
	second := b.ComposeGroups(fs)
	assert.Equal(t, first, second)
}

func TestComposeGroups_DoesNotMutateInput(t *testing.T) {
	b := NewBuilder()
	fs := models.FilterSet{group(models.LogicAnd, cond("attributes.price", models.OpGreaterThan, "10", models.DataTypePrice))}
	snapshot := fs.Clone()

	b.ComposeGroups(fs)
	assert.Equal(t, snapshot, fs)
}

func TestBuildSearchPredicate(t *testing.T) {
	b := NewBuilder()

	t.Run("blank term", func(t *testing.T) {
		assert.Equal(t, bson.M{}, b.BuildSearchPredicate(""))
		assert.Equal(t, bson.M{}, b.BuildSearchPredicate("   \t"))
	})

	t.Run("macbook", func(t *testing.T) {
		expected := `{"$or":[
			{"id":{"$regex":"macbook","$options":"i"}},
			{"skuId":{"$regex":"macbook","$options":"i"}},
			{"attributes.brand":{"$regex":"macbook","$options":"i"}},
			{"attributes.name":{"$regex":"macbook","$options":"i"}}
		]}`
		assert.JSONEq(t, expected, mustJSON(t, b.BuildSearchPredicate("macbook")))
	})

	t.Run("term is trimmed", func(t *testing.T) {
		assert.Equal(t, b.BuildSearchPredicate("macbook"), b.BuildSearchPredicate("  macbook "))
	})

	t.Run("custom fields", func(t *testing.T) {
		custom := NewBuilder(WithSearchFields("attributes.sku"))
		assert.JSONEq(t, `{"$or":[{"attributes.sku":{"$regex":"x1","$options":"i"}}]}`, mustJSON(t, custom.BuildSearchPredicate("x1")))
	})
}

func TestComposeFinal(t *testing.T) {
	b := NewBuilder()
	advanced := bson.M{"attributes.category": bson.M{"$regex": "electronics", "$options": "i"}}

	t.Run("both empty", func(t *testing.T) {
		assert.Equal(t, bson.M{}, b.ComposeFinal(bson.M{}, ""))
		assert.Equal(t, bson.M{}, b.ComposeFinal(nil, "  "))
	})

	t.Run("advanced only", func(t *testing.T) {
		assert.Equal(t, advanced, b.ComposeFinal(advanced, ""))
	})

	t.Run("search only has no outer and", func(t *testing.T) {
		assert.Equal(t, b.BuildSearchPredicate("term"), b.ComposeFinal(bson.M{}, "term"))
	})

	t.Run("advanced and search", func(t *testing.T) {
		expected := `{"$and":[
			{"attributes.category":{"$regex":"electronics","$options":"i"}},
			{"$or":[
				{"id":{"$regex":"apple","$options":"i"}},
				{"skuId":{"$regex":"apple","$options":"i"}},
				{"attributes.brand":{"$regex":"apple","$options":"i"}},
				{"attributes.name":{"$regex":"apple","$options":"i"}}
			]}
		]}`
		assert.JSONEq(t, expected, mustJSON(t, b.ComposeFinal(advanced, "apple")))
	})

	t.Run("single-child wrappers are removed", func(t *testing.T) {
		wrapped := bson.M{"$and": bson.A{bson.M{"$or": bson.A{advanced}}}}
		assert.Equal(t, advanced, b.ComposeFinal(wrapped, ""))
	})

	t.Run("multi-child and is kept nested", func(t *testing.T) {
		multi := bson.M{"$and": bson.A{advanced, bson.M{"attributes.brand": bson.M{"$eq": "Apple"}}}}
		got := b.ComposeFinal(multi, "apple")
		clauses, ok := got["$and"].(bson.A)
		require.True(t, ok)
		require.Len(t, clauses, 2)
		assert.Equal(t, multi, clauses[0])
	})
}

func TestCompose_ScenarioBrandApple(t *testing.T) {
	b := NewBuilder()
	fs := models.FilterSet{{
		ID:              "default",
		Name:            "Default Group",
		LogicalOperator: models.LogicAnd,
		Conditions: []models.FilterCondition{{
			ID:        "c1",
			Attribute: "attributes.brand",
			Operator:  models.OpEqual,
			Value:     "Apple",
			DataType:  models.DataTypeString,
		}},
	}}

	assert.JSONEq(t, `{"attributes.brand":{"$eq":"Apple"}}`, mustJSON(t, b.Compose(fs, "")))
}
