package filter

import (
	"math"
	"strconv"
	"strings"

	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultSearchFields are matched by the quick search, in order
var DefaultSearchFields = []string{
	"id",
	"skuId",
	"attributes.brand",
	"attributes.name",
}

// Builder composes filter groups and quick-search terms into query documents.
// Every method is pure; a Builder is safe for concurrent use.
type Builder struct {
	searchFields []string
}

// Option configures a Builder
type Option func(*Builder)

// WithSearchFields overrides the fields matched by the quick search
func WithSearchFields(fields ...string) Option {
	return func(b *Builder) {
		if len(fields) > 0 {
			b.searchFields = append([]string(nil), fields...)
		}
	}
}

// NewBuilder creates a new filter builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{searchFields: DefaultSearchFields}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SearchFields returns the fields matched by the quick search
func (b *Builder) SearchFields() []string {
	return append([]string(nil), b.searchFields...)
}

// BuildCondition converts one condition into a single-field predicate.
// Conditions are assumed valid; see ValidateCondition.
func (b *Builder) BuildCondition(cond models.FilterCondition) bson.M {
	var operand interface{}
	switch cond.Operator {
	case models.OpExists:
		operand = existsFlag(cond.Value)
	case models.OpIn, models.OpNotIn:
		operand = convertList(cond.Value, cond.DataType)
	default:
		operand = ConvertValue(cond.Value, cond.DataType)
	}

	predicate := bson.M{string(cond.Operator): operand}
	if cond.Operator == models.OpRegex {
		predicate[models.KeyOptions] = "i"
	}
	return bson.M{cond.Attribute: predicate}
}

// BuildGroup combines a group's conditions. It returns nil for a group
// without conditions and the bare condition predicate for a group of one.
func (b *Builder) BuildGroup(group models.FilterGroup) bson.M {
	if len(group.Conditions) == 0 {
		return nil
	}

	clauses := make(bson.A, 0, len(group.Conditions))
	for _, cond := range group.Conditions {
		clauses = append(clauses, b.BuildCondition(cond))
	}

	if len(clauses) == 1 {
		return clauses[0].(bson.M)
	}

	key := models.KeyAnd
	if group.LogicalOperator == models.LogicOr {
		key = models.KeyOr
	}
	return bson.M{key: clauses}
}

// ComposeGroups combines every non-empty group with $and, whatever each
// group's own logical operator is. An empty set yields the universal predicate {}.
func (b *Builder) ComposeGroups(groups models.FilterSet) bson.M {
	var clauses bson.A
	for _, group := range groups {
		if fragment := b.BuildGroup(group); fragment != nil {
			clauses = append(clauses, fragment)
		}
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0].(bson.M)
	default:
		return bson.M{models.KeyAnd: clauses}
	}
}

// BuildSearchPredicate builds the quick-search predicate: a case-insensitive regex
// over every search field, OR-combined. Blank terms yield {}.
func (b *Builder) BuildSearchPredicate(term string) bson.M {
	term = strings.TrimSpace(term)
	if term == "" {
		return bson.M{}
	}

	clauses := make(bson.A, 0, len(b.searchFields))
	for _, field := range b.searchFields {
		clauses = append(clauses, bson.M{
			field: bson.M{
				string(models.OpRegex): term,
				models.KeyOptions:      "i",
			},
		})
	}
	return bson.M{models.KeyOr: clauses}
}

// ComposeFinal joins an advanced query with the quick search for term.
// Empty sides are absorbed, so the result is never a single-child $and.
func (b *Builder) ComposeFinal(advanced bson.M, term string) bson.M {
	var clauses bson.A
	if len(advanced) > 0 {
		clauses = append(clauses, unwrapSingle(advanced))
	}
	if search := b.BuildSearchPredicate(term); len(search) > 0 {
		clauses = append(clauses, search)
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0].(bson.M)
	default:
		return bson.M{models.KeyAnd: clauses}
	}
}

// Compose is ComposeFinal over ComposeGroups
func (b *Builder) Compose(groups models.FilterSet, term string) bson.M {
	return b.ComposeFinal(b.ComposeGroups(groups), term)
}

// unwrapSingle removes $and/$or wrappers that hold exactly one clause
func unwrapSingle(q bson.M) bson.M {
	for len(q) == 1 {
		var children bson.A
		if v, ok := q[models.KeyAnd].(bson.A); ok {
			children = v
		} else if v, ok := q[models.KeyOr].(bson.A); ok {
			children = v
		}
		if len(children) != 1 {
			return q
		}
		child, ok := children[0].(bson.M)
		if !ok {
			return q
		}
		q = child
	}
	return q
}

// ConvertValue converts a raw condition value according to its data type.
//
// Numbers and dates that fail to parse are returned unchanged rather than
// reported: composition stays total, and inputs that were tolerated before
// keep producing the same query.
func ConvertValue(value interface{}, dataType models.DataType) interface{} {
	switch dataType {
	case models.DataTypeNumber, models.DataTypePrice:
		return toNumber(value)
	case models.DataTypeBoolean:
		if s, ok := value.(string); ok {
			return s == "true"
		}
		if v, ok := value.(bool); ok {
			return v
		}
		return false
	case models.DataTypeDate:
		return toEpochMillis(value)
	default:
		return value
	}
}

func toNumber(value interface{}) interface{} {
	switch v := value.(type) {
	case bool, nil:
		return value
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return value
		}
		f, err := cast.ToFloat64E(s)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return value
		}
		return f
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return value
		}
		return f
	}
}

func toEpochMillis(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return value
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return value
		}
		return t.UnixMilli()
	case float64:
		return int64(v)
	case int, int64:
		return cast.ToInt64(v)
	default:
		return value
	}
}

// existsFlag reads the $exists operand. Anything that isn't a recognisable
// false means the attribute must be present.
func existsFlag(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return true
		}
		return b
	default:
		return true
	}
}

// convertList splits comma-separated input and converts each element
func convertList(value interface{}, dataType models.DataType) bson.A {
	var raw []interface{}
	switch v := value.(type) {
	case []interface{}:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, part)
			}
		}
	case nil:
	default:
		raw = []interface{}{v}
	}

	out := make(bson.A, 0, len(raw))
	for _, item := range raw {
		out = append(out, ConvertValue(item, dataType))
	}
	return out
}
