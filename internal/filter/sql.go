package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rebeliceyang/lazyfilter/internal/jsonb"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// SQLBuilder renders composed query documents as PostgreSQL WHERE clauses.
// Fields under the attributes document are read from a JSONB column.
type SQLBuilder struct {
	attributesColumn string
}

// NewSQLBuilder creates a SQL builder reading attributes from the given JSONB column
func NewSQLBuilder(attributesColumn string) *SQLBuilder {
	if attributesColumn == "" {
		attributesColumn = "attributes"
	}
	return &SQLBuilder{attributesColumn: attributesColumn}
}

// BuildWhere generates a WHERE clause from a query document
func (b *SQLBuilder) BuildWhere(query map[string]interface{}) (string, []interface{}, error) {
	if len(query) == 0 {
		return "", nil, nil
	}

	clause, args, err := b.buildDocument(query, 1)
	if err != nil {
		return "", nil, err
	}

	return "WHERE " + clause, args, nil
}

// buildDocument builds every key of a document; sibling keys are AND-combined
func (b *SQLBuilder) buildDocument(doc map[string]interface{}, paramIndex int) (string, []interface{}, error) {
	// an empty document matches everything
	if len(doc) == 0 {
		return "TRUE", nil, nil
	}

	var clauses []string
	var args []interface{}
	currentParam := paramIndex

	for _, key := range sortedKeys(doc) {
		var clause string
		var keyArgs []interface{}
		var err error

		switch key {
		case models.KeyAnd, models.KeyOr:
			clause, keyArgs, err = b.buildLogical(key, doc[key], currentParam)
		default:
			clause, keyArgs, err = b.buildField(key, doc[key], currentParam)
		}
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, keyArgs...)
		currentParam += len(keyArgs)
	}

	if len(clauses) == 1 {
		return clauses[0], args, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

// buildLogical builds a $and/$or list
func (b *SQLBuilder) buildLogical(key string, value interface{}, paramIndex int) (string, []interface{}, error) {
	children, ok := asList(value)
	if !ok {
		return "", nil, fmt.Errorf("%s expects an array, got %T", key, value)
	}

	logic := "AND"
	if key == models.KeyOr {
		logic = "OR"
	}

	if len(children) == 0 {
		if logic == "AND" {
			return "TRUE", nil, nil
		}
		return "FALSE", nil, nil
	}

	var clauses []string
	var args []interface{}
	currentParam := paramIndex

	for _, child := range children {
		doc, ok := asDocument(child)
		if !ok {
			return "", nil, fmt.Errorf("%s element must be a document, got %T", key, child)
		}
		clause, childArgs, err := b.buildDocument(doc, currentParam)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "("+clause+")")
		args = append(args, childArgs...)
		currentParam += len(childArgs)
	}

	return strings.Join(clauses, " "+logic+" "), args, nil
}

// buildField builds the operators applied to one field
func (b *SQLBuilder) buildField(field string, value interface{}, paramIndex int) (string, []interface{}, error) {
	ops, ok := asDocument(value)
	if !ok {
		// A bare value is an implicit $eq
		ops = map[string]interface{}{string(models.OpEqual): value}
	}

	var clauses []string
	var args []interface{}
	currentParam := paramIndex

	for _, op := range sortedKeys(ops) {
		if op == models.KeyOptions {
			continue
		}
		clause, opArgs, err := b.buildCondition(field, models.FilterOperator(op), ops[op], ops[models.KeyOptions], currentParam)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, opArgs...)
		currentParam += len(opArgs)
	}

	if len(clauses) == 0 {
		return "", nil, fmt.Errorf("no operator given for field %s", field)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// buildCondition builds a single field condition
func (b *SQLBuilder) buildCondition(field string, op models.FilterOperator, value, options interface{}, paramIndex int) (string, []interface{}, error) {
	column := b.fieldExpr(field)

	switch op {
	case models.OpExists:
		if exists, _ := value.(bool); exists {
			return fmt.Sprintf("%s IS NOT NULL", column), nil, nil
		}
		return fmt.Sprintf("%s IS NULL", column), nil, nil
	case models.OpEqual, models.OpGreaterThan, models.OpGreaterOrEqual,
		models.OpLessThan, models.OpLessOrEqual:
		return fmt.Sprintf("%s %s $%d", b.typedExpr(column, value), sqlOperator(op), paramIndex), []interface{}{value}, nil
	case models.OpNotEqual:
		return fmt.Sprintf("%s IS DISTINCT FROM $%d", b.typedExpr(column, value), paramIndex), []interface{}{value}, nil
	case models.OpRegex:
		regexOp := "~"
		if opts, _ := options.(string); strings.Contains(opts, "i") {
			regexOp = "~*"
		}
		return fmt.Sprintf("%s %s $%d", column, regexOp, paramIndex), []interface{}{fmt.Sprint(value)}, nil
	case models.OpIn, models.OpNotIn:
		list, ok := asList(value)
		if !ok {
			return "", nil, fmt.Errorf("%s expects an array, got %T", op, value)
		}
		expr, arg := b.listExpr(column, list)
		if op == models.OpIn {
			return fmt.Sprintf("%s = ANY($%d)", expr, paramIndex), []interface{}{arg}, nil
		}
		return fmt.Sprintf("(%s IS NULL OR NOT (%s = ANY($%d)))", column, expr, paramIndex), []interface{}{arg}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operator: %s", op)
	}
}

// fieldExpr maps a dotted field to a column or a JSONB text extraction
func (b *SQLBuilder) fieldExpr(field string) string {
	path := jsonb.ParsePath(field)
	if path.Head() == strings.TrimSuffix(AttributePrefix, ".") && len(path.Parts) > 1 {
		literal := strings.ReplaceAll(path.Tail().PostgreSQLPath(), "'", "''")
		return fmt.Sprintf("%s #>> '%s'", pgx.Identifier{b.attributesColumn}.Sanitize(), literal)
	}
	return pgx.Identifier(path.Parts).Sanitize()
}

// typedExpr casts a JSONB text extraction so it compares like the parameter
func (b *SQLBuilder) typedExpr(column string, value interface{}) string {
	if !strings.Contains(column, "#>>") {
		return column
	}
	switch jsonb.KindOf(value) {
	case jsonb.KindNumber:
		return "(" + column + ")::numeric"
	case jsonb.KindBoolean:
		return "(" + column + ")::boolean"
	default:
		return column
	}
}

// listExpr picks a numeric or text array for $in/$nin parameters
func (b *SQLBuilder) listExpr(column string, list []interface{}) (string, interface{}) {
	numeric := len(list) > 0
	for _, item := range list {
		if jsonb.KindOf(item) != jsonb.KindNumber {
			numeric = false
			break
		}
	}

	if numeric {
		nums := make([]float64, len(list))
		for i, item := range list {
			nums[i] = toFloat(item)
		}
		return b.typedExpr(column, nums[0]), nums
	}

	texts := make([]string, len(list))
	for i, item := range list {
		texts[i] = fmt.Sprint(item)
	}
	return column, texts
}

func sqlOperator(op models.FilterOperator) string {
	switch op {
	case models.OpGreaterThan:
		return ">"
	case models.OpGreaterOrEqual:
		return ">="
	case models.OpLessThan:
		return "<"
	case models.OpLessOrEqual:
		return "<="
	default:
		return "="
	}
}

func toFloat(v interface{}) float64 {
	if f, ok := toNumber(v).(float64); ok {
		return f
	}
	return 0
}

func sortedKeys(doc map[string]interface{}) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// asDocument accepts bson.M as well as documents decoded from JSON
func asDocument(v interface{}) (map[string]interface{}, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return d, true
	default:
		return nil, false
	}
}

// asList accepts bson.A as well as arrays decoded from JSON
func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case bson.A:
		return l, true
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
