package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rebeliceyang/lazyfilter/internal/models"
)

// ErrInvalidCondition is returned when a condition's operator is not valid for its data type
var ErrInvalidCondition = errors.New("invalid condition")

// OperatorOption pairs an operator with its display label
type OperatorOption struct {
	Operator models.FilterOperator `json:"value"`
	Label    string                `json:"label"`
}

// InputKind selects the native input control used to edit a value
type InputKind string

const (
	InputText   InputKind = "text"
	InputNumber InputKind = "number"
	InputDate   InputKind = "date"
)

// DataTypeOption describes a data type for selection lists
type DataTypeOption struct {
	Value models.DataType `json:"value"`
	Label string          `json:"label"`
}

var (
	stringOperators = []OperatorOption{
		{models.OpEqual, "Equals"},
		{models.OpNotEqual, "Not Equals"},
		{models.OpRegex, "Contains"},
		{models.OpExists, "Exists"},
	}
	numberOperators = []OperatorOption{
		{models.OpEqual, "Equals"},
		{models.OpNotEqual, "Not Equals"},
		{models.OpGreaterThan, "Greater Than"},
		{models.OpGreaterOrEqual, "Greater Than or Equal"},
		{models.OpLessThan, "Less Than"},
		{models.OpLessOrEqual, "Less Than or Equal"},
		{models.OpExists, "Exists"},
	}
	dateOperators = []OperatorOption{
		{models.OpEqual, "Equals"},
		{models.OpNotEqual, "Not Equals"},
		{models.OpGreaterThan, "After"},
		{models.OpGreaterOrEqual, "After or Equal"},
		{models.OpLessThan, "Before"},
		{models.OpLessOrEqual, "Before or Equal"},
		{models.OpExists, "Exists"},
	}
	booleanOperators = []OperatorOption{
		{models.OpEqual, "Equals"},
		{models.OpNotEqual, "Not Equals"},
		{models.OpExists, "Exists"},
	}
	enumOperators = []OperatorOption{
		{models.OpEqual, "Equals"},
		{models.OpNotEqual, "Not Equals"},
		{models.OpIn, "In List"},
		{models.OpNotIn, "Not In List"},
		{models.OpExists, "Exists"},
	}
)

// OperatorsFor returns the operators available for a data type, in display order.
// Unknown types fall back to the string operators.
func OperatorsFor(dataType models.DataType) []OperatorOption {
	var ops []OperatorOption
	switch dataType {
	case models.DataTypeNumber, models.DataTypePrice:
		ops = numberOperators
	case models.DataTypeDate:
		ops = dateOperators
	case models.DataTypeBoolean:
		ops = booleanOperators
	case models.DataTypeEnum:
		ops = enumOperators
	default:
		ops = stringOperators
	}
	return append([]OperatorOption(nil), ops...)
}

// IsOperatorValid reports whether op may be used with dataType
func IsOperatorValid(dataType models.DataType, op models.FilterOperator) bool {
	for _, opt := range OperatorsFor(dataType) {
		if opt.Operator == op {
			return true
		}
	}
	return false
}

// DefaultOperator returns the operator preselected for a freshly typed condition
func DefaultOperator(dataType models.DataType) models.FilterOperator {
	switch dataType {
	case models.DataTypePrice:
		return models.OpLessOrEqual
	case models.DataTypeURL:
		return models.OpRegex
	case models.DataTypeEnum:
		return models.OpIn
	default:
		return models.OpEqual
	}
}

// InputKindFor returns the input control for a data type. It has no bearing on query semantics.
func InputKindFor(dataType models.DataType) InputKind {
	switch dataType {
	case models.DataTypeNumber, models.DataTypePrice:
		return InputNumber
	case models.DataTypeDate:
		return InputDate
	default:
		return InputText
	}
}

// DataTypeOptions lists every data type with its display label
func DataTypeOptions() []DataTypeOption {
	return []DataTypeOption{
		{models.DataTypeString, "Text"},
		{models.DataTypeNumber, "Number"},
		{models.DataTypePrice, "Price"},
		{models.DataTypeBoolean, "Yes/No"},
		{models.DataTypeDate, "Date"},
		{models.DataTypeURL, "URL"},
		{models.DataTypeEnum, "List"},
	}
}

// ValidateCondition rejects conditions that must never reach the composer
func ValidateCondition(cond models.FilterCondition) error {
	if !cond.DataType.Valid() {
		return fmt.Errorf("%w: unknown data type %q", ErrInvalidCondition, cond.DataType)
	}
	if !IsOperatorValid(cond.DataType, cond.Operator) {
		return fmt.Errorf("%w: operator %s is not valid for %s", ErrInvalidCondition, cond.Operator, cond.DataType)
	}
	return nil
}

var (
	urlPattern  = regexp.MustCompile(`^https?://.+`)
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// ValidateValue returns a user-facing hint when raw doesn't look like a value of dataType.
// Composition never depends on it.
func ValidateValue(dataType models.DataType, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	switch dataType {
	case models.DataTypeNumber, models.DataTypePrice:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("must be a valid number")
		}
	case models.DataTypeURL:
		if !urlPattern.MatchString(raw) {
			return fmt.Errorf("must be a valid URL starting with http:// or https://")
		}
	case models.DataTypeDate:
		if !datePattern.MatchString(raw) {
			return fmt.Errorf("must be a valid date")
		}
	case models.DataTypeBoolean:
		if raw != "true" && raw != "false" {
			return fmt.Errorf("must be true or false")
		}
	}
	return nil
}
