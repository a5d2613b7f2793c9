package models

import (
	"time"
)

// DataType is the logical type of an attribute value
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
	DataTypePrice   DataType = "price"
	DataTypeURL     DataType = "url"
	DataTypeEnum    DataType = "enum" // multi-select and dropdown attributes
)

// AllDataTypes lists every data type in display order
var AllDataTypes = []DataType{
	DataTypeString,
	DataTypeNumber,
	DataTypePrice,
	DataTypeBoolean,
	DataTypeDate,
	DataTypeURL,
	DataTypeEnum,
}

// Valid reports whether dt is a known data type
func (dt DataType) Valid() bool {
	for _, known := range AllDataTypes {
		if dt == known {
			return true
		}
	}
	return false
}

// IsNumeric reports whether values of dt are compared as numbers
func (dt DataType) IsNumeric() bool {
	return dt == DataTypeNumber || dt == DataTypePrice
}

// FilterOperator represents a query comparison operator
type FilterOperator string

const (
	OpEqual          FilterOperator = "$eq"
	OpNotEqual       FilterOperator = "$ne"
	OpGreaterThan    FilterOperator = "$gt"
	OpGreaterOrEqual FilterOperator = "$gte"
	OpLessThan       FilterOperator = "$lt"
	OpLessOrEqual    FilterOperator = "$lte"
	OpRegex          FilterOperator = "$regex" // always case-insensitive
	OpExists         FilterOperator = "$exists"
	OpIn             FilterOperator = "$in"
	OpNotIn          FilterOperator = "$nin"
)

// LogicalOperator combines the conditions of a group
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "AND"
	LogicOr  LogicalOperator = "OR"
)

// Query operator keys
const (
	KeyAnd     = "$and"
	KeyOr      = "$or"
	KeyOptions = "$options"
)

// FilterCondition represents a single attribute/operator/value constraint.
// Value keeps the raw representation entered by the user (usually a string);
// it is converted according to DataType only when the query is composed.
type FilterCondition struct {
	ID        string         `json:"id" yaml:"id"`
	Attribute string         `json:"attribute" yaml:"attribute"`
	Operator  FilterOperator `json:"operator" yaml:"operator"`
	Value     interface{}    `json:"value" yaml:"value"`
	DataType  DataType       `json:"dataType" yaml:"dataType"`
}

// FilterGroup represents a named group of conditions combined with one logical operator
type FilterGroup struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Conditions      []FilterCondition `json:"conditions" yaml:"conditions"`
	LogicalOperator LogicalOperator   `json:"logicalOperator" yaml:"logicalOperator"`
}

// FilterSet is an ordered list of groups. Groups are always AND-combined.
type FilterSet []FilterGroup

// Clone returns a deep copy of the set so callers can't mutate shared condition slices
func (fs FilterSet) Clone() FilterSet {
	if fs == nil {
		return nil
	}
	out := make(FilterSet, len(fs))
	for i, g := range fs {
		out[i] = g
		if g.Conditions != nil {
			out[i].Conditions = make([]FilterCondition, len(g.Conditions))
			copy(out[i].Conditions, g.Conditions)
		}
	}
	return out
}

// ConditionCount returns the total number of conditions across all groups
func (fs FilterSet) ConditionCount() int {
	total := 0
	for _, g := range fs {
		total += len(g.Conditions)
	}
	return total
}

// IsEmpty reports whether no group carries a condition
func (fs FilterSet) IsEmpty() bool {
	return fs.ConditionCount() == 0
}

// SavedFilter is a persisted, named snapshot of a FilterSet
type SavedFilter struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	FilterGroups FilterSet `json:"filterGroups" yaml:"filterGroups"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
	IsShared     bool      `json:"isShared" yaml:"isShared"`
}
