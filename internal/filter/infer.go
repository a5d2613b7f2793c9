package filter

import (
	"strings"
	"time"

	"github.com/rebeliceyang/lazyfilter/internal/jsonb"
	"github.com/rebeliceyang/lazyfilter/internal/models"
)

// CoreAttributes are preferred, in order, when picking a default attribute
var CoreAttributes = []string{
	"name",
	"brand",
	"category",
	"price",
	"description",
	"sku",
	"status",
	"type",
}

// AttributePrefix namespaces product attributes inside a document
const AttributePrefix = "attributes."

type keywordRule struct {
	keywords []string
	dataType models.DataType
}

// Rules are checked in order; the first match wins.
var inferenceRules = []keywordRule{
	{[]string{"price", "cost", "amount"}, models.DataTypePrice},
	{[]string{"quantity", "weight", "count"}, models.DataTypeNumber},
	{[]string{"date", "created", "updated", "modified", "time"}, models.DataTypeDate},
	{[]string{"active", "enabled", "visible", "published", "available"}, models.DataTypeBoolean},
	{[]string{"url", "link", "href"}, models.DataTypeURL},
}

// InferDataType guesses a data type from an attribute name. Unknown names are strings.
func InferDataType(attributeName string) models.DataType {
	lowerName := strings.ToLower(attributeName)
	for _, rule := range inferenceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowerName, kw) {
				return rule.dataType
			}
		}
	}
	return models.DataTypeString
}

// InferDataTypeFromValue refines a name-based string guess using a sample value
func InferDataTypeFromValue(attributeName string, sample interface{}) models.DataType {
	dt := InferDataType(attributeName)
	if dt != models.DataTypeString || sample == nil {
		return dt
	}

	if _, ok := sample.(time.Time); ok {
		return models.DataTypeDate
	}

	switch jsonb.KindOf(sample) {
	case jsonb.KindNumber:
		return models.DataTypeNumber
	case jsonb.KindBoolean:
		return models.DataTypeBoolean
	case jsonb.KindArray:
		return models.DataTypeEnum
	case jsonb.KindString:
		s := sample.(string)
		if urlPattern.MatchString(s) {
			return models.DataTypeURL
		}
		if datePattern.MatchString(s) {
			return models.DataTypeDate
		}
	}
	return dt
}

// DefaultAttribute picks the attribute a new condition starts with
func DefaultAttribute(available []string) string {
	for _, core := range CoreAttributes {
		for _, attr := range available {
			if attr == core {
				return AttributePrefix + core
			}
		}
	}
	if len(available) > 0 {
		return AttributePrefix + available[0]
	}
	return ""
}
