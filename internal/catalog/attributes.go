package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/rebeliceyang/lazyfilter/internal/filter"
	"github.com/rebeliceyang/lazyfilter/internal/jsonb"
	"github.com/rebeliceyang/lazyfilter/internal/models"
)

// Attribute is a product attribute found in sampled documents
type Attribute struct {
	Name     string          `json:"name"`
	DataType models.DataType `json:"dataType"`
	Sample   interface{}     `json:"sample,omitempty"`
}

// DiscoverAttributes collects the leaf paths under each product's attributes,
// sorted by name. The data type is inferred from the name, refined by the
// first non-null sample.
func DiscoverAttributes(products []models.Product) []Attribute {
	found := make(map[string]*Attribute)

	for _, p := range products {
		for _, path := range jsonb.ExtractPaths(p.Attributes) {
			name := path.String()
			if attr, ok := found[name]; ok && attr.Sample != nil {
				continue
			}

			sample, err := jsonb.GetValueAtPath(p.Attributes, path)
			if err != nil {
				sample = nil
			}
			found[name] = &Attribute{
				Name:     name,
				DataType: filter.InferDataTypeFromValue(name, sample),
				Sample:   sample,
			}
		}
	}

	attrs := make([]Attribute, 0, len(found))
	for _, attr := range found {
		attrs = append(attrs, *attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name < attrs[j].Name
	})
	return attrs
}

// SampleAttributes fetches up to limit products and discovers their attributes
func SampleAttributes(ctx context.Context, source Source, limit int) ([]Attribute, error) {
	page, err := source.Fetch(ctx, models.NewProductQuery(nil, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to sample products: %w", err)
	}
	return DiscoverAttributes(page.Products), nil
}

// AttributeNames returns the names of attrs in order
func AttributeNames(attrs []Attribute) []string {
	names := make([]string, len(attrs))
	for i, attr := range attrs {
		names[i] = attr.Name
	}
	return names
}
