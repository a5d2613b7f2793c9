package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rebeliceyang/lazyfilter/internal/filter"
	"github.com/rebeliceyang/lazyfilter/internal/models"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ErrMalformedImport is returned when an import blob is not a JSON array of
// saved filters, an element lacks id, name or filterGroups, or a condition
// uses an operator its data type doesn't allow.
var ErrMalformedImport = errors.New("malformed import")

// Export serializes saved filters as a pretty-printed JSON array
func Export(filters []models.SavedFilter) (string, error) {
	if filters == nil {
		filters = []models.SavedFilter{}
	}

	data, err := json.MarshalIndent(filters, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal saved filters to JSON: %w", err)
	}
	return string(data), nil
}

// importedFilter is the lenient decoding target for one imported element
type importedFilter struct {
	ID           *string           `json:"id"`
	Name         *string           `json:"name"`
	Description  string            `json:"description"`
	FilterGroups *models.FilterSet `json:"filterGroups"`
	CreatedAt    interface{}       `json:"createdAt"`
	IsShared     interface{}       `json:"isShared"`
}

// Import parses a blob produced by Export. Either every element is valid and
// all are returned, or nothing is. A missing or unparseable createdAt
// becomes the current time.
func Import(blob string) ([]models.SavedFilter, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(blob), &elements); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of saved filters: %v", ErrMalformedImport, err)
	}
	if elements == nil {
		return nil, fmt.Errorf("%w: expected a JSON array of saved filters, got null", ErrMalformedImport)
	}

	now := time.Now()
	filters := make([]models.SavedFilter, 0, len(elements))
	for i, raw := range elements {
		var in importedFilter
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrMalformedImport, i, err)
		}

		switch {
		case in.ID == nil || strings.TrimSpace(*in.ID) == "":
			return nil, fmt.Errorf("%w: element %d is missing \"id\"", ErrMalformedImport, i)
		case in.Name == nil || strings.TrimSpace(*in.Name) == "":
			return nil, fmt.Errorf("%w: element %d is missing \"name\"", ErrMalformedImport, i)
		case in.FilterGroups == nil:
			return nil, fmt.Errorf("%w: element %d is missing \"filterGroups\"", ErrMalformedImport, i)
		}
		if err := validateGroups(*in.FilterGroups); err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrMalformedImport, i, err)
		}

		filters = append(filters, models.SavedFilter{
			ID:           *in.ID,
			Name:         *in.Name,
			Description:  in.Description,
			FilterGroups: *in.FilterGroups,
			CreatedAt:    coerceTime(in.CreatedAt, now),
			IsShared:     cast.ToBool(in.IsShared),
		})
	}

	return filters, nil
}

func validateGroups(groups models.FilterSet) error {
	for _, g := range groups {
		for _, cond := range g.Conditions {
			if err := filter.ValidateCondition(cond); err != nil {
				return fmt.Errorf("group %q condition %q: %w", g.Name, cond.ID, err)
			}
		}
	}
	return nil
}

// coerceTime reads ISO strings and epoch milliseconds, falling back to def
func coerceTime(v interface{}, def time.Time) time.Time {
	switch t := v.(type) {
	case nil:
		return def
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
		if parsed, err := cast.ToTimeE(t); err == nil {
			return parsed
		}
	}
	return def
}

// ImportFile reads and parses a .json export file
func ImportFile(path string) ([]models.SavedFilter, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("%w: expected a .json file, got %q", ErrMalformedImport, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	return Import(string(data))
}

// ExportToFile writes saved filters to path, choosing JSON, CSV or YAML by extension
func ExportToFile(filters []models.SavedFilter, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ExportCSV(filters, path)
	case ".yaml", ".yml":
		data, err := ExportYAML(filters)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write YAML file: %w", err)
		}
		return nil
	default:
		blob, err := Export(filters)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(blob), 0644); err != nil {
			return fmt.Errorf("failed to write JSON file: %w", err)
		}
		return nil
	}
}

// ExportYAML serializes saved filters as YAML
func ExportYAML(filters []models.SavedFilter) ([]byte, error) {
	if filters == nil {
		filters = []models.SavedFilter{}
	}
	data, err := yaml.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal saved filters to YAML: %w", err)
	}
	return data, nil
}

// ExportCSV writes a one-row-per-filter summary to a CSV file
func ExportCSV(filters []models.SavedFilter, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	header := []string{"Name", "Description", "Groups", "Conditions", "Created", "Shared"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, f := range filters {
		row := []string{
			f.Name,
			f.Description,
			fmt.Sprintf("%d", len(f.FilterGroups)),
			fmt.Sprintf("%d", f.FilterGroups.ConditionCount()),
			f.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%t", f.IsShared),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}
