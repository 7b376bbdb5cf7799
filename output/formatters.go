package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any, prettyPrint bool) ([]byte, error)
}

// NewFormatter returns the formatter registered under name
// ("json", "yaml", "csv", "table" or "text")
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "json":
		return &JSONFormatter{}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	case "table", "text":
		return &TableFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", name)
}

// JSONFormatter formats output as JSON
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	if prettyPrint {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	return yaml.Marshal(data)
}

// CSVFormatter formats output as a two-row CSV: flattened keys, then values
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	flat := ConvertToStringMap(ExtractFlattenedData(data, ""))
	keys := slices.Sorted(maps.Keys(flat))

	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = flat[key]
	}

	var result strings.Builder
	writer := csv.NewWriter(&result)

	for _, record := range [][]string{keys, values} {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return []byte(result.String()), nil
}

// TableFormatter formats output as aligned "key  value" lines
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, prettyPrint bool) ([]byte, error) {
	flat := ConvertToStringMap(ExtractFlattenedData(data, ""))
	keys := slices.Sorted(maps.Keys(flat))

	width := 0
	for _, key := range keys {
		width = max(width, len(key))
	}

	var result strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&result, "%-*s  %s\n", width, key, flat[key])
	}

	return []byte(result.String()), nil
}

// FormatDuration formats a duration for human-readable output
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Nanoseconds())/1e6)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// ExtractFlattenedData extracts data from nested structures for tabular
// output. Keys use the json tag name when present.
func ExtractFlattenedData(data any, prefix string) map[string]any {
	result := make(map[string]any)

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return result
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		if _, isTime := v.Interface().(time.Time); isTime {
			result[strings.TrimSuffix(prefix, "_")] = v.Interface()
			return result
		}

		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			fieldType := t.Field(i)

			if !field.CanInterface() {
				continue
			}

			name := fieldName(fieldType)
			if name == "-" {
				continue
			}
			key := prefix + name
			value := field.Interface()

			switch {
			case field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Time{}),
				field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct,
				field.Kind() == reflect.Map:
				maps.Copy(result, ExtractFlattenedData(value, key+"_"))
			default:
				result[key] = value
			}
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			keyStr := fmt.Sprintf("%v", key.Interface())
			value := v.MapIndex(key).Interface()

			flatKey := prefix + strings.ToLower(keyStr)
			if reflect.ValueOf(value).Kind() == reflect.Struct {
				maps.Copy(result, ExtractFlattenedData(value, flatKey+"_"))
			} else {
				result[flatKey] = value
			}
		}
	default:
		result[prefix] = data
	}

	return result
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

// ConvertToStringMap converts various data types to string for CSV/table output
func ConvertToStringMap(data map[string]any) map[string]string {
	result := make(map[string]string)

	for key, value := range data {
		result[key] = ConvertValueToString(value)
	}

	return result
}

// ConvertValueToString converts a single value to string representation
func ConvertValueToString(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return strconv.FormatFloat(reflect.ValueOf(v).Float(), 'f', 3, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return FormatDuration(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
