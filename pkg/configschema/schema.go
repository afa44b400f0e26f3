// Package configschema renders the JSON Schema of the docstore configuration.
package configschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/nimburion/docstore/pkg/config"
)

// BuildSchema returns a JSON Schema for Config with the values of
// DefaultConfig injected as defaults.
func BuildSchema() (*jsonschema.Schema, error) {
	return BuildSchemaWithDefaults(config.DefaultConfig())
}

// BuildSchemaWithDefaults builds the schema and injects defaults taken from
// cfg. A nil cfg leaves the schema without defaults.
func BuildSchemaWithDefaults(cfg *config.Config) (*jsonschema.Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string"},
		},
	}

	configType := reflect.TypeOf(config.Config{})
	schema, err := jsonschema.ForType(configType, opts)
	if err != nil {
		return nil, fmt.Errorf("build config schema: %w", err)
	}
	applyFieldNames(schema, configType)

	serviceName := "docstore"
	if cfg != nil {
		injectDefaults(schema, reflect.ValueOf(cfg))
		if name := strings.TrimSpace(cfg.Service.Name); name != "" {
			serviceName = name
		}
	}
	pruneRequiredWithDefaults(schema)
	restrictEnums(schema)

	schema.Title = serviceName + " Configuration"
	schema.Description = "Schema for " + serviceName + " configuration."
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// restrictEnums adds the closed value sets the loader validates against.
func restrictEnums(schema *jsonschema.Schema) {
	set := func(path []string, values ...string) {
		node := schema
		for _, name := range path {
			if node == nil {
				return
			}
			node = node.Properties[name]
		}
		if node == nil {
			return
		}
		node.Enum = make([]any, len(values))
		for i, v := range values {
			node.Enum[i] = v
		}
	}
	set([]string{"snapshot", "backend"},
		config.SnapshotBackendFile, config.SnapshotBackendS3, config.SnapshotBackendRedis, config.SnapshotBackendMongoDB)
	set([]string{"log", "level"}, "debug", "info", "warn", "warning", "error")
	set([]string{"log", "format"}, "json", "text", "console")
}

// applyFieldNames renames properties to the mapstructure keys the loader
// reads, recursing into nested sections.
func applyFieldNames(schema *jsonschema.Schema, t reflect.Type) {
	if schema == nil || t == nil {
		return
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		if len(schema.Properties) == 0 {
			return
		}
		nameMap := make(map[string]string)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			jsonName, omit := jsonFieldName(field)
			if omit {
				continue
			}
			desired := fieldKeyName(field)
			nameMap[jsonName] = desired
			if prop, ok := schema.Properties[jsonName]; ok {
				delete(schema.Properties, jsonName)
				schema.Properties[desired] = prop
				applyFieldNames(prop, field.Type)
			}
		}
		schema.Required = renameAll(schema.Required, nameMap)
		schema.PropertyOrder = renameAll(schema.PropertyOrder, nameMap)

	case reflect.Slice, reflect.Array:
		applyFieldNames(schema.Items, t.Elem())

	case reflect.Map:
		applyFieldNames(schema.AdditionalProperties, t.Elem())
	}
}

func renameAll(names []string, nameMap map[string]string) []string {
	if len(names) == 0 {
		return names
	}
	updated := make([]string, 0, len(names))
	for _, name := range names {
		if mapped, ok := nameMap[name]; ok {
			updated = append(updated, mapped)
		} else {
			updated = append(updated, name)
		}
	}
	return dedupeStrings(updated)
}

// injectDefaults walks value alongside schema and records every leaf value
// as the default of the matching property.
func injectDefaults(schema *jsonschema.Schema, value reflect.Value) {
	if schema == nil || !value.IsValid() {
		return
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return
		}
		value = value.Elem()
	}

	if value.Kind() != reflect.Struct {
		if schema.Default == nil {
			schema.Default = marshalDefault(value)
		}
		return
	}
	t := value.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if prop, ok := schema.Properties[fieldKeyName(field)]; ok {
			injectDefaults(prop, value.Field(i))
		}
	}
}

func pruneRequiredWithDefaults(schema *jsonschema.Schema) {
	if schema == nil {
		return
	}
	kept := schema.Required[:0]
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop == nil || !hasDefaults(prop) {
			kept = append(kept, name)
		}
	}
	schema.Required = kept
	for _, prop := range schema.Properties {
		pruneRequiredWithDefaults(prop)
	}
}

// hasDefaults reports whether a property or every one of its children has a
// default, so omitting it from a config file is valid.
func hasDefaults(schema *jsonschema.Schema) bool {
	if schema.Default != nil {
		return true
	}
	if len(schema.Properties) == 0 {
		return false
	}
	for _, prop := range schema.Properties {
		if !hasDefaults(prop) {
			return false
		}
	}
	return true
}

// marshalDefault encodes value as JSON. Durations use their string form,
// which matches how viper decodes them.
func marshalDefault(value reflect.Value) json.RawMessage {
	var v any = value.Interface()
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}

// fieldKeyName returns the mapstructure key of field, falling back to the
// lower-cased Go name the way mapstructure does.
func fieldKeyName(field reflect.StructField) string {
	if tag := field.Tag.Get("mapstructure"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

// jsonFieldName returns the property name jsonschema-go generated for field.
func jsonFieldName(field reflect.StructField) (string, bool) {
	if !field.IsExported() {
		return "", true
	}
	name := field.Name
	if tag, ok := field.Tag.Lookup("json"); ok {
		tagName, _, found := strings.Cut(tag, ",")
		if tagName == "-" && !found {
			return "", true
		}
		if tagName != "" {
			name = tagName
		}
	}
	return name, false
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
