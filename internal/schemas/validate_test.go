package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `{
	"sources": [{
		"id": "plexiwire",
		"kind": "standard",
		"urls": [{"url": "https://plexiwire.example/catalog", "category": "PLA"}],
		"selectors": {"container": ".product"}
	}]
}`

func TestValidateConfig_Valid(t *testing.T) {
	assert.NoError(t, ValidateConfig([]byte(minimalConfig)))
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no sources", `{}`, "(root)"},
		{"empty sources", `{"sources": []}`, "sources"},
		{"unknown kind", `{"sources": [{"id": "a", "kind": "weird", "urls": [{"url": "x"}], "selectors": {"container": "li"}}]}`, "sources.0.kind"},
		{"bad duration", `{"sources": [{"id": "a", "kind": "catalog", "min_interval": "ten minutes", "urls": [{"url": "x"}], "selectors": {"container": "li"}}]}`, "sources.0.min_interval"},
		{"unknown top-level key", `{"sources": [{"id": "a", "kind": "catalog", "urls": [{"url": "x"}], "selectors": {"container": "li"}}], "extra": 1}`, "(root)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig([]byte(tt.doc))
			require.Error(t, err)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestValidateConfig_Malformed(t *testing.T) {
	err := ValidateConfig([]byte("{ invalid json }"))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotNil(t, errors.Unwrap(err))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name": "PLA"}`))
	assert.Error(t, ValidateJSONString(schema, `{"name": 5}`))
	assert.Error(t, ValidateJSONString(`{"type": 12}`, `{}`))
}
