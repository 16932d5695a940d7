package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_BatchMapping(t *testing.T) {
	valid := []string{
		`{"mappings": []}`,
		`{"mappings": [{"value": "Acme", "path": ["Finance", "Banking"]}]}`,
		`{"mappings": [{"value": "Acme", "path": "Finance > Banking"}]}`,
		`{"mappings": [{"value": "Acme"}]}`,
		`{"mappings": [{"value": 90210, "path": ["Region"]}]}`,
	}
	for _, doc := range valid {
		assert.NoError(t, Validate(BatchMapping, doc), doc)
	}

	invalid := []string{
		`{}`,
		`{"mappings": null}`,
		`{"mappings": [{"path": ["Finance"]}]}`,
		`{"mappings": [{"value": {"name": "Acme"}}]}`,
		`[]`,
	}
	for _, doc := range invalid {
		err := Validate(BatchMapping, doc)
		require.Error(t, err, doc)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), doc)
	}
}

func TestValidate_Taxonomy(t *testing.T) {
	assert.NoError(t, Validate(Taxonomy, `[{"name": "Finance", "children": [{"name": "Banking", "children": []}]}]`))
	assert.NoError(t, Validate(Taxonomy, `{"buckets": [{"name": "Finance", "isAiSuggested": true}]}`))
	assert.NoError(t, Validate(Taxonomy, `[{"description": "nameless"}]`))

	assert.Error(t, Validate(Taxonomy, `{"categories": []}`))
	assert.Error(t, Validate(Taxonomy, `[{"name": "Finance", "children": "Banking"}]`))
}

func TestValidate_UnknownSchema(t *testing.T) {
	assert.ErrorContains(t, Validate("nope", `{}`), "unknown schema")
}

func TestValidate_MalformedDocument(t *testing.T) {
	assert.Error(t, Validate(BatchMapping, `{"mappings": [`))
}
