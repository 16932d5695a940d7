package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`42`, "42"},
		{`3.14`, "3.14"},
		{`true`, "true"},
		{`null`, ""},
		{``, ""},
		{`{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FlexibleStringValue(json.RawMessage(tt.input)), tt.input)
	}
}

func TestFlexiblePath(t *testing.T) {
	type mapping struct {
		Value FlexibleString `json:"value"`
		Path  FlexiblePath   `json:"path"`
	}
	tests := []struct {
		name  string
		input string
		value string
		path  []string
	}{
		{"array", `{"value":"Acme","path":["Finance","Banking"]}`, "Acme", []string{"Finance", "Banking"}},
		{"string", `{"value":"Acme","path":"Real Estate > Residential"}`, "Acme", []string{"Real Estate", "Residential"}},
		{"catch-all keeps slash", `{"value":"x","path":"General / Unformatted"}`, "x", []string{"General / Unformatted"}},
		{"numeric value", `{"value":90210,"path":[1,"Zip"]}`, "90210", []string{"1", "Zip"}},
		{"null path", `{"value":"x","path":null}`, "x", nil},
		{"missing path", `{"value":"x"}`, "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m mapping
			require.NoError(t, json.Unmarshal([]byte(tt.input), &m))
			assert.Equal(t, tt.value, string(m.Value))
			assert.Equal(t, tt.path, []string(m.Path))
		})
	}
}
