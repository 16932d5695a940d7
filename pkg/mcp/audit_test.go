package mcp

import (
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeParams(t *testing.T) {
	got := sanitizeParams(map[string]any{
		"job_id":    "7f0c",
		"api_token": "tok-1",
		"nested":    map[string]any{"password": "hunter2", "depth": float64(2)},
	})

	assert.Equal(t, "7f0c", got["job_id"])
	assert.True(t, strings.HasPrefix(got["api_token"].(string), "sha256:"))
	assert.Equal(t, hashSensitiveValue("tok-1"), got["api_token"])

	nested, ok := got["nested"].(map[string]any)
	require.True(t, ok)
	assert.NotEqual(t, "hunter2", nested["password"])
	assert.Equal(t, float64(2), nested["depth"])

	assert.Nil(t, sanitizeParams(nil))
	assert.Nil(t, sanitizeParams("not a map"))
}

func TestHashSensitiveValue_Stable(t *testing.T) {
	assert.Equal(t, hashSensitiveValue("abc"), hashSensitiveValue("abc"))
	assert.NotEqual(t, hashSensitiveValue("abc"), hashSensitiveValue("abd"))
	assert.Len(t, hashSensitiveValue(42), len("sha256:")+16)
}

func TestSummarizeResult(t *testing.T) {
	assert.Nil(t, summarizeResult(nil))

	long := strings.Repeat("y", maxPreviewLength*2)
	fields := summarizeResult(&mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: long}},
	})

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	assert.Equal(t, true, enc.Fields["is_error"])
	assert.Equal(t, int64(len(long)), enc.Fields["result_bytes"])
	assert.True(t, strings.HasSuffix(enc.Fields["preview"].(string), "...[truncated]"))
}
