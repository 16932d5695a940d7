package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
)

const maxPreviewLength = 200

// AuditLogger records every tool call with its duration and outcome.
type AuditLogger struct {
	logger *zap.Logger

	// call start times keyed by JSON-RPC request ID
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go hooks that feed the audit log.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := a.baseFields(id, req)
	fields = append(fields, summarizeResult(result)...)

	if result != nil && result.IsError {
		a.logger.Info("Tool call returned error result", fields...)
		return
	}
	a.logger.Info("Tool call", fields...)
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	fields := append(a.baseFields(id, req), zap.String("error", logging.SanitizeError(err)))
	a.logger.Error("Tool call failed", fields...)
}

func (a *AuditLogger) baseFields(id any, req *mcplib.CallToolRequest) []zap.Field {
	start := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}
	return []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Any("params", sanitizeParams(req.Params.Arguments)),
		zap.Duration("duration", time.Since(start)),
	}
}

var sensitiveParamFragments = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// sanitizeParams hashes sensitive values so calls can still be correlated,
// and truncates long strings.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(key string, value any) any {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveParamFragments {
		if strings.Contains(lower, frag) {
			return hashSensitiveValue(value)
		}
	}
	switch v := value.(type) {
	case string:
		return logging.SanitizeMessage(v)
	case map[string]any:
		return sanitizeParams(v)
	}
	return value
}

// hashSensitiveValue returns the first 8 bytes of the SHA-256 of value.
func hashSensitiveValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	sum := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

func summarizeResult(result *mcplib.CallToolResult) []zap.Field {
	if result == nil {
		return nil
	}
	fields := []zap.Field{zap.Bool("is_error", result.IsError)}
	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		text := tc.Text
		fields = append(fields, zap.Int("result_bytes", len(text)))
		if len(text) > maxPreviewLength {
			text = text[:maxPreviewLength] + "...[truncated]"
		}
		fields = append(fields, zap.String("preview", text))
		break
	}
	return fields
}
