package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/logging"
)

const maxLoggedArgLength = 200

// MCPRequestLogger logs JSON-RPC calls to the MCP endpoint with the tool
// name, sanitized arguments and whether the response carried an error.
// A nil logger disables logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Warn("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call rpcCall
			_ = json.Unmarshal(body, &call)

			rec := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", call.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if call.Params.Name != "" {
				fields = append(fields,
					zap.String("tool", call.Params.Name),
					zap.Any("arguments", SanitizeArguments(call.Params.Arguments)))
			}

			var reply rpcReply
			if err := json.Unmarshal(rec.body.Bytes(), &reply); err == nil && reply.Error != nil {
				logger.Info("MCP call failed", append(fields,
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", logging.SanitizeMessage(reply.Error.Message)))...)
				return
			}
			logger.Debug("MCP call", fields...)
		})
	}
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcReply struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

var sensitiveArgKeys = []string{"password", "secret", "token", "key", "credential"}

// SanitizeArguments redacts sensitive keys, scrubs credentials from string
// values and truncates long strings.
func SanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		lk := strings.ToLower(k)
		redact := false
		for _, s := range sensitiveArgKeys {
			if strings.Contains(lk, s) {
				redact = true
				break
			}
		}
		if redact {
			out[k] = logging.RedactedText
			continue
		}
		if s, ok := v.(string); ok {
			s = logging.SanitizeMessage(s)
			if len(s) > maxLoggedArgLength {
				s = s[:maxLoggedArgLength] + "..."
			}
			out[k] = s
			continue
		}
		out[k] = v
	}
	return out
}
