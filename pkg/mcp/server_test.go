package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

type stubJobs struct {
	services.JobService
	job *models.ClassificationJob
}

func (s *stubJobs) Get(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return s.job, nil
}

func listTools(t *testing.T, s *Server) []string {
	t.Helper()
	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	names := make([]string, 0, len(resp.Result.Tools))
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestNewBucketerServer_RegistersTools(t *testing.T) {
	s := NewBucketerServer("1.0.0", Deps{Jobs: &stubJobs{}}, zap.NewNop())

	names := listTools(t, s)
	assert.ElementsMatch(t, []string{"health", "get_job_status", "list_jobs", "cancel_job"}, names)
}

func TestNewBucketerServer_HealthOnly(t *testing.T) {
	s := NewBucketerServer("1.0.0", Deps{}, zap.NewNop())
	assert.Equal(t, []string{"health"}, listTools(t, s))
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestServer_AuditsToolCalls(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	jobID := uuid.New()
	s := NewBucketerServer("1.0.0", Deps{
		Jobs: &stubJobs{job: &models.ClassificationJob{ID: jobID, Status: models.JobStatusQueued}},
	}, zap.New(core))

	req := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"get_job_status","arguments":{"job_id":"` + jobID.String() + `"}}}`
	s.MCP().HandleMessage(context.Background(), []byte(req))

	entries := logs.FilterMessage("Tool call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "get_job_status", fields["tool"])
	assert.Equal(t, false, fields["is_error"])
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())
	s.RegisterTool(mcplib.NewTool("echo"), func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		return mcplib.NewToolResultText("echo"), nil
	})
	assert.Equal(t, []string{"echo"}, listTools(t, s))
}
