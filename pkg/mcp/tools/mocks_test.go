package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

type mockJobService struct {
	GetFunc            func(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
	ListByWorkbookFunc func(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error)
	CancelFunc         func(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error)
}

var _ services.JobService = (*mockJobService)(nil)

func (m *mockJobService) Get(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockJobService) ListByWorkbook(ctx context.Context, workbookID uuid.UUID) ([]*models.ClassificationJob, error) {
	return m.ListByWorkbookFunc(ctx, workbookID)
}

func (m *mockJobService) Cancel(ctx context.Context, id uuid.UUID) (*models.ClassificationJob, error) {
	return m.CancelFunc(ctx, id)
}

type mockAnalysisService struct {
	GetResultFunc  func(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error)
	BucketRowsFunc func(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*services.BucketRows, error)
}

var _ services.AnalysisService = (*mockAnalysisService)(nil)

func (m *mockAnalysisService) Propose(ctx context.Context, in services.ProposeInput) (*models.TaxonomyProposal, error) {
	panic("not used by tools")
}

func (m *mockAnalysisService) Finalize(ctx context.Context, in services.FinalizeInput) (*models.ClassificationJob, error) {
	panic("not used by tools")
}

func (m *mockAnalysisService) GetResult(ctx context.Context, id uuid.UUID) (*models.AnalysisResult, error) {
	return m.GetResultFunc(ctx, id)
}

func (m *mockAnalysisService) BucketRows(ctx context.Context, workbookID, analysisID uuid.UUID, bucketID string) (*services.BucketRows, error) {
	return m.BucketRowsFunc(ctx, workbookID, analysisID, bucketID)
}

type toolReply struct {
	Text    string
	IsError bool
	// RPCError is set when the handler returned a Go error.
	RPCError string
}

// callTool sends a tools/call request through the server and unpacks the
// first text content.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolReply {
	t.Helper()
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), req))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	if resp.Error != nil {
		return toolReply{RPCError: resp.Error.Message}
	}
	require.NotEmpty(t, resp.Result.Content)
	return toolReply{Text: resp.Result.Content[0].Text, IsError: resp.Result.IsError}
}

func errorCode(t *testing.T, r toolReply) string {
	t.Helper()
	require.True(t, r.IsError, "expected an error result, got %s", r.Text)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(r.Text), &body))
	return body.Code
}

func newTestServer() *server.MCPServer {
	return server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
}
