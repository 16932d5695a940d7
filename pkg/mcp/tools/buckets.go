package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// bucketSummary is a BucketNode without row indices, which can run to
// millions of entries.
type bucketSummary struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	RowCount      int              `json:"row_count"`
	ChildrenCount int              `json:"children_count"`
	Children      []*bucketSummary `json:"children,omitempty"`
}

type bucketTreeResult struct {
	AnalysisID     string               `json:"analysis_id"`
	WorkbookID     string               `json:"workbook_id"`
	SelectedColumn string               `json:"selected_column"`
	CreatedAt      time.Time            `json:"created_at"`
	Stats          models.AnalysisStats `json:"stats"`
	Buckets        []*bucketSummary     `json:"buckets"`
}

// RegisterBucketTools adds get_bucket_tree and get_bucket_rows.
func RegisterBucketTools(s *server.MCPServer, analyses services.AnalysisService) {
	s.AddTool(mcp.NewTool(
		"get_bucket_tree",
		mcp.WithDescription("Returns the bucket hierarchy of a finished analysis with row counts per bucket. "+
			"Use max_depth to limit how many levels are returned."),
		mcp.WithString("analysis_id", mcp.Required(), mcp.Description("Analysis result UUID (the job's resultId)")),
		mcp.WithNumber("max_depth", mcp.Description("Deepest level to include, 0 for roots only. Default: all levels")),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireUUID(req, "analysis_id")
		if bad != nil {
			return bad, nil
		}
		maxDepth := -1
		if v, ok := getOptionalFloat(req, "max_depth"); ok {
			maxDepth = int(v)
		}

		result, err := analyses.GetResult(ctx, id)
		if err != nil {
			return fromServiceError(err)
		}

		out := bucketTreeResult{
			AnalysisID:     result.ID.String(),
			WorkbookID:     result.WorkbookID.String(),
			SelectedColumn: result.SelectedColumn,
			CreatedAt:      result.CreatedAt,
			Stats:          result.Stats,
			Buckets:        summarize(result.RootBuckets, maxDepth),
		}
		return jsonResult(out)
	})

	s.AddTool(mcp.NewTool(
		"get_bucket_rows",
		mcp.WithDescription("Returns the rows of one bucket, including rows of its sub-buckets, in file order"),
		mcp.WithString("workbook_id", mcp.Required(), mcp.Description("Workbook UUID")),
		mcp.WithString("analysis_id", mcp.Required(), mcp.Description("Analysis result UUID")),
		mcp.WithString("bucket_id", mcp.Required(), mcp.Description("Bucket ID from get_bucket_tree")),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workbookID, bad := requireUUID(req, "workbook_id")
		if bad != nil {
			return bad, nil
		}
		analysisID, bad := requireUUID(req, "analysis_id")
		if bad != nil {
			return bad, nil
		}
		bucketID, err := req.RequireString("bucket_id")
		if err != nil || bucketID == "" {
			return NewErrorResult("invalid_parameters", "bucket_id is required"), nil
		}

		rows, err := analyses.BucketRows(ctx, workbookID, analysisID, bucketID)
		if err != nil {
			return fromServiceError(err)
		}
		return jsonResult(rows)
	})
}

// summarize copies nodes down to maxDepth levels. A negative maxDepth keeps
// every level.
func summarize(nodes []*models.BucketNode, maxDepth int) []*bucketSummary {
	out := make([]*bucketSummary, 0, len(nodes))
	for _, n := range nodes {
		s := &bucketSummary{
			ID:            n.ID,
			Name:          n.Name,
			RowCount:      n.RowCount,
			ChildrenCount: len(n.Children),
		}
		if len(n.Children) > 0 && (maxDepth < 0 || n.Depth < maxDepth) {
			s.Children = summarize(n.Children, maxDepth)
		}
		out = append(out, s)
	}
	return out
}
