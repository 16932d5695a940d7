package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

type jobListResult struct {
	WorkbookID string                      `json:"workbook_id"`
	Count      int                         `json:"count"`
	Jobs       []*models.ClassificationJob `json:"jobs"`
}

// RegisterJobTools adds get_job_status, list_jobs and cancel_job.
func RegisterJobTools(s *server.MCPServer, jobs services.JobService) {
	s.AddTool(mcp.NewTool(
		"get_job_status",
		mcp.WithDescription("Returns the status, progress and message of a classification job. "+
			"A completed job carries the resultId of its analysis."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireUUID(req, "job_id")
		if bad != nil {
			return bad, nil
		}
		job, err := jobs.Get(ctx, id)
		if err != nil {
			return fromServiceError(err)
		}
		return jsonResult(job)
	})

	s.AddTool(mcp.NewTool(
		"list_jobs",
		mcp.WithDescription("Lists classification jobs for a workbook, newest first"),
		mcp.WithString("workbook_id", mcp.Required(), mcp.Description("Workbook UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireUUID(req, "workbook_id")
		if bad != nil {
			return bad, nil
		}
		list, err := jobs.ListByWorkbook(ctx, id)
		if err != nil {
			return fromServiceError(err)
		}
		if list == nil {
			list = []*models.ClassificationJob{}
		}
		return jsonResult(jobListResult{WorkbookID: id.String(), Count: len(list), Jobs: list})
	})

	s.AddTool(mcp.NewTool(
		"cancel_job",
		mcp.WithDescription("Cancels a queued or running classification job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job UUID")),
		mcp.WithDestructiveHintAnnotation(true),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, bad := requireUUID(req, "job_id")
		if bad != nil {
			return bad, nil
		}
		job, err := jobs.Cancel(ctx, id)
		if err != nil {
			return fromServiceError(err)
		}
		return jsonResult(job)
	})
}
