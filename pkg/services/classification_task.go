package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/models"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/services/workqueue"
)

// ClassificationTask runs one classification request on the work queue.
// The task ID is the job ID so jobs can be cancelled by ID.
type ClassificationTask struct {
	workqueue.BaseTask
	req    *models.ClassificationRequest
	runner *ClassificationRunner
}

var _ workqueue.Task = (*ClassificationTask)(nil)

func NewClassificationTask(req *models.ClassificationRequest, runner *ClassificationRunner) *ClassificationTask {
	requiresLLM := req.Provider != models.AIProviderNone && req.Provider != ""
	return &ClassificationTask{
		BaseTask: workqueue.NewBaseTask(req.JobID.String(), "classify "+req.SelectedColumn, requiresLLM),
		req:      req,
		runner:   runner,
	}
}

func (t *ClassificationTask) Execute(ctx context.Context) error {
	return t.runner.Run(ctx, t.req)
}
