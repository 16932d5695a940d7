package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Job Status
// ============================================================================

// JobStatus represents the lifecycle state of a classification job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ValidJobStatuses contains all valid job status values.
var ValidJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsValidJobStatus checks if the given status is valid.
func IsValidJobStatus(s JobStatus) bool {
	for _, v := range ValidJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true once no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ============================================================================
// Job Records
// ============================================================================

// ClassificationJob is the externally visible state of one classification run.
type ClassificationJob struct {
	ID             uuid.UUID  `json:"id"`
	WorkbookID     uuid.UUID  `json:"workbookId"`
	SelectedColumn string     `json:"selectedColumn"`
	Provider       AIProvider `json:"provider"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"`
	Message        string     `json:"message"`
	ResultID       *uuid.UUID `json:"resultId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// JobUpdate is a partial update applied to a job record.
// Nil fields are left unchanged.
type JobUpdate struct {
	Status   *JobStatus
	Progress *int
	Message  *string
	ResultID *uuid.UUID
}

// ClassificationRequest is the queue payload for one classification job.
type ClassificationRequest struct {
	JobID             uuid.UUID      `json:"jobId"`
	WorkbookID        uuid.UUID      `json:"workbookId"`
	SelectedColumn    string         `json:"selectedColumn"`
	ConfirmedTaxonomy []TaxonomyNode `json:"confirmedTaxonomy"`
	UniqueValues      map[string]int `json:"uniqueValues"`
	Provider          AIProvider     `json:"provider"`
}

// ProgressEvent is published for every progress change of a job.
type ProgressEvent struct {
	JobID     uuid.UUID `json:"jobId"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}
