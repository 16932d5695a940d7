package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisStats summarises one completed classification run.
type AnalysisStats struct {
	UniqueValues int `json:"uniqueValues"`
	EmptyCount   int `json:"emptyCount"`
	TotalRows    int `json:"totalRows"`
}

// AnalysisResult is the immutable output of a completed run.
type AnalysisResult struct {
	ID             uuid.UUID     `json:"id"`
	WorkbookID     uuid.UUID     `json:"workbookId"`
	SelectedColumn string        `json:"selectedColumn"`
	CreatedAt      time.Time     `json:"createdAt"`
	RootBuckets    []*BucketNode `json:"rootBuckets"`
	Stats          AnalysisStats `json:"stats"`
}

// TaxonomyProposal is returned by the analyze step before the user confirms a taxonomy.
type TaxonomyProposal struct {
	SelectedColumn string         `json:"selectedColumn"`
	Provider       AIProvider     `json:"provider"`
	Proposal       []TaxonomyNode `json:"proposal"`
	Stats          AnalysisStats  `json:"stats"`
	UniqueValues   map[string]int `json:"uniqueValues"`
	// Result is set when the provider is none and the flat bucketing ran
	// synchronously.
	Result *AnalysisResult `json:"result,omitempty"`
}
