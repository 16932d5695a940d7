package models

import (
	"time"

	"github.com/google/uuid"
)

// Workbook is an uploaded delimited file and its scanned metadata.
type Workbook struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storagePath"`
	Columns     []string  `json:"columns"`
	RowCount    int       `json:"rowCount"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// HasColumn reports whether the workbook header contains the column.
func (w *Workbook) HasColumn(column string) bool {
	for _, c := range w.Columns {
		if c == column {
			return true
		}
	}
	return false
}
