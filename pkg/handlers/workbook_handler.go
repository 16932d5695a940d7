package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/services"
)

// MaxUploadBytes caps the size of an uploaded workbook.
const MaxUploadBytes = 1 << 30

// WorkbookHandler handles upload and sampling of workbooks.
type WorkbookHandler struct {
	workbooks services.WorkbookService
	logger    *zap.Logger
}

func NewWorkbookHandler(workbooks services.WorkbookService, logger *zap.Logger) *WorkbookHandler {
	return &WorkbookHandler{workbooks: workbooks, logger: logger.Named("workbook-handler")}
}

// RegisterRoutes registers the workbook routes on the given mux.
func (h *WorkbookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/workbooks/upload", h.Upload)
	mux.HandleFunc("GET /api/workbooks/{id}", h.Get)
	mux.HandleFunc("GET /api/workbooks/{id}/sample", h.Sample)
}

// Upload handles POST /api/workbooks/upload. The multipart part named
// "file" is streamed to storage without buffering the whole file.
func (h *WorkbookHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		badRequest(w, h.logger, "invalid_request", "Expected a multipart form upload")
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		badRequest(w, h.logger, "missing_file", "No file uploaded")
		return
	}
	defer part.Close()

	wb, err := h.workbooks.Upload(r.Context(), part.FileName(), part)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			if err := ErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large", "Uploaded file is too large"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		writeError(w, h.logger, err, "upload_failed", "Failed to upload workbook")
		return
	}
	writeOK(w, h.logger, http.StatusCreated, wb)
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("no file part")
			}
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// Get handles GET /api/workbooks/{id}.
func (h *WorkbookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	wb, err := h.workbooks.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "get_workbook_failed", "Failed to get workbook")
		return
	}
	writeOK(w, h.logger, http.StatusOK, wb)
}

// Sample handles GET /api/workbooks/{id}/sample?column=.
func (h *WorkbookHandler) Sample(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseWorkbookID(w, r, h.logger)
	if !ok {
		return
	}
	column := r.URL.Query().Get("column")
	if column == "" {
		badRequest(w, h.logger, "missing_column", "Query parameter column is required")
		return
	}

	res, err := h.workbooks.Sample(r.Context(), id, column)
	if err != nil {
		writeError(w, h.logger, err, "sample_failed", "Failed to sample workbook")
		return
	}
	writeOK(w, h.logger, http.StatusOK, res)
}
