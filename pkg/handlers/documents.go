package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services"
)

const documentNotFound = "Document not found"

// multipartOverhead is the slack allowed on top of the upload limit for form fields and boundaries.
const multipartOverhead = 1 << 20

// importOnlyFields describe an already-downloaded document and are rejected on a multipart upload.
var importOnlyFields = []string{"filename", "file_path", "file_type", "file_size", "status", "extracted_data", "metadata"}

// ImportDocumentRequest for POST /api/documents with a JSON body.
type ImportDocumentRequest struct {
	Title         string          `json:"title"`
	Filename      string          `json:"filename"`
	FilePath      string          `json:"file_path"`
	FileType      string          `json:"file_type"`
	FileSize      json.RawMessage `json:"file_size"`
	Status        string          `json:"status"`
	ExtractedData json.RawMessage `json:"extracted_data"`
	Metadata      json.RawMessage `json:"metadata"`
}

// DocumentHandler handles document HTTP requests.
type DocumentHandler struct {
	documentService services.DocumentService
	maxUploadSize   int64
	logger          *zap.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(documentService services.DocumentService, maxUploadSize int64, logger *zap.Logger) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = services.DefaultMaxUploadSize
	}
	return &DocumentHandler{
		documentService: documentService,
		maxUploadSize:   maxUploadSize,
		logger:          logger,
	}
}

// RegisterRoutes registers the document handler's routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	wrap := protected(authMiddleware, scope)
	base := "/api/documents"

	mux.HandleFunc("GET "+base, wrap(h.List))
	mux.HandleFunc("POST "+base, wrap(h.Create))
	mux.HandleFunc("GET "+base+"/{id}", wrap(h.Get))
	mux.HandleFunc("GET "+base+"/{id}/download", wrap(h.Download))
	mux.HandleFunc("POST "+base+"/{id}/process", wrap(h.Process))
	mux.HandleFunc("DELETE "+base+"/{id}", wrap(h.Delete))
}

// List handles GET /api/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := readListQuery(w, r, h.logger, "status", "file_type", "search")
	if !ok {
		return
	}

	page, err := h.documentService.List(r.Context(), models.DocumentFilters{
		Page:     parsePage(r),
		Status:   q.get("status"),
		FileType: q.get("file_type"),
		Search:   q.get("search"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to list documents")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, page, "")
}

// Create handles POST /api/documents. A multipart body uploads a file;
// a JSON body imports a document fetched elsewhere.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		h.upload(w, r)
	case "application/json":
		h.importDocument(w, r)
	default:
		ve := apperrors.NewValidationError()
		ve.Add("file", "The file field is required.")
		writeServiceError(w, h.logger, ve, documentNotFound, "Failed to upload document")
	}
}

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ve := apperrors.NewValidationError()
			ve.Add("file", "The file may not be greater than "+strconv.FormatInt(h.maxUploadSize>>10, 10)+" kilobytes.")
			writeServiceError(w, h.logger, ve, documentNotFound, "Failed to upload document")
			return
		}
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid multipart body")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", zap.Error(err))
		}
	}()

	v := apperrors.NewValidationError()
	for _, field := range importOnlyFields {
		if _, ok := r.MultipartForm.Value[field]; ok {
			v.Add(field, "The "+field+" field cannot be combined with a file upload.")
		}
	}
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, documentNotFound, "Failed to upload document")
		return
	}

	in := services.UploadInput{}
	if titles, ok := r.MultipartForm.Value["title"]; ok && len(titles) > 0 {
		in.Title = &titles[0]
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		in.Filename = header.Filename
		in.Size = header.Size
		in.Content = file
	} else if !errors.Is(err, http.ErrMissingFile) {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid multipart body")
		return
	}

	doc, err := h.documentService.Upload(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to upload document")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, doc, "Document uploaded successfully")
}

func (h *DocumentHandler) importDocument(w http.ResponseWriter, r *http.Request) {
	var req ImportDocumentRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	in := services.ImportInput{
		Title:         req.Title,
		Filename:      req.Filename,
		FilePath:      req.FilePath,
		FileType:      req.FileType,
		Status:        req.Status,
		ExtractedData: decodeObject(v, "extracted_data", req.ExtractedData),
		Metadata:      decodeObject(v, "metadata", req.Metadata),
	}
	if size := decodeInt(req.FileSize); size != nil {
		in.FileSize = int64(*size)
	}
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, documentNotFound, "Failed to import document")
		return
	}

	doc, err := h.documentService.Import(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to import document")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, doc, "Document imported successfully")
}

// Get handles GET /api/documents/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, documentNotFound, h.logger)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to load document")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, doc, "")
}

// Download handles GET /api/documents/{id}/download
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, documentNotFound, h.logger)
	if !ok {
		return
	}

	doc, body, err := h.documentService.Download(r.Context(), id)
	if errors.Is(err, services.ErrDocumentFileMissing) {
		writeError(w, h.logger, http.StatusNotFound, "file_not_found", "File not found")
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to download document")
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(doc.Filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("Document download interrupted",
			zap.String("document_id", id.String()),
			zap.Error(err))
	}
}

// Process handles POST /api/documents/{id}/process
func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, documentNotFound, h.logger)
	if !ok {
		return
	}

	result, err := h.documentService.Process(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to process document")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, result, "Document processing initiated")
}

// Delete handles DELETE /api/documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, documentNotFound, h.logger)
	if !ok {
		return
	}

	if err := h.documentService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, documentNotFound, "Failed to delete document")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, nil, "Document deleted successfully")
}
