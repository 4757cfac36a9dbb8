package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/database"
	"github.com/sentinelai/sentinel-engine/pkg/events"
	"github.com/sentinelai/sentinel-engine/pkg/mlservice"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
	"github.com/sentinelai/sentinel-engine/pkg/services/workqueue"
	"github.com/sentinelai/sentinel-engine/pkg/storage"
)

// ErrDocumentFileMissing is returned by Download when the row exists but its file does not.
var ErrDocumentFileMissing = errors.New("document file not found")

// DefaultMaxUploadSize caps uploads when no limit is configured (10 MiB).
const DefaultMaxUploadSize int64 = 10 << 20

// importedPathPrefix is where externally downloaded documents live when no path is given.
const importedPathPrefix = "downloaded/"

// UploadInput is a file posted by a user.
type UploadInput struct {
	Filename string
	Title    *string
	Size     int64 // declared size; the stored size is what was actually read
	Content  io.Reader
}

// ImportInput describes a document fetched and usually already processed elsewhere.
type ImportInput struct {
	Title         string
	Filename      string
	FilePath      string
	FileType      string
	FileSize      int64
	Status        string
	ExtractedData models.JSONMap
	Metadata      models.JSONMap
}

// DocumentService manages documents and the learning pipeline behind them.
type DocumentService interface {
	// Upload stores the file, records the document and queues Process in the background.
	Upload(ctx context.Context, in UploadInput) (*models.Document, error)

	// Import records an externally fetched document. Unless told otherwise it is
	// tagged as processed externally; extracted data it carries is queued for learning.
	Import(ctx context.Context, in ImportInput) (*models.Document, error)

	// Process runs extraction and learning for a document.
	//
	// Externally processed documents skip extraction and only forward existing
	// extracted data to learning. A failed or timed-out extraction restores the
	// previous status and returns a nil result without an error. A document that
	// is already processed yields apperrors.ErrAlreadyProcessed.
	Process(ctx context.Context, id uuid.UUID) (*models.DocumentLearningResult, error)

	// Get returns a document with its knowledge entries.
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)

	List(ctx context.Context, filters models.DocumentFilters) (*models.PageResult[*models.Document], error)

	// Download opens the stored file. The caller closes the reader.
	Download(ctx context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error)

	// Delete removes the document, its knowledge entries and its stored file.
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentService struct {
	docRepo       repositories.DocumentRepository
	knowledgeRepo repositories.KnowledgeEntryRepository
	store         storage.Store
	ml            mlservice.Processor
	dispatcher    workqueue.Dispatcher
	scopes        database.ScopeProvider
	publisher     events.Publisher
	maxUploadSize int64
	logger        *zap.Logger
	now           func() time.Time
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	knowledgeRepo repositories.KnowledgeEntryRepository,
	store storage.Store,
	ml mlservice.Processor,
	dispatcher workqueue.Dispatcher,
	scopes database.ScopeProvider,
	publisher events.Publisher,
	maxUploadSize int64,
	logger *zap.Logger,
) DocumentService {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &documentService{
		docRepo:       docRepo,
		knowledgeRepo: knowledgeRepo,
		store:         store,
		ml:            ml,
		dispatcher:    dispatcher,
		scopes:        scopes,
		publisher:     publisher,
		maxUploadSize: maxUploadSize,
		logger:        logger.Named("document-service"),
		now:           time.Now,
	}
}

var _ DocumentService = (*documentService)(nil)

// fileExtension returns the lower-cased extension of name without the dot.
func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	v := apperrors.NewValidationError()
	if in.Content == nil || strings.TrimSpace(in.Filename) == "" {
		v.Add("file", "The file field is required.")
	} else {
		if !models.ValidFileType(fileExtension(in.Filename)) {
			v.Add("file", "The file must be a file of type: pdf, docx, txt, doc.")
		}
		if in.Size > s.maxUploadSize {
			v.Add("file", fmt.Sprintf("The file may not be greater than %d kilobytes.", s.maxUploadSize>>10))
		}
	}
	if in.Title != nil {
		checkMaxLength(v, "title", *in.Title, maxStringLength)
	}
	if v.HasErrors() {
		return nil, v
	}

	filename := filepath.Base(strings.ReplaceAll(in.Filename, `\`, "/"))
	path, size, err := s.store.Save(filename, io.LimitReader(in.Content, s.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if size > s.maxUploadSize {
		s.removeStored(path)
		v.Add("file", fmt.Sprintf("The file may not be greater than %d kilobytes.", s.maxUploadSize>>10))
		return nil, v
	}

	doc := &models.Document{
		Title:      filename,
		Filename:   filename,
		FilePath:   path,
		FileType:   fileExtension(filename),
		FileSize:   size,
		Status:     models.DocumentStatusUploaded,
		UploadedBy: auth.UserRefFromContext(ctx),
	}
	if title := normalizeOptional(in.Title); title != nil {
		doc.Title = *title
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		s.removeStored(path)
		s.logger.Error("Failed to create document", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("file_type", doc.FileType),
		zap.Int64("size", doc.FileSize))

	s.queueProcess(doc.ID)
	return doc, nil
}

func (s *documentService) Import(ctx context.Context, in ImportInput) (*models.Document, error) {
	v := apperrors.NewValidationError()
	requireText(v, "filename", in.Filename)
	checkMaxLength(v, "filename", in.Filename, maxStringLength)
	checkMaxLength(v, "title", in.Title, maxStringLength)

	fileType := strings.ToLower(strings.TrimSpace(in.FileType))
	if fileType == "" {
		fileType = fileExtension(in.Filename)
	}
	if !models.ValidFileType(fileType) {
		v.Add("file_type", "The selected file_type is invalid.")
	}
	if in.FileSize < 0 {
		v.Add("file_size", "The file_size must be at least 0.")
	}
	if in.Status != "" && !validDocumentStatus(in.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	if v.HasErrors() {
		return nil, v
	}

	metadata := in.Metadata.Clone()
	if _, ok := metadata[models.MetaKeySource]; !ok {
		metadata[models.MetaKeySource] = models.SourceGoogleDrive
	}
	if _, ok := metadata[models.MetaKeyProcessedExternally]; !ok {
		metadata[models.MetaKeyProcessedExternally] = true
	}

	filename := strings.TrimSpace(in.Filename)
	doc := &models.Document{
		Title:         strings.TrimSpace(in.Title),
		Filename:      filename,
		FilePath:      strings.TrimSpace(in.FilePath),
		FileType:      fileType,
		FileSize:      in.FileSize,
		Status:        in.Status,
		ExtractedData: in.ExtractedData,
		Metadata:      metadata,
		UploadedBy:    auth.UserRefFromContext(ctx),
	}
	if doc.Title == "" {
		doc.Title = filename
	}
	if doc.FilePath == "" {
		doc.FilePath = importedPathPrefix + filename
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusProcessed
	}
	if doc.Status == models.DocumentStatusProcessed {
		processedAt := s.now().UTC()
		doc.ProcessedAt = &processedAt
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		s.logger.Error("Failed to import document", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Document imported",
		zap.String("document_id", doc.ID.String()),
		zap.String("source", doc.Metadata.String(models.MetaKeySource)))

	if len(doc.ExtractedData) > 0 {
		extracted := doc.ExtractedData.Clone()
		docID := doc.ID
		s.dispatcher.Submit("document-learn", func(taskCtx context.Context) error {
			_, err := s.learn(taskCtx, docID, extracted)
			return err
		})
	}
	return doc, nil
}

func validDocumentStatus(status string) bool {
	switch status {
	case models.DocumentStatusUploaded, models.DocumentStatusProcessing,
		models.DocumentStatusProcessed, models.DocumentStatusFailed:
		return true
	}
	return false
}

// queueProcess runs Process for id in the background on its own connection.
func (s *documentService) queueProcess(id uuid.UUID) {
	s.dispatcher.Submit("document-process", func(taskCtx context.Context) error {
		scopedCtx, release, err := s.scopes.WithScope(taskCtx)
		if err != nil {
			return fmt.Errorf("failed to acquire scope for document %s: %w", id, err)
		}
		defer release()

		_, err = s.Process(scopedCtx, id)
		return err
	})
}

func (s *documentService) Process(ctx context.Context, id uuid.UUID) (*models.DocumentLearningResult, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if doc.ProcessedExternally() {
		if len(doc.ExtractedData) == 0 {
			s.logger.Debug("Externally processed document has no extracted data; nothing to learn",
				zap.String("document_id", id.String()))
			return nil, nil
		}
		learning, _ := s.learn(ctx, id, doc.ExtractedData)
		return &models.DocumentLearningResult{
			DocumentID:    id,
			Processed:     false,
			ExtractedData: doc.ExtractedData,
			Learning:      learning,
		}, nil
	}

	if doc.Status == models.DocumentStatusProcessed {
		return nil, apperrors.ErrAlreadyProcessed
	}

	priorStatus := doc.Status
	if err := s.docRepo.UpdateStatus(ctx, id, models.DocumentStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to mark document processing: %w", err)
	}

	extracted, err := s.ml.ProcessDocument(ctx, mlservice.ProcessRequest{
		DocumentID: id.String(),
		FilePath:   doc.FilePath,
		FileType:   doc.FileType,
	})
	if err != nil {
		s.logger.Error("Document processing failed",
			zap.String("document_id", id.String()),
			zap.Error(err))
		s.restoreStatus(ctx, id, priorStatus)
		return nil, nil
	}

	processedAt := s.now().UTC()
	doc.ExtractedData = extracted
	doc.Status = models.DocumentStatusProcessed
	doc.ProcessedAt = &processedAt
	if err := s.docRepo.Update(ctx, doc); err != nil {
		s.logger.Error("Failed to save extracted data",
			zap.String("document_id", id.String()),
			zap.Error(err))
		s.restoreStatus(ctx, id, priorStatus)
		return nil, err
	}

	s.storeKnowledge(ctx, doc)

	if err := s.publisher.Publish(ctx, events.DocumentReady, doc); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event", events.DocumentReady),
			zap.Error(err))
	}

	learning, _ := s.learn(ctx, id, extracted)
	return &models.DocumentLearningResult{
		DocumentID:    id,
		Processed:     true,
		ExtractedData: extracted,
		Learning:      learning,
	}, nil
}

// restoreStatus puts a document back to the status it had before processing started.
// The caller's context may be the one that expired, so cancellation is ignored.
func (s *documentService) restoreStatus(ctx context.Context, id uuid.UUID, status string) {
	if err := s.docRepo.UpdateStatus(context.WithoutCancel(ctx), id, status); err != nil {
		s.logger.Error("Failed to restore document status",
			zap.String("document_id", id.String()),
			zap.String("status", status),
			zap.Error(err))
	}
}

// storeKnowledge replaces the document's knowledge entries. Failures are logged only.
func (s *documentService) storeKnowledge(ctx context.Context, doc *models.Document) {
	entries := DeriveKnowledgeEntries(doc.ID, doc.ExtractedData)
	if len(entries) == 0 {
		return
	}
	if err := s.knowledgeRepo.DeleteByDocument(ctx, doc.ID); err != nil {
		s.logger.Warn("Failed to clear knowledge entries",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err))
		return
	}
	if err := s.knowledgeRepo.CreateBatch(ctx, entries); err != nil {
		s.logger.Warn("Failed to store knowledge entries",
			zap.String("document_id", doc.ID.String()),
			zap.Int("entries", len(entries)),
			zap.Error(err))
		return
	}
	s.logger.Debug("Stored knowledge entries",
		zap.String("document_id", doc.ID.String()),
		zap.Int("entries", len(entries)))
}

// learn forwards extracted data to the learning service. Failures are logged
// and returned for the background task counters; callers on the request path ignore them.
func (s *documentService) learn(ctx context.Context, id uuid.UUID, extracted models.JSONMap) (models.JSONMap, error) {
	result, err := s.ml.Learn(ctx, []models.JSONMap{extracted})
	if err != nil {
		s.logger.Warn("Learning forward failed",
			zap.String("document_id", id.String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.knowledgeRepo.ListByDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}
	doc.KnowledgeEntries = nonNil(entries)
	return doc, nil
}

func (s *documentService) List(ctx context.Context, filters models.DocumentFilters) (*models.PageResult[*models.Document], error) {
	docs, total, err := s.docRepo.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list documents", zap.Error(err))
		return nil, err
	}
	return models.NewPageResult(docs, total, filters.Page), nil
}

func (s *documentService) Download(ctx context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.store.Open(doc.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return doc, nil, ErrDocumentFileMissing
		}
		return doc, nil, err
	}
	return doc, f, nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeStored(doc.FilePath)
	s.logger.Info("Document deleted", zap.String("document_id", id.String()))
	return nil
}

// removeStored deletes a stored file, logging failures.
// Imported documents point outside the store and are left alone.
func (s *documentService) removeStored(path string) {
	if !strings.HasPrefix(path, storage.DocumentsDir+"/") {
		return
	}
	if err := s.store.Delete(path); err != nil {
		s.logger.Warn("Failed to delete stored file", zap.String("path", path), zap.Error(err))
	}
}
