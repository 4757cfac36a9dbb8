package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/events"
	"github.com/sentinelai/sentinel-engine/pkg/mlservice"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

type documentFixture struct {
	docs       *mockDocumentRepo
	knowledge  *mockKnowledgeRepo
	store      *mockStore
	ml         *mockProcessor
	dispatcher *recordingDispatcher
	scopes     *mockScopes
	publisher  *mockPublisher
	svc        *documentService
}

func newDocumentFixture(docs ...*models.Document) *documentFixture {
	f := &documentFixture{
		docs:       newMockDocumentRepo(docs...),
		knowledge:  newMockKnowledgeRepo(),
		store:      newMockStore(),
		ml:         &mockProcessor{},
		dispatcher: &recordingDispatcher{},
		scopes:     &mockScopes{},
		publisher:  &mockPublisher{},
	}
	svc := NewDocumentService(f.docs, f.knowledge, f.store, f.ml, f.dispatcher, f.scopes, f.publisher, 0, zap.NewNop()).(*documentService)
	svc.now = fixedClock
	f.svc = svc
	return f
}

func uploadedDocument(status string) *models.Document {
	return &models.Document{
		ID:       uuid.New(),
		Title:    "ransomware-report.pdf",
		Filename: "ransomware-report.pdf",
		FilePath: "documents/1700000000_ransomware-report.pdf",
		FileType: models.FileTypePDF,
		FileSize: 2048,
		Status:   status,
	}
}

func driveDocument(extracted models.JSONMap) *models.Document {
	doc := uploadedDocument(models.DocumentStatusProcessed)
	doc.FilePath = "downloaded/ransomware-report.pdf"
	doc.ExtractedData = extracted
	doc.Metadata = models.JSONMap{models.MetaKeySource: models.SourceGoogleDrive}
	return doc
}

var sampleExtraction = models.JSONMap{
	"attack_techniques": []any{
		map[string]any{"technique": "T1566 Phishing", "context": "initial access via email", "confidence": 0.9},
	},
	"defense_strategies": []any{"Enforce MFA"},
	"keywords":           []any{"phishing", "mfa"},
}

func TestDocumentService_Process_Success(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)
	f.ml.extracted = sampleExtraction
	f.ml.learnResult = models.JSONMap{"learned": float64(2)}

	result, err := f.svc.Process(context.Background(), doc.ID)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Processed)
	assert.Equal(t, sampleExtraction, result.ExtractedData)
	assert.Equal(t, models.JSONMap{"learned": float64(2)}, result.Learning)

	require.Len(t, f.ml.processCalls, 1)
	assert.Equal(t, mlservice.ProcessRequest{
		DocumentID: doc.ID.String(),
		FilePath:   doc.FilePath,
		FileType:   models.FileTypePDF,
	}, f.ml.processCalls[0])
	require.Len(t, f.ml.learnCalls, 1)
	assert.Equal(t, []models.JSONMap{sampleExtraction}, f.ml.learnCalls[0])

	stored := f.docs.docs[doc.ID]
	assert.Equal(t, models.DocumentStatusProcessed, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, fixedNow, *stored.ProcessedAt)
	assert.Equal(t, []string{models.DocumentStatusProcessing, models.DocumentStatusProcessed}, f.docs.statusHistory)

	assert.Len(t, f.knowledge.entries[doc.ID], 2)
	assert.Equal(t, []string{events.DocumentReady}, f.publisher.events)
}

func TestDocumentService_Process_FailureRestoresStatus(t *testing.T) {
	for _, prior := range []string{models.DocumentStatusUploaded, models.DocumentStatusFailed} {
		t.Run(prior, func(t *testing.T) {
			doc := uploadedDocument(prior)
			f := newDocumentFixture(doc)
			f.ml.processErr = errors.New("processing service timed out")

			result, err := f.svc.Process(context.Background(), doc.ID)

			assert.NoError(t, err)
			assert.Nil(t, result)
			assert.Equal(t, []string{models.DocumentStatusProcessing, prior}, f.docs.statusHistory)
			assert.Equal(t, prior, f.docs.docs[doc.ID].Status)
			assert.Empty(t, f.ml.learnCalls)
			assert.Empty(t, f.knowledge.entries)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestDocumentService_Process_FailureAfterCancelStillRestores(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)
	f.ml.processErr = context.DeadlineExceeded

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.svc.Process(ctx, doc.ID)

	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, models.DocumentStatusUploaded, f.docs.docs[doc.ID].Status)
}

func TestDocumentService_Process_SaveFailureRestoresStatus(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)
	f.ml.extracted = sampleExtraction
	f.docs.updateErr = errors.New("connection reset")

	result, err := f.svc.Process(context.Background(), doc.ID)

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []string{models.DocumentStatusProcessing, models.DocumentStatusUploaded}, f.docs.statusHistory)
	assert.Equal(t, models.DocumentStatusUploaded, f.docs.docs[doc.ID].Status)
	assert.Empty(t, f.knowledge.entries)
	assert.Empty(t, f.ml.learnCalls)
	assert.Empty(t, f.publisher.events)
}

func TestDocumentService_Process_AlreadyProcessed(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusProcessed)
	f := newDocumentFixture(doc)

	result, err := f.svc.Process(context.Background(), doc.ID)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
	assert.Empty(t, f.ml.processCalls)
	assert.Empty(t, f.docs.statusHistory)
}

func TestDocumentService_Process_ExternalSkipsProcessing(t *testing.T) {
	doc := driveDocument(sampleExtraction)
	f := newDocumentFixture(doc)
	f.ml.learnResult = models.JSONMap{"status": "ok"}

	result, err := f.svc.Process(context.Background(), doc.ID)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Processed)
	assert.Equal(t, sampleExtraction, result.ExtractedData)
	assert.Equal(t, models.JSONMap{"status": "ok"}, result.Learning)
	assert.Empty(t, f.ml.processCalls, "processing service is never called")
	require.Len(t, f.ml.learnCalls, 1)
	assert.Equal(t, []models.JSONMap{sampleExtraction}, f.ml.learnCalls[0])
	assert.Empty(t, f.docs.statusHistory)
}

func TestDocumentService_Process_ExternalFlagWithoutSource(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	doc.Metadata = models.JSONMap{models.MetaKeyProcessedExternally: true}
	f := newDocumentFixture(doc)

	result, err := f.svc.Process(context.Background(), doc.ID)

	assert.NoError(t, err)
	assert.Nil(t, result, "nothing to learn without extracted data")
	assert.Empty(t, f.ml.processCalls)
	assert.Empty(t, f.ml.learnCalls)
}

func TestDocumentService_Process_LearningFailureIsNotFatal(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)
	f.ml.extracted = sampleExtraction
	f.ml.learnErr = errors.New("learning endpoint returned 502")

	result, err := f.svc.Process(context.Background(), doc.ID)

	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Nil(t, result.Learning)
	assert.Equal(t, models.DocumentStatusProcessed, f.docs.docs[doc.ID].Status)
}

func TestDocumentService_Process_NotFound(t *testing.T) {
	f := newDocumentFixture()

	_, err := f.svc.Process(context.Background(), uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDocumentService_Upload(t *testing.T) {
	f := newDocumentFixture()
	f.ml.extracted = sampleExtraction
	ctx := withCaller(context.Background(), "analyst-7")

	doc, err := f.svc.Upload(ctx, UploadInput{
		Filename: "Q3 Threat Report.PDF",
		Title:    strPtr("  Q3 report "),
		Size:     11,
		Content:  strings.NewReader("%PDF-1.7..."),
	})

	require.NoError(t, err)
	assert.Equal(t, "Q3 report", doc.Title)
	assert.Equal(t, "Q3 Threat Report.PDF", doc.Filename)
	assert.Equal(t, models.FileTypePDF, doc.FileType)
	assert.Equal(t, int64(11), doc.FileSize)
	assert.Equal(t, models.DocumentStatusUploaded, doc.Status)
	assert.True(t, strings.HasPrefix(doc.FilePath, "documents/"))
	require.NotNil(t, doc.UploadedBy)
	assert.Equal(t, "analyst-7", *doc.UploadedBy)

	require.Equal(t, []string{"document-process"}, f.dispatcher.names)
	assert.Empty(t, f.ml.processCalls, "processing runs in the background")

	require.NoError(t, f.dispatcher.tasks[0](context.Background()))
	assert.Equal(t, 1, f.scopes.acquired)
	assert.Equal(t, 1, f.scopes.released)
	assert.Len(t, f.ml.processCalls, 1)
	assert.Equal(t, models.DocumentStatusProcessed, f.docs.docs[doc.ID].Status)
}

func TestDocumentService_Upload_ScopeFailure(t *testing.T) {
	f := newDocumentFixture()
	f.scopes.err = errDatabase

	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "notes.txt", Size: 5, Content: strings.NewReader("hello")})
	require.NoError(t, err)

	err = f.dispatcher.tasks[0](context.Background())
	assert.ErrorIs(t, err, errDatabase)
	assert.Empty(t, f.ml.processCalls)
}

func TestDocumentService_Upload_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   UploadInput
	}{
		{"missing file", UploadInput{}},
		{"unsupported type", UploadInput{Filename: "payload.exe", Size: 3, Content: strings.NewReader("MZ!")}},
		{"declared size too large", UploadInput{Filename: "big.pdf", Size: DefaultMaxUploadSize + 1, Content: strings.NewReader("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDocumentFixture()

			_, err := f.svc.Upload(context.Background(), tt.in)

			ve, ok := apperrors.AsValidation(err)
			require.True(t, ok)
			assert.Contains(t, ve.Fields, "file")
			assert.Empty(t, f.store.files)
			assert.Empty(t, f.docs.docs)
			assert.Empty(t, f.dispatcher.tasks)
		})
	}
}

func TestDocumentService_Upload_ActualSizeOverLimit(t *testing.T) {
	f := newDocumentFixture()
	f.svc.maxUploadSize = 8

	_, err := f.svc.Upload(context.Background(), UploadInput{
		Filename: "notes.txt",
		Content:  strings.NewReader("this body is longer than eight bytes"),
	})

	_, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Empty(t, f.store.files)
	assert.Len(t, f.store.deleted, 1)
	assert.Empty(t, f.docs.docs)
}

func TestDocumentService_Upload_CreateFailureRemovesFile(t *testing.T) {
	f := newDocumentFixture()
	f.docs.createErr = errDatabase

	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "notes.txt", Size: 5, Content: strings.NewReader("hello")})

	assert.ErrorIs(t, err, errDatabase)
	assert.Empty(t, f.store.files)
	assert.Empty(t, f.dispatcher.tasks)
}

func TestDocumentService_Import_Defaults(t *testing.T) {
	f := newDocumentFixture()

	doc, err := f.svc.Import(context.Background(), ImportInput{Filename: "playbook.docx"})

	require.NoError(t, err)
	assert.Equal(t, "playbook.docx", doc.Title)
	assert.Equal(t, "downloaded/playbook.docx", doc.FilePath)
	assert.Equal(t, models.FileTypeDOCX, doc.FileType)
	assert.Equal(t, models.DocumentStatusProcessed, doc.Status)
	require.NotNil(t, doc.ProcessedAt)
	assert.Equal(t, fixedNow, *doc.ProcessedAt)
	assert.Equal(t, models.SourceGoogleDrive, doc.Metadata.String(models.MetaKeySource))
	assert.True(t, doc.Metadata.Bool(models.MetaKeyProcessedExternally))
	assert.True(t, doc.ProcessedExternally())
	assert.Empty(t, f.dispatcher.tasks, "nothing to learn")
}

func TestDocumentService_Import_KeepsCallerMetadataAndQueuesLearning(t *testing.T) {
	f := newDocumentFixture()
	f.ml.learnResult = models.JSONMap{"status": "ok"}

	doc, err := f.svc.Import(context.Background(), ImportInput{
		Title:         "IR playbook",
		Filename:      "playbook.txt",
		FilePath:      "/mnt/drive/playbook.txt",
		Status:        models.DocumentStatusUploaded,
		ExtractedData: sampleExtraction,
		Metadata:      models.JSONMap{models.MetaKeySource: "sharepoint", "drive_id": "abc"},
	})

	require.NoError(t, err)
	assert.Equal(t, "/mnt/drive/playbook.txt", doc.FilePath)
	assert.Equal(t, models.DocumentStatusUploaded, doc.Status)
	assert.Nil(t, doc.ProcessedAt)
	assert.Equal(t, "sharepoint", doc.Metadata.String(models.MetaKeySource))
	assert.Equal(t, "abc", doc.Metadata.String("drive_id"))
	assert.True(t, doc.Metadata.Bool(models.MetaKeyProcessedExternally))

	require.Equal(t, []string{"document-learn"}, f.dispatcher.names)
	require.NoError(t, f.dispatcher.tasks[0](context.Background()))
	require.Len(t, f.ml.learnCalls, 1)
	assert.Equal(t, []models.JSONMap{sampleExtraction}, f.ml.learnCalls[0])
	assert.Empty(t, f.ml.processCalls)
}

func TestDocumentService_Import_Validation(t *testing.T) {
	f := newDocumentFixture()

	_, err := f.svc.Import(context.Background(), ImportInput{Filename: "archive.zip", FileSize: -1, Status: "archived"})

	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "file_type")
	assert.Contains(t, ve.Fields, "file_size")
	assert.Contains(t, ve.Fields, "status")
	assert.Empty(t, f.docs.docs)
}

func TestDocumentService_Get_AttachesKnowledge(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)

	got, err := f.svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.KnowledgeEntries)
	assert.Empty(t, got.KnowledgeEntries)

	f.knowledge.entries[doc.ID] = DeriveKnowledgeEntries(doc.ID, sampleExtraction)
	got, err = f.svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, got.KnowledgeEntries, 2)
}

func TestDocumentService_Download(t *testing.T) {
	doc := uploadedDocument(models.DocumentStatusUploaded)
	f := newDocumentFixture(doc)

	_, _, err := f.svc.Download(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrDocumentFileMissing)

	f.store.files[doc.FilePath] = []byte("report body")
	got, body, err := f.svc.Download(context.Background(), doc.ID)
	require.NoError(t, err)
	defer body.Close()
	content, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "report body", string(content))
	assert.Equal(t, doc.Filename, got.Filename)

	_, _, err = f.svc.Download(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDocumentService_Delete(t *testing.T) {
	uploaded := uploadedDocument(models.DocumentStatusUploaded)
	imported := driveDocument(nil)
	f := newDocumentFixture(uploaded, imported)
	f.store.files[uploaded.FilePath] = []byte("x")

	require.NoError(t, f.svc.Delete(context.Background(), uploaded.ID))
	require.NoError(t, f.svc.Delete(context.Background(), imported.ID))

	assert.ElementsMatch(t, []uuid.UUID{uploaded.ID, imported.ID}, f.docs.deleted)
	assert.Equal(t, []string{uploaded.FilePath}, f.store.deleted, "imported files are not touched")

	assert.ErrorIs(t, f.svc.Delete(context.Background(), uuid.New()), apperrors.ErrNotFound)
}
