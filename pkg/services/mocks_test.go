package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/mail"
	"github.com/sentinelai/sentinel-engine/pkg/mlservice"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services/workqueue"
	"github.com/sentinelai/sentinel-engine/pkg/storage"
)

var errDatabase = errors.New("database unavailable")

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func intPtr(i int) *int               { return &i }
func strPtr(s string) *string         { return &s }
func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

// withCaller returns ctx authenticated as userID.
func withCaller(ctx context.Context, userID string) context.Context {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Email:            userID + "@example.com",
	}
	return auth.WithClaims(ctx, claims, "test-token")
}

// mockThreatRepo implements repositories.ThreatRepository in memory.
type mockThreatRepo struct {
	threats   map[uuid.UUID]*models.Threat
	createErr error
	updateErr error
	getErr    error
	created   int
	updated   []*models.Threat
	stats     *models.ThreatStatistics
	statsNow  time.Time
}

func newMockThreatRepo(threats ...*models.Threat) *mockThreatRepo {
	m := &mockThreatRepo{threats: make(map[uuid.UUID]*models.Threat)}
	for _, t := range threats {
		m.threats[t.ID] = t
	}
	return m
}

func (m *mockThreatRepo) Create(_ context.Context, threat *models.Threat) error {
	if m.createErr != nil {
		return m.createErr
	}
	if threat.ID == uuid.Nil {
		threat.ID = uuid.New()
	}
	m.created++
	m.threats[threat.ID] = threat
	return nil
}

func (m *mockThreatRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Threat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.threats[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockThreatRepo) List(_ context.Context, filters models.ThreatFilters) ([]*models.Threat, int, error) {
	var out []*models.Threat
	for _, t := range m.threats {
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *mockThreatRepo) Update(_ context.Context, threat *models.Threat) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.threats[threat.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *threat
	m.threats[threat.ID] = &cp
	m.updated = append(m.updated, &cp)
	return nil
}

func (m *mockThreatRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.threats[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.threats, id)
	return nil
}

func (m *mockThreatRepo) Statistics(_ context.Context, now time.Time) (*models.ThreatStatistics, error) {
	m.statsNow = now
	if m.stats == nil {
		return &models.ThreatStatistics{Total: len(m.threats)}, nil
	}
	return m.stats, nil
}

// mockThreatActionRepo implements repositories.ThreatActionRepository in memory.
// failOnCreate makes the Nth Create call (1-based) fail.
type mockThreatActionRepo struct {
	actions      map[uuid.UUID]*models.ThreatAction
	order        []uuid.UUID
	createCalls  int
	failOnCreate int
	createErr    error
	listErr      error
}

func newMockThreatActionRepo() *mockThreatActionRepo {
	return &mockThreatActionRepo{actions: make(map[uuid.UUID]*models.ThreatAction)}
}

func (m *mockThreatActionRepo) Create(_ context.Context, action *models.ThreatAction) error {
	m.createCalls++
	if m.failOnCreate > 0 && m.createCalls == m.failOnCreate {
		return m.createErr
	}
	if m.failOnCreate == 0 && m.createErr != nil {
		return m.createErr
	}
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	m.actions[action.ID] = action
	m.order = append(m.order, action.ID)
	return nil
}

func (m *mockThreatActionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ThreatAction, error) {
	a, ok := m.actions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockThreatActionRepo) List(_ context.Context, filters models.ThreatActionFilters) ([]*models.ThreatAction, int, error) {
	var out []*models.ThreatAction
	for _, id := range m.order {
		a := m.actions[id]
		if filters.ThreatID != nil && a.ThreatID != *filters.ThreatID {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockThreatActionRepo) ListByThreat(_ context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.ThreatAction
	for _, id := range m.order {
		if a := m.actions[id]; a.ThreatID == threatID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockThreatActionRepo) Update(_ context.Context, action *models.ThreatAction) error {
	if _, ok := m.actions[action.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *action
	m.actions[action.ID] = &cp
	return nil
}

func (m *mockThreatActionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.actions[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.actions, id)
	return nil
}

func (m *mockThreatActionRepo) byThreat(threatID uuid.UUID) []*models.ThreatAction {
	out, _ := m.ListByThreat(context.Background(), threatID)
	return out
}

// mockIncidentRepo implements repositories.IncidentRepository in memory.
type mockIncidentRepo struct {
	incidents map[uuid.UUID]*models.Incident
	responses map[uuid.UUID][]*models.IncidentResponse
	createErr error
}

func newMockIncidentRepo() *mockIncidentRepo {
	return &mockIncidentRepo{
		incidents: make(map[uuid.UUID]*models.Incident),
		responses: make(map[uuid.UUID][]*models.IncidentResponse),
	}
}

func (m *mockIncidentRepo) Create(_ context.Context, incident *models.Incident) error {
	if m.createErr != nil {
		return m.createErr
	}
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	m.incidents[incident.ID] = incident
	return nil
}

func (m *mockIncidentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Incident, error) {
	i, ok := m.incidents[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockIncidentRepo) List(_ context.Context, _ models.IncidentFilters) ([]*models.Incident, int, error) {
	var out []*models.Incident
	for _, i := range m.incidents {
		out = append(out, i)
	}
	return out, len(out), nil
}

func (m *mockIncidentRepo) ListByThreat(_ context.Context, threatID uuid.UUID) ([]*models.Incident, error) {
	var out []*models.Incident
	for _, i := range m.incidents {
		if i.ThreatID == threatID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *mockIncidentRepo) Update(_ context.Context, incident *models.Incident) error {
	if _, ok := m.incidents[incident.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *incident
	m.incidents[incident.ID] = &cp
	return nil
}

func (m *mockIncidentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.incidents[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.incidents, id)
	return nil
}

func (m *mockIncidentRepo) CreateResponse(_ context.Context, response *models.IncidentResponse) error {
	if _, ok := m.incidents[response.IncidentID]; !ok {
		return apperrors.ErrNotFound
	}
	if response.ID == uuid.Nil {
		response.ID = uuid.New()
	}
	m.responses[response.IncidentID] = append(m.responses[response.IncidentID], response)
	return nil
}

func (m *mockIncidentRepo) ListResponses(_ context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error) {
	return m.responses[incidentID], nil
}

// mockDocumentRepo implements repositories.DocumentRepository in memory
// and records every status it was moved through.
type mockDocumentRepo struct {
	docs          map[uuid.UUID]*models.Document
	statusHistory []string
	createErr     error
	updateErr     error
	deleted       []uuid.UUID
}

func newMockDocumentRepo(docs ...*models.Document) *mockDocumentRepo {
	m := &mockDocumentRepo{docs: make(map[uuid.UUID]*models.Document)}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *mockDocumentRepo) Create(_ context.Context, doc *models.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *mockDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentRepo) List(_ context.Context, _ models.DocumentFilters) ([]*models.Document, int, error) {
	var out []*models.Document
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *mockDocumentRepo) Update(_ context.Context, doc *models.Document) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.docs[doc.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.statusHistory = append(m.statusHistory, doc.Status)
	return nil
}

func (m *mockDocumentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	d, ok := m.docs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	d.Status = status
	m.statusHistory = append(m.statusHistory, status)
	return nil
}

func (m *mockDocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.docs[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// mockKnowledgeRepo implements repositories.KnowledgeEntryRepository in memory.
type mockKnowledgeRepo struct {
	entries   map[uuid.UUID][]*models.KnowledgeEntry
	createErr error
}

func newMockKnowledgeRepo() *mockKnowledgeRepo {
	return &mockKnowledgeRepo{entries: make(map[uuid.UUID][]*models.KnowledgeEntry)}
}

func (m *mockKnowledgeRepo) CreateBatch(_ context.Context, entries []*models.KnowledgeEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, e := range entries {
		m.entries[e.DocumentID] = append(m.entries[e.DocumentID], e)
	}
	return nil
}

func (m *mockKnowledgeRepo) ListByDocument(_ context.Context, documentID uuid.UUID) ([]*models.KnowledgeEntry, error) {
	return m.entries[documentID], nil
}

func (m *mockKnowledgeRepo) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	delete(m.entries, documentID)
	return nil
}

// mockSender implements mail.Sender.
type mockSender struct {
	mu      sync.Mutex
	sent    []*mail.Message
	sendErr error
}

func (m *mockSender) Send(_ context.Context, msg *mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// mockPublisher implements events.Publisher.
type mockPublisher struct {
	events     []string
	payloads   []any
	publishErr error
}

func (m *mockPublisher) Publish(_ context.Context, event string, data any) error {
	m.events = append(m.events, event)
	m.payloads = append(m.payloads, data)
	return m.publishErr
}

// mockProcessor implements mlservice.Processor.
type mockProcessor struct {
	extracted    models.JSONMap
	processErr   error
	learnResult  models.JSONMap
	learnErr     error
	processCalls []mlservice.ProcessRequest
	learnCalls   [][]models.JSONMap
}

func (m *mockProcessor) ProcessDocument(_ context.Context, req mlservice.ProcessRequest) (models.JSONMap, error) {
	m.processCalls = append(m.processCalls, req)
	if m.processErr != nil {
		return nil, m.processErr
	}
	return m.extracted, nil
}

func (m *mockProcessor) Learn(_ context.Context, documents []models.JSONMap) (models.JSONMap, error) {
	m.learnCalls = append(m.learnCalls, documents)
	if m.learnErr != nil {
		return nil, m.learnErr
	}
	return m.learnResult, nil
}

// mockStore implements storage.Store in memory.
type mockStore struct {
	files   map[string][]byte
	saveErr error
	deleted []string
}

func newMockStore() *mockStore {
	return &mockStore{files: make(map[string][]byte)}
}

func (m *mockStore) Save(name string, r io.Reader) (string, int64, error) {
	if m.saveErr != nil {
		return "", 0, m.saveErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	path := storage.DocumentsDir + "/1700000000_" + storage.SanitizeName(name)
	m.files[path] = b
	return path, int64(len(b)), nil
}

func (m *mockStore) Open(path string) (io.ReadCloser, error) {
	b, ok := m.files[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *mockStore) Delete(path string) error {
	delete(m.files, path)
	m.deleted = append(m.deleted, path)
	return nil
}

// mockScopes implements database.ScopeProvider without a database.
type mockScopes struct {
	acquired int
	released int
	err      error
}

func (m *mockScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	m.acquired++
	return ctx, func() { m.released++ }, nil
}

// recordingDispatcher queues tasks so tests can run them explicitly.
type recordingDispatcher struct {
	names []string
	tasks []workqueue.TaskFunc
}

func (d *recordingDispatcher) Submit(name string, fn workqueue.TaskFunc) {
	d.names = append(d.names, name)
	d.tasks = append(d.tasks, fn)
}
