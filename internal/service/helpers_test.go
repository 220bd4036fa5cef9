package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/fyp-go-api/internal/database"
	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

const (
	adminID      uint = 1
	leaderID     uint = 10
	supervisorID uint = 20
	evaluatorA   uint = 30
	evaluatorB   uint = 31
)

var (
	admin      = Actor{ID: adminID, Role: models.RoleAdmin}
	leader     = Actor{ID: leaderID, Role: models.RoleStudent}
	supervisor = Actor{ID: supervisorID, Role: models.RoleSupervisor}
	committeeA = Actor{ID: evaluatorA, Role: models.RoleCommittee}
	committeeB = Actor{ID: evaluatorB, Role: models.RoleCommittee}
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu    sync.Mutex
	items []Outbound
}

func (p *recordingPublisher) Publish(_ context.Context, items ...Outbound) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, items...)
}

func (p *recordingPublisher) ByEvent(event string) []Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Outbound
	for _, item := range p.items {
		if item.Intent.Event == event {
			out = append(out, item)
		}
	}
	return out
}

func (p *recordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = nil
}

type fakeUploader struct {
	calls   int32
	mu      sync.Mutex
	removed []string
}

func (u *fakeUploader) Remove(_ context.Context, fileID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.removed = append(u.removed, fileID)
	return nil
}

func (u *fakeUploader) Removed() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.removed...)
}

func (u *fakeUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	n := atomic.AddInt32(&u.calls, 1)
	return fmt.Sprintf("fyp/%d-%s", n, name), nil
}

type fakeStorage struct{}

func (fakeStorage) ResolveFile(_ context.Context, fileID string) (string, map[string]interface{}, error) {
	return "https://files.example.test/" + fileID, map[string]interface{}{"format": "pdf"}, nil
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func pdfFile(t *testing.T) *multipart.FileHeader {
	return fileHeader(t, "report.pdf", []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n"))
}

// workflowFixture seeds users, one approved project with a two-member
// committee and a single 20/80 document type.
type workflowFixture struct {
	db           *gorm.DB
	deps         WorkflowDeps
	clock        *fakeClock
	publisher    *recordingPublisher
	uploader     *fakeUploader
	users        repository.UserRepository
	project      models.Project
	documentType models.DocumentType
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()
	clock := newFakeClock()

	users := repository.NewUserRepository(db)
	for _, user := range []models.User{
		{ID: adminID, Name: "Admin", Email: "admin@example.test", Role: models.RoleAdmin},
		{ID: leaderID, Name: "Leader", Email: "leader@example.test", Role: models.RoleStudent},
		{ID: supervisorID, Name: "Supervisor", Email: "supervisor@example.test", Role: models.RoleSupervisor},
		{ID: evaluatorA, Name: "Evaluator A", Email: "eva@example.test", Role: models.RoleCommittee},
		{ID: evaluatorB, Name: "Evaluator B", Email: "evb@example.test", Role: models.RoleCommittee},
	} {
		user := user
		require.NoError(t, users.Create(ctx, &user))
	}

	projects := repository.NewProjectRepository(db)
	approvedAt := clock.Now().Add(-30 * 24 * time.Hour)
	project := models.Project{
		Title:         "Campus navigation",
		GroupLeaderID: leaderID,
		SupervisorID:  supervisorID,
		Status:        models.ProjectStatusApproved,
		ApprovedAt:    &approvedAt,
	}
	require.NoError(t, projects.Create(ctx, &project))
	require.NoError(t, projects.ReplaceCommittee(ctx, project.ID, []uint{evaluatorA, evaluatorB}))

	documentTypes := repository.NewDocumentTypeRepository(db)
	documentType := models.DocumentType{Name: "Proposal", WeightSupervisor: 20, WeightCommittee: 80, Active: true}
	require.NoError(t, documentTypes.Create(ctx, &documentType))

	publisher := &recordingPublisher{}
	deps := WorkflowDeps{
		Tx:            repository.NewTransactor(db),
		Projects:      projects,
		DocumentTypes: documentTypes,
		Deadlines:     repository.NewDeadlineRepository(db),
		Submissions:   repository.NewSubmissionRepository(db),
		Marks:         repository.NewMarkRepository(db),
		Results:       repository.NewFinalResultRepository(db),
		Publisher:     publisher,
		Clock:         clock,
	}.withDefaults()

	return &workflowFixture{
		db:           db,
		deps:         deps,
		clock:        clock,
		publisher:    publisher,
		uploader:     &fakeUploader{},
		users:        users,
		project:      project,
		documentType: documentType,
	}
}

func (f *workflowFixture) submissions() SubmissionService {
	return NewSubmissionService(f.deps, f.uploader, fakeStorage{}, newValidator(), zerolog.Nop())
}

func (f *workflowFixture) submit(t *testing.T) dto.SubmissionResponse {
	t.Helper()
	resp, err := f.submissions().Create(context.Background(), leader, createRequest(f), pdfFile(t))
	require.NoError(t, err)
	return resp
}

func createRequest(f *workflowFixture) dto.SubmissionCreateRequest {
	return dto.SubmissionCreateRequest{ProjectID: f.project.ID, DocumentTypeID: f.documentType.ID, Comments: "first draft"}
}

func (f *workflowFixture) addDeadline(t *testing.T, dueAt time.Time) models.Deadline {
	t.Helper()
	projectID := f.project.ID
	deadline := models.Deadline{ProjectID: &projectID, DocumentTypeID: f.documentType.ID, DueAt: dueAt}
	require.NoError(t, f.deps.Deadlines.Create(context.Background(), &deadline))
	return deadline
}

// lockSubmission drives a fresh submission into LOCKED_FOR_EVAL.
func (f *workflowFixture) lockSubmission(t *testing.T) uint {
	t.Helper()
	created := f.submit(t)
	locked, err := f.submissions().LockForEvaluation(context.Background(), supervisor, created.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusLockedForEval, locked.Status)
	return locked.ID
}
