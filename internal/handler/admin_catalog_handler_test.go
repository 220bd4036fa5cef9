package handler_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/handler"
	"github.com/noah-isme/fyp-go-api/internal/middleware"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/repository"
	"github.com/noah-isme/fyp-go-api/internal/service"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

type mockCatalogService struct {
	activeOnly bool
	filter     repository.DeadlineFilter
	deadline   dto.DeadlineCreateRequest
	err        error
}

func (m *mockCatalogService) CreateDocumentType(_ context.Context, payload dto.DocumentTypeCreateRequest) (dto.DocumentTypeResponse, error) {
	if m.err != nil {
		return dto.DocumentTypeResponse{}, m.err
	}
	return dto.DocumentTypeResponse{ID: 1, Name: payload.Name, WeightSupervisor: payload.WeightSupervisor, WeightCommittee: payload.WeightCommittee, Active: true}, nil
}

func (m *mockCatalogService) ListDocumentTypes(_ context.Context, activeOnly bool) ([]dto.DocumentTypeResponse, error) {
	m.activeOnly = activeOnly
	return []dto.DocumentTypeResponse{}, m.err
}

func (m *mockCatalogService) CreateBatch(_ context.Context, payload dto.BatchCreateRequest) (dto.BatchResponse, error) {
	return dto.BatchResponse{ID: 1, Name: payload.Name, ApprovedFrom: payload.ApprovedFrom, ApprovedTo: payload.ApprovedTo}, m.err
}

func (m *mockCatalogService) ListBatches(context.Context) ([]dto.BatchResponse, error) {
	return []dto.BatchResponse{}, m.err
}

func (m *mockCatalogService) CreateDeadline(_ context.Context, payload dto.DeadlineCreateRequest) (dto.DeadlineResponse, error) {
	m.deadline = payload
	if m.err != nil {
		return dto.DeadlineResponse{}, m.err
	}
	return dto.DeadlineResponse{ID: 1, BatchID: payload.BatchID, DocumentTypeID: payload.DocumentTypeID, DueAt: payload.DueAt}, nil
}

func (m *mockCatalogService) ListDeadlines(_ context.Context, filter repository.DeadlineFilter) ([]dto.DeadlineResponse, error) {
	m.filter = filter
	return []dto.DeadlineResponse{}, m.err
}

type stubSweeper struct {
	report service.SweepReport
	ran    bool
	calls  int
}

func (s *stubSweeper) RunOnce(context.Context) (service.SweepReport, bool, error) {
	s.calls++
	return s.report, s.ran, nil
}

func newCatalogApp(svc service.CatalogService, sweeper handler.SweepRunner, role string) *fiber.App {
	app := fiber.New()
	admin := app.Group("/api/v1/admin", authAs(1, role), middleware.RequireRole(models.RoleAdmin, models.RoleCoordinator))
	handler.NewAdminCatalogHandler(svc, sweeper, zerolog.Nop()).Register(admin)
	return app
}

func TestCatalogRoutesRequireStaff(t *testing.T) {
	app := newCatalogApp(&mockCatalogService{}, &stubSweeper{}, models.RoleSupervisor)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/document-types", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCatalogCreateAndFilters(t *testing.T) {
	svc := &mockCatalogService{}
	app := newCatalogApp(svc, &stubSweeper{}, models.RoleCoordinator)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/document-types", bytes.NewReader([]byte(`{"name":"Proposal","weight_supervisor":20,"weight_committee":80}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/document-types?active=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, svc.activeOnly)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/deadlines", bytes.NewReader([]byte(`{"batch_id":4,"document_type_id":1,"due_at":"2026-05-01T17:00:00Z"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.NotNil(t, svc.deadline.BatchID)
	require.Equal(t, uint(4), *svc.deadline.BatchID)
	require.Equal(t, 2026, svc.deadline.DueAt.Year())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/deadlines?document_type_id=1&pending=true", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, repository.DeadlineFilter{DocumentTypeID: 1, PendingOnly: true}, svc.filter)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/deadlines?document_type_id=x", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCatalogValidationErrorsAreBadRequests(t *testing.T) {
	svc := &mockCatalogService{err: workflow.Invalid("weights", "must sum to 100")}
	app := newCatalogApp(svc, &stubSweeper{}, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/document-types", bytes.NewReader([]byte(`{"name":"Proposal","weight_supervisor":40,"weight_committee":40}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestManualSweep(t *testing.T) {
	sweeper := &stubSweeper{ran: true, report: service.SweepReport{Deadlines: 1, Processed: 2, Locked: 1, Missed: 1}}
	app := newCatalogApp(&mockCatalogService{}, sweeper, models.RoleAdmin)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/admin/deadlines/sweep", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Data service.SweepReport `json:"data"`
	}
	decodeResponse(t, resp, &out)
	require.Equal(t, sweeper.report, out.Data)

	sweeper.ran = false
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/admin/deadlines/sweep", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, 2, sweeper.calls)
}
