package handler_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fyp-go-api/internal/dto"
	"github.com/noah-isme/fyp-go-api/internal/handler"
	"github.com/noah-isme/fyp-go-api/internal/models"
	"github.com/noah-isme/fyp-go-api/internal/service"
	"github.com/noah-isme/fyp-go-api/internal/utils"
	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

type mockProjectService struct {
	registered dto.ProjectCreateRequest
	actor      service.Actor
	err        error
}

func (m *mockProjectService) Register(_ context.Context, payload dto.ProjectCreateRequest) (dto.ProjectResponse, error) {
	m.registered = payload
	if m.err != nil {
		return dto.ProjectResponse{}, m.err
	}
	return dto.ProjectResponse{ID: 1, Title: payload.Title, GroupLeaderID: payload.GroupLeaderID, Status: models.ProjectStatusPending}, nil
}

func (m *mockProjectService) Get(_ context.Context, id uint) (dto.ProjectResponse, error) {
	if m.err != nil {
		return dto.ProjectResponse{}, m.err
	}
	return dto.ProjectResponse{ID: id}, nil
}

func (m *mockProjectService) Approve(_ context.Context, actor service.Actor, id uint) (dto.ProjectResponse, error) {
	m.actor = actor
	if m.err != nil {
		return dto.ProjectResponse{}, m.err
	}
	return dto.ProjectResponse{ID: id, Status: models.ProjectStatusApproved}, nil
}

func (m *mockProjectService) Reject(_ context.Context, actor service.Actor, id uint) (dto.ProjectResponse, error) {
	m.actor = actor
	return dto.ProjectResponse{ID: id, Status: models.ProjectStatusRejected}, m.err
}

func (m *mockProjectService) AssignCommittee(_ context.Context, actor service.Actor, id uint, payload dto.CommitteeAssignRequest) (dto.ProjectResponse, error) {
	m.actor = actor
	return dto.ProjectResponse{ID: id, CommitteeIDs: payload.EvaluatorIDs}, m.err
}

func newProjectApp(svc service.ProjectService, id uint, role string) *fiber.App {
	app := fiber.New()
	handler.NewProjectHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/projects", authAs(id, role)))
	return app
}

func TestProjectCreateForcesStudentAsGroupLeader(t *testing.T) {
	svc := &mockProjectService{}
	app := newProjectApp(svc, 10, models.RoleStudent)

	body := []byte(`{"title":"Campus navigation","group_leader_id":99,"supervisor_id":20}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	require.Equal(t, uint(10), svc.registered.GroupLeaderID)
	require.Equal(t, uint(20), svc.registered.SupervisorID)

	var out struct {
		Success bool                `json:"success"`
		Data    dto.ProjectResponse `json:"data"`
	}
	decodeResponse(t, resp, &out)
	require.True(t, out.Success)
	require.Equal(t, models.ProjectStatusPending, out.Data.Status)
}

func TestProjectHandlerMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{workflow.Invalid("title", "required"), fiber.StatusBadRequest, utils.CodeValidation},
		{service.ErrProjectNotFound, fiber.StatusNotFound, utils.CodeNotFound},
		{service.ErrForbidden, fiber.StatusForbidden, utils.CodeForbidden},
		{service.ErrProjectNotPending, fiber.StatusUnprocessableEntity, utils.CodeRuleViolation},
		{fmt.Errorf("approve: %w", workflow.ErrConcurrencyConflict), fiber.StatusConflict, utils.CodeConflict},
		{fmt.Errorf("db down"), fiber.StatusInternalServerError, utils.CodeInternal},
	}

	for _, tc := range cases {
		svc := &mockProjectService{err: tc.err}
		app := newProjectApp(svc, 1, models.RoleAdmin)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/5/approve", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.err.Error())

		out := decodeEnvelope(t, resp)
		require.False(t, out.Success)
		require.NotEmpty(t, out.Message)
		require.Equal(t, tc.code, out.Code)
	}
}

func TestProjectApprovePassesActor(t *testing.T) {
	svc := &mockProjectService{}
	app := newProjectApp(svc, 1, "Admin")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/projects/5/approve", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, service.Actor{ID: 1, Role: models.RoleAdmin}, svc.actor)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/projects/abc/approve", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestProjectAssignCommittee(t *testing.T) {
	svc := &mockProjectService{}
	app := newProjectApp(svc, 2, models.RoleCoordinator)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/projects/5/committee", bytes.NewReader([]byte(`{"evaluator_ids":[30,31]}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Data dto.ProjectResponse `json:"data"`
	}
	decodeResponse(t, resp, &out)
	require.Equal(t, []uint{30, 31}, out.Data.CommitteeIDs)
}
