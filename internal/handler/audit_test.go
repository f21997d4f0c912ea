package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/service"
	"github.com/mlyard/mlyard/internal/testutil"
)

type stubAuditRepo struct {
	entries map[uuid.UUID]*domain.AuditLog
}

func (s *stubAuditRepo) Create(_ context.Context, input *domain.AuditLogInput) (*domain.AuditLog, error) {
	return &domain.AuditLog{ID: uuid.New(), WorkspaceID: input.WorkspaceID}, nil
}

func (s *stubAuditRepo) Get(_ context.Context, workspaceID, logID uuid.UUID) (*domain.AuditLog, error) {
	entry, ok := s.entries[logID]
	if !ok || entry.WorkspaceID != workspaceID {
		return nil, apperrors.NotFound("audit log")
	}
	return entry, nil
}

func (s *stubAuditRepo) List(_ context.Context, _ *domain.AuditLogFilter, _, _ int) (*domain.AuditLogList, error) {
	return &domain.AuditLogList{}, nil
}

func newAuditApp(t *testing.T, workspaceID uuid.UUID, repo service.AuditRepository) *fiber.App {
	t.Helper()

	h := NewAuditHandler(service.NewAuditService(repo), zap.NewNop())

	app := fiber.New()
	app.Use(testutil.WithWorkspace(workspaceID))
	app.Get("/v1/audit-logs/:logId", h.Get)

	return app
}

func TestAuditGet(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("returns entry", func(t *testing.T) {
		logID := uuid.New()
		app := newAuditApp(t, workspaceID, &stubAuditRepo{entries: map[uuid.UUID]*domain.AuditLog{
			logID: {
				ID:          logID,
				WorkspaceID: workspaceID,
				Action:      domain.AuditActionExperimentCreated,
			},
		}})

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/audit-logs/"+logID.String(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var entry domain.AuditLog
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
		assert.Equal(t, logID, entry.ID)
	})

	t.Run("404 for unknown log ID", func(t *testing.T) {
		app := newAuditApp(t, workspaceID, &stubAuditRepo{entries: map[uuid.UUID]*domain.AuditLog{}})

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/audit-logs/"+uuid.NewString(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("404 for entry in another workspace", func(t *testing.T) {
		logID := uuid.New()
		app := newAuditApp(t, workspaceID, &stubAuditRepo{entries: map[uuid.UUID]*domain.AuditLog{
			logID: {
				ID:          logID,
				WorkspaceID: uuid.New(),
			},
		}})

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/audit-logs/"+logID.String(), nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}
