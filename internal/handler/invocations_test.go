package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
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

type stubRouteResolver struct {
	routes map[string]*domain.EndpointRoute
}

func (s *stubRouteResolver) GetRoute(_ context.Context, _ uuid.UUID, name string) (*domain.EndpointRoute, error) {
	route, ok := s.routes[name]
	if !ok {
		return nil, apperrors.NotFound("endpoint")
	}
	return route, nil
}

type stubScorer struct {
	response []byte
	lastBody []byte
}

func (s *stubScorer) Score(_, _ string, body []byte) ([]byte, error) {
	s.lastBody = body
	return s.response, nil
}

func newInvocationsApp(t *testing.T, resolver service.RouteResolver, scorer service.Scorer) *fiber.App {
	t.Helper()

	h := NewInvocationsHandler(service.NewInferenceService(resolver, scorer, nil), zap.NewNop())

	app := fiber.New()
	app.Use(testutil.WithWorkspace(uuid.New()))
	app.Post("/v1/endpoints/:name/invocations", h.Invoke)
	app.Get("/v1/endpoints/:name/sample-payload", h.SamplePayload)

	return app
}

func scalarBody(t *testing.T, values ...float64) []byte {
	t.Helper()

	instances := make([][]float64, 0, len(values))
	for _, v := range values {
		instances = append(instances, []float64{v})
	}
	body, err := json.Marshal(fiber.Map{"data": instances})
	require.NoError(t, err)
	return body
}

func TestInvoke(t *testing.T) {
	t.Run("forwards valid payload and returns scorer response", func(t *testing.T) {
		scorer := &stubScorer{response: []byte(`{"predictions": [0.9]}`)}
		app := newInvocationsApp(t, &stubRouteResolver{routes: map[string]*domain.EndpointRoute{
			"mnist": {
				EndpointID: uuid.New(),
				State:      domain.EndpointStateReady,
				ScoringURL: "http://scorer.internal/score",
				InputShape: []int{1},
			},
		}}, scorer)

		req := httptest.NewRequest(fiber.MethodPost, "/v1/endpoints/mnist/invocations", bytes.NewReader(scalarBody(t, 0.5)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"predictions": [0.9]}`, string(body))
		assert.NotNil(t, scorer.lastBody)
	})

	t.Run("rejects payload with wrong shape", func(t *testing.T) {
		scorer := &stubScorer{response: []byte(`{}`)}
		app := newInvocationsApp(t, &stubRouteResolver{routes: map[string]*domain.EndpointRoute{
			"mnist": {
				State:      domain.EndpointStateReady,
				ScoringURL: "http://scorer.internal/score",
				InputShape: []int{4},
			},
		}}, scorer)

		req := httptest.NewRequest(fiber.MethodPost, "/v1/endpoints/mnist/invocations", bytes.NewReader(scalarBody(t, 0.5)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Nil(t, scorer.lastBody)
	})

	t.Run("503 while endpoint is not ready", func(t *testing.T) {
		app := newInvocationsApp(t, &stubRouteResolver{routes: map[string]*domain.EndpointRoute{
			"mnist": {
				State:      domain.EndpointStateProvisioning,
				InputShape: []int{1},
			},
		}}, &stubScorer{})

		req := httptest.NewRequest(fiber.MethodPost, "/v1/endpoints/mnist/invocations", bytes.NewReader(scalarBody(t, 0.5)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("404 for unknown endpoint", func(t *testing.T) {
		app := newInvocationsApp(t, &stubRouteResolver{routes: map[string]*domain.EndpointRoute{}}, &stubScorer{})

		req := httptest.NewRequest(fiber.MethodPost, "/v1/endpoints/nope/invocations", bytes.NewReader(scalarBody(t, 0.5)))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestSamplePayload(t *testing.T) {
	app := newInvocationsApp(t, &stubRouteResolver{routes: map[string]*domain.EndpointRoute{
		"mnist": {
			State:      domain.EndpointStateReady,
			InputShape: []int{2, 2},
		},
	}}, &stubScorer{})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/v1/endpoints/mnist/sample-payload", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": [[[0,0],[0,0]]]}`, string(body))
}
