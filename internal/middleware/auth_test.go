package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/service"
)

// stubKeyRepo serves a single API key by public key
type stubKeyRepo struct {
	key *domain.APIKey
}

func (r *stubKeyRepo) Create(ctx context.Context, key *domain.APIKey) error { return nil }

func (r *stubKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	if r.key != nil && r.key.ID == id {
		return r.key, nil
	}
	return nil, apperrors.NotFound("API key")
}

func (r *stubKeyRepo) GetByPublicKey(ctx context.Context, publicKey string) (*domain.APIKey, error) {
	if r.key != nil && r.key.PublicKey == publicKey {
		return r.key, nil
	}
	return nil, apperrors.NotFound("API key")
}

func (r *stubKeyRepo) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]domain.APIKey, error) {
	return nil, nil
}

func (r *stubKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID) error { return nil }

func (r *stubKeyRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func newTestAuth(t *testing.T) (*AuthMiddleware, *service.AuthService, *domain.APIKey, string, uuid.UUID) {
	t.Helper()

	workspaceID := uuid.New()
	secret := "sk-my-testsecret1234"
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)

	key := &domain.APIKey{
		ID:            uuid.New(),
		WorkspaceID:   workspaceID,
		PublicKey:     "pk-my-testpublic1234",
		SecretKeyHash: string(hash),
		Scopes:        []string{"runs:read", "runs:write"},
	}

	authService := service.NewAuthService(config.JWTConfig{
		Secret: "middleware-test-secret-32-characters",
		Expiry: time.Hour,
		Issuer: "mlyard-test",
	}, &stubKeyRepo{key: key})

	return NewAuthMiddleware(authService), authService, key, secret, workspaceID
}

func protectedApp(m *AuthMiddleware, extra ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers := append([]fiber.Handler{m.RequireAuth()}, extra...)
	app.Get("/protected", append(handlers, func(c *fiber.Ctx) error {
		workspaceID, _ := GetWorkspaceID(c)
		return c.JSON(fiber.Map{"workspaceId": workspaceID})
	})...)
	return app
}

func TestRequireAuth(t *testing.T) {
	t.Run("accepts valid API key pair", func(t *testing.T) {
		m, _, key, secret, _ := newTestAuth(t)
		app := protectedApp(m)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+key.PublicKey+":"+secret)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("accepts API key via X-API-Key header", func(t *testing.T) {
		m, _, key, secret, _ := newTestAuth(t)
		app := protectedApp(m)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("X-API-Key", key.PublicKey+":"+secret)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		m, _, key, _, _ := newTestAuth(t)
		app := protectedApp(m)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+key.PublicKey+":sk-my-wrong")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts valid workspace token", func(t *testing.T) {
		m, authService, _, _, workspaceID := newTestAuth(t)
		app := protectedApp(m)

		token, err := authService.IssueToken("user@example.com", workspaceID)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects missing credentials", func(t *testing.T) {
		m, _, _, _, _ := newTestAuth(t)
		app := protectedApp(m)

		resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRequireScope(t *testing.T) {
	t.Run("allows key with matching scope", func(t *testing.T) {
		m, _, key, secret, _ := newTestAuth(t)
		app := protectedApp(m, m.RequireScope("runs:write"))

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+key.PublicKey+":"+secret)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("forbids key without scope", func(t *testing.T) {
		m, _, key, secret, _ := newTestAuth(t)
		app := protectedApp(m, m.RequireScope("endpoints:invoke"))

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+key.PublicKey+":"+secret)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("token principals bypass scopes", func(t *testing.T) {
		m, authService, _, _, workspaceID := newTestAuth(t)
		app := protectedApp(m, m.RequireScope("endpoints:invoke"))

		token, err := authService.IssueToken("user@example.com", workspaceID)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
