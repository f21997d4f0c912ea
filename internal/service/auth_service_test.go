package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// MockAPIKeyRepository is a mock implementation of APIKeyRepository
type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByPublicKey(ctx context.Context, publicKey string) (*domain.APIKey, error) {
	args := m.Called(ctx, publicKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]domain.APIKey, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret: "test-secret-at-least-32-characters-long",
		Expiry: time.Hour,
		Issuer: "mlyard-test",
	}
}

func TestAuthService_CreateAPIKey(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("creates key with default scopes", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)

		repo.On("Create", mock.Anything, mock.MatchedBy(func(key *domain.APIKey) bool {
			return key.WorkspaceID == workspaceID &&
				strings.HasPrefix(key.PublicKey, "pk-my-") &&
				len(key.Scopes) > 0 &&
				key.SecretKeyHash != ""
		})).Return(nil)

		result, err := svc.CreateAPIKey(context.Background(), workspaceID, &domain.APIKeyInput{
			Name: "notebook",
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(result.SecretKey, "sk-my-"))
		assert.NotContains(t, result.APIKey.SecretKeyHash, result.SecretKey)
		assert.Equal(t, result.SecretKey[len(result.SecretKey)-4:], result.APIKey.SecretKeyPreview)
	})

	t.Run("rejects unknown scope", func(t *testing.T) {
		svc := NewAuthService(testJWTConfig(), new(MockAPIKeyRepository))

		_, err := svc.CreateAPIKey(context.Background(), workspaceID, &domain.APIKeyInput{
			Name:   "bad",
			Scopes: []string{"clusters:launch"},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("accepts wildcard scope", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)

		repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		result, err := svc.CreateAPIKey(context.Background(), workspaceID, &domain.APIKeyInput{
			Name:   "runs-only",
			Scopes: []string{"runs:*"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"runs:*"}, result.APIKey.Scopes)
	})
}

func TestAuthService_VerifyAPIKey(t *testing.T) {
	workspaceID := uuid.New()

	createKey := func(t *testing.T, repo *MockAPIKeyRepository, svc *AuthService) (*domain.APIKey, string) {
		t.Helper()

		var stored *domain.APIKey
		repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			stored = args.Get(1).(*domain.APIKey)
		}).Return(nil)

		result, err := svc.CreateAPIKey(context.Background(), workspaceID, &domain.APIKeyInput{Name: "test"})
		require.NoError(t, err)
		require.NotNil(t, stored)
		return stored, result.SecretKey
	}

	t.Run("accepts matching secret", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)
		stored, secret := createKey(t, repo, svc)

		repo.On("GetByPublicKey", mock.Anything, stored.PublicKey).Return(stored, nil)
		repo.On("TouchLastUsed", mock.Anything, stored.ID).Return(nil).Maybe()

		key, err := svc.VerifyAPIKey(context.Background(), stored.PublicKey, secret)
		require.NoError(t, err)
		assert.Equal(t, stored.ID, key.ID)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)
		stored, _ := createKey(t, repo, svc)

		repo.On("GetByPublicKey", mock.Anything, stored.PublicKey).Return(stored, nil)

		_, err := svc.VerifyAPIKey(context.Background(), stored.PublicKey, "sk-my-wrong")
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("rejects expired key", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)
		stored, secret := createKey(t, repo, svc)

		expired := time.Now().Add(-time.Hour)
		stored.ExpiresAt = &expired
		repo.On("GetByPublicKey", mock.Anything, stored.PublicKey).Return(stored, nil)

		_, err := svc.VerifyAPIKey(context.Background(), stored.PublicKey, secret)
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("rejects unknown public key", func(t *testing.T) {
		repo := new(MockAPIKeyRepository)
		svc := NewAuthService(testJWTConfig(), repo)

		repo.On("GetByPublicKey", mock.Anything, "pk-my-missing").Return(nil, apperrors.NotFound("API key"))

		_, err := svc.VerifyAPIKey(context.Background(), "pk-my-missing", "sk-my-anything")
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
	})
}

func TestAuthService_Tokens(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("issued token round-trips", func(t *testing.T) {
		svc := NewAuthService(testJWTConfig(), new(MockAPIKeyRepository))

		token, err := svc.IssueToken("data-scientist@example.com", workspaceID)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "data-scientist@example.com", claims.Subject)
		assert.Equal(t, workspaceID.String(), claims.WorkspaceID)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		issuer := NewAuthService(config.JWTConfig{
			Secret: "another-secret-that-is-long-enough-too",
			Expiry: time.Hour,
		}, new(MockAPIKeyRepository))
		verifier := NewAuthService(testJWTConfig(), new(MockAPIKeyRepository))

		token, err := issuer.IssueToken("intruder", workspaceID)
		require.NoError(t, err)

		_, err = verifier.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		svc := NewAuthService(testJWTConfig(), new(MockAPIKeyRepository))

		_, err := svc.ValidateToken("not.a.token")
		require.Error(t, err)
		assert.True(t, apperrors.IsUnauthorized(err))
	})
}
