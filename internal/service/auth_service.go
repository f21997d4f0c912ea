package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mlyard/mlyard/internal/config"
	"github.com/mlyard/mlyard/internal/domain"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/id"
)

// APIKeyRepository defines API key persistence operations
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*domain.APIKey, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]domain.APIKey, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuthService handles API keys and workspace access tokens
type AuthService struct {
	cfg        config.JWTConfig
	apiKeyRepo APIKeyRepository
}

// NewAuthService creates a new auth service
func NewAuthService(cfg config.JWTConfig, apiKeyRepo APIKeyRepository) *AuthService {
	return &AuthService{
		cfg:        cfg,
		apiKeyRepo: apiKeyRepo,
	}
}

// CreateAPIKey creates a new API key. The secret is returned exactly
// once; only its bcrypt hash is stored.
func (s *AuthService) CreateAPIKey(ctx context.Context, workspaceID uuid.UUID, input *domain.APIKeyInput) (*domain.APIKeyCreateResult, error) {
	scopes := input.Scopes
	if len(scopes) == 0 {
		scopes = domain.DefaultScopes()
	}
	for _, scope := range scopes {
		if !validScope(scope) {
			return nil, apperrors.Validation(fmt.Sprintf("unknown scope %q", scope))
		}
	}

	publicKey := id.NewAPIKeyPublic()
	secretKey := id.NewAPIKeySecret()

	hash, err := bcrypt.GenerateFromPassword([]byte(secretKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret key: %w", err)
	}

	now := time.Now()
	key := &domain.APIKey{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Name:             input.Name,
		PublicKey:        publicKey,
		SecretKeyHash:    string(hash),
		SecretKeyPreview: secretKey[len(secretKey)-4:],
		Scopes:           scopes,
		ExpiresAt:        input.ExpiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.apiKeyRepo.Create(ctx, key); err != nil {
		return nil, err
	}

	return &domain.APIKeyCreateResult{
		APIKey:    key,
		SecretKey: secretKey,
	}, nil
}

// VerifyAPIKey validates a public/secret key pair and returns the key
func (s *AuthService) VerifyAPIKey(ctx context.Context, publicKey, secretKey string) (*domain.APIKey, error) {
	key, err := s.apiKeyRepo.GetByPublicKey(ctx, publicKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("invalid API key")
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	if key.IsExpired() {
		return nil, apperrors.Unauthorized("API key expired")
	}

	if bcrypt.CompareHashAndPassword([]byte(key.SecretKeyHash), []byte(secretKey)) != nil {
		return nil, apperrors.Unauthorized("invalid API key")
	}

	// Update last used (async, don't fail on error)
	go func() {
		_ = s.apiKeyRepo.TouchLastUsed(context.Background(), key.ID)
	}()

	return key, nil
}

// ListAPIKeys lists API keys in a workspace
func (s *AuthService) ListAPIKeys(ctx context.Context, workspaceID uuid.UUID) ([]domain.APIKey, error) {
	return s.apiKeyRepo.ListByWorkspace(ctx, workspaceID)
}

// RevokeAPIKey deletes an API key
func (s *AuthService) RevokeAPIKey(ctx context.Context, workspaceID, keyID uuid.UUID) error {
	key, err := s.apiKeyRepo.GetByID(ctx, keyID)
	if err != nil {
		return err
	}
	if key.WorkspaceID != workspaceID {
		return apperrors.NotFound("API key")
	}

	return s.apiKeyRepo.Delete(ctx, keyID)
}

// IssueToken generates a JWT access token scoped to a workspace
func (s *AuthService) IssueToken(subject string, workspaceID uuid.UUID) (string, error) {
	claims := &domain.JWTClaims{
		Subject:     subject,
		WorkspaceID: workspaceID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.cfg.Expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

// ValidateToken validates a JWT access token
func (s *AuthService) ValidateToken(tokenString string) (*domain.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*domain.JWTClaims)
	if !ok || !token.Valid {
		return nil, apperrors.Unauthorized("invalid token")
	}

	return claims, nil
}

func validScope(scope string) bool {
	for _, s := range domain.AllScopes() {
		if s == scope {
			return true
		}
	}
	// Wildcards like "runs:*" are granted, not listed
	if len(scope) > 2 && scope[len(scope)-2:] == ":*" {
		prefix := scope[:len(scope)-2]
		for _, s := range domain.AllScopes() {
			if len(s) > len(prefix) && s[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}
