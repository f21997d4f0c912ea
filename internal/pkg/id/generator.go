package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
)

// RunIDLength is the byte length of a run ID (32 hex chars = 16 bytes)
const RunIDLength = 16

var (
	randReader = rand.Reader

	// runIDPool reuses buffers for run ID generation (16 bytes)
	runIDPool = sync.Pool{
		New: func() any {
			b := make([]byte, RunIDLength)
			return &b
		},
	}
)

// NewRunID generates a new run ID (32 hex characters). Run IDs are the
// handle clients hold on to across the run lifecycle.
func NewRunID() string {
	bufPtr := runIDPool.Get().(*[]byte)
	defer runIDPool.Put(bufPtr)
	buf := *bufPtr

	if _, err := randReader.Read(buf); err != nil {
		// Fallback to time-based ID if random fails
		return fmt.Sprintf("%016x%016x", time.Now().UnixNano(), time.Now().UnixNano())
	}

	return hex.EncodeToString(buf)
}

// ValidateRunID validates a run ID format
func ValidateRunID(id string) error {
	if len(id) != 32 {
		return apperrors.Validation("invalid run ID: expected 32 hex characters")
	}
	if _, err := hex.DecodeString(id); err != nil {
		return apperrors.Validation("invalid run ID: expected 32 hex characters")
	}
	return nil
}

// NewUUID generates a new UUID v4
func NewUUID() string {
	return uuid.New().String()
}

// ValidateUUID validates a UUID format
func ValidateUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ParseUUID parses and validates a UUID string
func ParseUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}

// ParseUUIDOrNil parses a UUID string, returning uuid.Nil on error.
// This is a safe alternative for user input that doesn't require error handling.
func ParseUUIDOrNil(id string) uuid.UUID {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return u
}

// NewAPIKeyPublic generates a new public API key
func NewAPIKeyPublic() string {
	return "pk-my-" + generateRandomString(24)
}

// NewAPIKeySecret generates a new secret API key
func NewAPIKeySecret() string {
	return "sk-my-" + generateRandomString(32)
}

// generateRandomString generates a random alphanumeric string
func generateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, length)
	if _, err := randReader.Read(buf); err != nil {
		// Fallback using time
		for i := range buf {
			buf[i] = charset[time.Now().UnixNano()%int64(len(charset))]
		}
		return string(buf)
	}

	for i := range buf {
		buf[i] = charset[int(buf[i])%len(charset)]
	}
	return string(buf)
}
