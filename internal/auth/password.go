package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
)

// HashParams are the argon2id parameters for new hashes.
// Verification reads the parameters encoded in each stored hash.
var HashParams = argon2id.DefaultParams

// HashPassword derives a salted argon2id hash of plaintext
func HashPassword(plaintext string) (string, error) {
	hash, err := argon2id.CreateHash(plaintext, HashParams)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether plaintext matches hash. A mismatch is
// (false, nil); only a missing or malformed hash returns an error.
func VerifyPassword(plaintext, hash string) (bool, error) {
	if hash == "" {
		return false, ErrInvalidHash
	}
	match, err := argon2id.ComparePasswordAndHash(plaintext, hash)
	if err != nil {
		if errors.Is(err, argon2id.ErrInvalidHash) || errors.Is(err, argon2id.ErrIncompatibleVersion) {
			return false, ErrInvalidHash
		}
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	return match, nil
}

// SetPassword replaces the stored hash of a user
func (s *Service) SetPassword(ctx context.Context, userID uuid.UUID, plaintext string) error {
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
