package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"pix_checkout_echo/internal/checkout"
)

// DefaultHashCost keeps a single hash in the low hundreds of milliseconds.
const DefaultHashCost = 12

// BcryptHasher hashes account secrets with a fixed bcrypt cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted one-way hash of secret. The plaintext is never
// logged or kept.
func (h *BcryptHasher) Hash(secret string) (checkout.HashedSecret, error) {
	if secret == "" {
		return "", checkout.NewError(checkout.KindValidation, "hash secret", errors.New("secret must not be empty"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		// bcrypt rejects secrets longer than 72 bytes; anything else is an
		// entropy failure.
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", checkout.NewError(checkout.KindValidation, "hash secret", err)
		}
		return "", checkout.NewError(checkout.KindInternal, "hash secret", err)
	}
	return checkout.HashedSecret(hash), nil
}

// Verify reports whether secret matches hashed.
func (h *BcryptHasher) Verify(secret string, hashed checkout.HashedSecret) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}
