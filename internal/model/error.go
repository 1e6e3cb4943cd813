package model

import (
	"errors"
	"fmt"
)

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var (
	// ErrDecryptionFailed covers both a wrong password and a corrupted or
	// tampered record. The two are not distinguished.
	ErrDecryptionFailed = errors.New("could not decrypt key with given password")

	// ErrImportFailed is matched by every ImportError.
	ErrImportFailed = errors.New("import failed")

	ErrDuplicateAccount      = errors.New("account already exists")
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountLocked         = errors.New("account is locked")
	ErrSigningFailed         = errors.New("failed to sign transaction")
	ErrPasswordPersistence   = errors.New("failed to persist account password")
	ErrProtectionUnavailable = errors.New("secret storage protection unavailable")

	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrMalformedRecord   = errors.New("malformed keystore record")
	ErrUnsupportedCipher = errors.New("unsupported cipher")
	ErrUnsupportedKDF    = errors.New("unsupported key derivation function")
	ErrShuttingDown      = errors.New("keystore is shutting down")
)

// ImportError wraps the reason an import was rejected
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed: %v", e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// Is makes every ImportError match ErrImportFailed
func (e *ImportError) Is(target error) bool {
	return target == ErrImportFailed
}

// ErrorCode maps an error to the stable code reported by the API
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateAccount):
		return "DUPLICATE_ACCOUNT"
	case errors.Is(err, ErrDecryptionFailed):
		return "DECRYPTION_FAILED"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrSigningFailed):
		return "SIGNING_FAILED"
	case errors.Is(err, ErrPasswordPersistence):
		return "PASSWORD_PERSISTENCE_FAILED"
	case errors.Is(err, ErrProtectionUnavailable):
		return "PROTECTION_UNAVAILABLE"
	case errors.Is(err, ErrImportFailed):
		return "IMPORT_FAILED"
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidPrivateKey):
		return "INVALID_INPUT"
	case errors.Is(err, ErrShuttingDown):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
