package licensekey

import "errors"

var (
	ErrSecretTooShort      = errors.New("license key secret must be at least 32 bytes")
	ErrKeyDerivationFailed = errors.New("license key derivation failed")
	ErrRandomSource        = errors.New("failed to read random bytes")
)
