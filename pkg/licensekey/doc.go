// Package licensekey generates and checks license keys.
//
// A key is 15 random bytes followed by a 5-byte truncated HMAC-SHA256 of
// those bytes, base32-encoded and grouped for readability:
//
//	KG-ABCD-EFGH-IJKL-MNOP-QRST-UVWX-YZ23-4567
//
// The checksum lets clients and the verify endpoint reject mistyped or
// forged keys without a store lookup. The HMAC key is derived from an
// application secret with HKDF-SHA256, so the same secret must be configured
// wherever keys are validated.
package licensekey
