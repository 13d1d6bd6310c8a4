package licensekey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// Prefix starts every key.
	Prefix = "KG-"

	// MinSecretSize is the shortest accepted application secret.
	MinSecretSize = 32

	randomSize   = 15
	checksumSize = 5
	groupSize    = 4

	hkdfInfo = "keygate-license-key-v1"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator issues and validates keys for one application secret.
// It is safe for concurrent use.
type Generator struct {
	macKey []byte
	random io.Reader
}

// New derives the checksum key from secret.
func New(secret []byte) (*Generator, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrSecretTooShort
	}

	macKey := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), macKey); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return &Generator{macKey: macKey, random: rand.Reader}, nil
}

// NewRandom creates a generator with a throwaway secret. Keys it issues can
// only be validated by the same instance.
func NewRandom() *Generator {
	secret := make([]byte, MinSecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		panic(errors.Join(ErrRandomSource, err))
	}
	g, err := New(secret)
	if err != nil {
		panic(err)
	}
	return g
}

// Generate returns a new key.
func (g *Generator) Generate() (string, error) {
	raw := make([]byte, randomSize+checksumSize)
	if _, err := io.ReadFull(g.random, raw[:randomSize]); err != nil {
		return "", errors.Join(ErrRandomSource, err)
	}
	copy(raw[randomSize:], g.checksum(raw[:randomSize]))
	return format(encoding.EncodeToString(raw)), nil
}

// Validate reports whether key is well formed and carries a checksum made
// with this generator's secret. Case, surrounding spaces and dashes are ignored.
func (g *Generator) Validate(key string) bool {
	raw, err := encoding.DecodeString(compact(key))
	if err != nil || len(raw) != randomSize+checksumSize {
		return false
	}
	return subtle.ConstantTimeCompare(raw[randomSize:], g.checksum(raw[:randomSize])) == 1
}

// Normalize returns key in canonical form, or "" if it cannot be decoded.
func (g *Generator) Normalize(key string) string {
	return Normalize(key)
}

// Normalize returns key in canonical form, or "" if it cannot be decoded.
func Normalize(key string) string {
	body := compact(key)
	raw, err := encoding.DecodeString(body)
	if err != nil || len(raw) != randomSize+checksumSize {
		return ""
	}
	return format(body)
}

func (g *Generator) checksum(data []byte) []byte {
	mac := hmac.New(sha256.New, g.macKey)
	mac.Write(data)
	return mac.Sum(nil)[:checksumSize]
}

func compact(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	key = strings.TrimPrefix(key, Prefix)
	return strings.ReplaceAll(key, "-", "")
}

func format(body string) string {
	var b strings.Builder
	b.Grow(len(Prefix) + len(body) + len(body)/groupSize)
	b.WriteString(Prefix)
	for i := 0; i < len(body); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(body[i:min(i+groupSize, len(body))])
	}
	return b.String()
}
