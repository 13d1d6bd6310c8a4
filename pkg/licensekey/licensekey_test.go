package licensekey_test

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensekey"
)

var keyFormat = regexp.MustCompile(`^KG-([A-Z2-7]{4}-){7}[A-Z2-7]{4}$`)

func secret(b byte) []byte {
	return bytes.Repeat([]byte{b}, licensekey.MinSecretSize)
}

func TestNew_SecretTooShort(t *testing.T) {
	t.Parallel()

	_, err := licensekey.New([]byte("short"))
	assert.ErrorIs(t, err, licensekey.ErrSecretTooShort)
}

func TestGenerator_GenerateAndValidate(t *testing.T) {
	t.Parallel()

	g, err := licensekey.New(secret('a'))
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for range 100 {
		key, err := g.Generate()
		require.NoError(t, err)
		assert.Regexp(t, keyFormat, key)
		assert.True(t, g.Validate(key))

		_, dup := seen[key]
		assert.False(t, dup)
		seen[key] = struct{}{}
	}
}

func TestGenerator_Validate(t *testing.T) {
	t.Parallel()

	g, err := licensekey.New(secret('a'))
	require.NoError(t, err)
	other, err := licensekey.New(secret('b'))
	require.NoError(t, err)

	key, err := g.Generate()
	require.NoError(t, err)

	// Flip the first character of the random part to another base32 symbol.
	tampered := []byte(key)
	if tampered[3] == 'A' {
		tampered[3] = 'B'
	} else {
		tampered[3] = 'A'
	}

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"canonical", key, true},
		{"lower case", strings.ToLower(key), true},
		{"without dashes", strings.ReplaceAll(key, "-", ""), true},
		{"surrounding spaces", "  " + key + "\n", true},
		{"tampered", string(tampered), false},
		{"truncated", key[:len(key)-5], false},
		{"empty", "", false},
		{"not base32", "KG-0000-1111-8888-9999-0000-1111-8888-9999", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, g.Validate(tt.key))
		})
	}

	assert.False(t, other.Validate(key), "keys are bound to the secret")
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	g := licensekey.NewRandom()
	key, err := g.Generate()
	require.NoError(t, err)

	assert.Equal(t, key, licensekey.Normalize(strings.ToLower(strings.ReplaceAll(key, "-", ""))))
	assert.Empty(t, licensekey.Normalize("KG-SHORT"))
	assert.Equal(t, key, g.Normalize("  "+strings.ToLower(key)))
}
