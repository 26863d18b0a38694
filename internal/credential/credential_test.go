package credential_test

import (
	"encoding/base64"
	"errors"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateProducesURLSafeSecrets(t *testing.T) {
	seen := map[string]struct{}{}

	for i := 0; i < 100; i++ {
		secret, err := credential.Generate()
		require.NoError(t, err)

		require.NotContains(t, secret, "=")
		require.NotContains(t, secret, "+")
		require.NotContains(t, secret, "/")

		decoded, err := base64.RawURLEncoding.DecodeString(secret)
		require.NoError(t, err)
		require.Len(t, decoded, credential.SecretBytes)

		_, duplicate := seen[secret]
		require.False(t, duplicate)
		seen[secret] = struct{}{}
	}
}

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, credential.Hash("secret"), credential.Hash("secret"))
	assert.NotEqual(t, credential.Hash("secret"), credential.Hash("secret2"))
	assert.Len(t, credential.Hash(""), 64)
}

func TestSecretValidation(t *testing.T) {
	const secret = "this is really a secret"

	var testCases = []struct {
		Name             string
		Digest           string
		SecretToValidate string
		ShouldBeValid    bool
	}{
		{
			Name:             "valid secret",
			Digest:           credential.Hash(secret),
			SecretToValidate: secret,
			ShouldBeValid:    true,
		},
		{
			Name:             "missing digest is never valid (empty)",
			Digest:           "",
			SecretToValidate: "",
			ShouldBeValid:    false,
		},
		{
			Name:             "missing digest is never valid (non-empty)",
			Digest:           "",
			SecretToValidate: "123",
			ShouldBeValid:    false,
		},
		{
			Name:             "invalid secret (slightly longer)",
			Digest:           credential.Hash(secret),
			SecretToValidate: secret + "1",
			ShouldBeValid:    false,
		},
		{
			Name:             "invalid secret (different capitalization)",
			Digest:           credential.Hash(secret),
			SecretToValidate: strings.ToUpper(secret),
			ShouldBeValid:    false,
		},
		{
			Name:             "invalid secret (empty)",
			Digest:           credential.Hash(secret),
			SecretToValidate: "",
			ShouldBeValid:    false,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase

		t.Run(testCase.Name, func(t *testing.T) {
			assert.Equal(t, testCase.ShouldBeValid, credential.Validate(testCase.SecretToValidate, testCase.Digest))
		})
	}
}

func TestGeneratedSecretsValidateOnlyAgainstTheirOwnDigest(t *testing.T) {
	first, err := credential.Generate()
	require.NoError(t, err)
	second, err := credential.Generate()
	require.NoError(t, err)

	assert.True(t, credential.Validate(first, credential.Hash(first)))
	assert.False(t, credential.Validate(first, credential.Hash(second)))
}

func TestAuthorityGeneratesOnFirstLoad(t *testing.T) {
	store := credential.NewMemoryStore()
	authority := credential.NewAuthority(store, nil)

	assert.False(t, authority.Check(""))

	require.NoError(t, authority.Load())
	require.NotEmpty(t, authority.Secret())
	assert.True(t, authority.Check(authority.Secret()))

	secret, digest, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, authority.Secret(), secret)
	assert.Equal(t, credential.Hash(secret), digest)
}

func TestAuthorityRotation(t *testing.T) {
	authority := credential.NewAuthority(credential.NewMemoryStore(), nil)
	require.NoError(t, authority.Load())

	old := authority.Secret()

	rotated, err := authority.Rotate()
	require.NoError(t, err)

	assert.NotEqual(t, old, rotated)
	assert.True(t, authority.Check(rotated))
	assert.False(t, authority.Check(old))
}

func TestFailedRotationKeepsPreviousSecret(t *testing.T) {
	store := credential.NewMemoryStore()
	authority := credential.NewAuthority(store, nil)
	require.NoError(t, authority.Load())

	old := authority.Secret()

	saveErr := errors.New("disk full")
	store.FailSaves(saveErr)

	_, err := authority.Rotate()
	require.ErrorIs(t, err, saveErr)

	assert.True(t, authority.Check(old))
	assert.Equal(t, credential.Hash(old), authority.Digest())
}

func TestAuthorityDetectsCorruption(t *testing.T) {
	store := credential.NewMemoryStore()
	require.NoError(t, store.Save("secret", credential.Hash("another secret")))

	authority := credential.NewAuthority(store, nil)
	require.ErrorIs(t, authority.Load(), credential.ErrCorrupted)
	assert.False(t, authority.Check("secret"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "credentials")
	store := credential.NewFileStore(dir)

	_, _, err := store.Load()
	require.ErrorIs(t, err, credential.ErrNotFound)

	authority := credential.NewAuthority(store, nil)
	require.NoError(t, authority.Load())
	first := authority.Secret()

	// Rotating overwrites the read-only secret file
	second, err := authority.Rotate()
	require.NoError(t, err)

	secret, digest, err := credential.NewFileStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, second, secret)
	assert.Equal(t, credential.Hash(second), digest)
	assert.NotEqual(t, first, second)

	info, err := os.Stat(filepath.Join(dir, "api-key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())

	// No temporary files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileStoreMissingDigestIsCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api-key"), []byte("secret"), 0o600))

	_, _, err := credential.NewFileStore(dir).Load()
	require.ErrorIs(t, err, credential.ErrCorrupted)
}
