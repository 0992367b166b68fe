package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	token, err := Generate()
	require.NoError(t, err)
	assert.Len(t, token, TokenLength)
	assert.True(t, WellFormed(token))

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "two tokens should differ")
}

func TestDigestDeterministic(t *testing.T) {
	token, err := Generate()
	require.NoError(t, err)

	d1 := Digest(token)
	d2 := Digest(token)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, DigestLength)
	assert.True(t, ValidDigest(d1))
	assert.NotEqual(t, token, d1)
	assert.NotEqual(t, d1, Digest(token+"x"))
}

func TestDigestNoCollisions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping collision sweep in short mode")
	}
	const n = 100_000
	tokens := make(map[string]struct{}, n)
	digests := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		token, err := Generate()
		require.NoError(t, err)
		_, dupToken := tokens[token]
		require.False(t, dupToken, "duplicate token after %d generations", i)
		tokens[token] = struct{}{}

		d := Digest(token)
		_, dupDigest := digests[d]
		require.False(t, dupDigest, "digest collision after %d generations", i)
		digests[d] = struct{}{}
	}
	assert.Len(t, digests, n)
}

func TestWellFormed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"empty", "", false},
		{"too short", "abc", false},
		{"bad alphabet", "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!", false},
		{"valid length and alphabet", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WellFormed(tt.input))
		})
	}
}

func TestValidDigest(t *testing.T) {
	token, err := Generate()
	require.NoError(t, err)
	d := Digest(token)

	assert.True(t, ValidDigest(d))
	assert.False(t, ValidDigest(d[:10]))
	assert.False(t, ValidDigest("G"+d[1:]))
	assert.Equal(t, d[:8], Short(d))
	assert.Equal(t, "abc", Short("abc"))
}
