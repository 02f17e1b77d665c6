package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_Issue(t *testing.T) {
	issuer := NewIssuer()

	tok, err := issuer.Issue()
	require.NoError(t, err)
	assert.Len(t, tok, 43, "32 bytes base64url-encoded without padding")
	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
}

func TestIssuer_Issue_Unique(t *testing.T) {
	issuer := NewIssuer()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := issuer.Issue()
		require.NoError(t, err)
		assert.False(t, seen[tok], "token issued twice: %s", tok)
		seen[tok] = true
	}
}

func TestValid(t *testing.T) {
	issuer := NewIssuer()
	tok, err := issuer.Issue()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "issued token", token: tok, want: true},
		{name: "empty", token: "", want: false},
		{name: "too short", token: "abc", want: false},
		{name: "padded base64", token: tok[:40] + "ab=", want: false},
		{name: "invalid alphabet", token: tok[:42] + "!", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.token))
		})
	}
}
