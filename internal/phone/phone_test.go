package phone

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"0300-1245102":      "03001245102",
		"0300 124 5102":     "03001245102",
		"+92 (300) 1245102": "923001245102",
		"":                  "",
		"abc-+()":           "",
		"٠٣٠٠":              "", // non-ASCII digits are dropped
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalize_IdempotentAndDigitsOnly(t *testing.T) {
	alphabet := []rune("0123456789 -+()abcxyz.#٣\t")
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := rng.Intn(24)
		buf := make([]rune, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		s := string(buf)
		once := Normalize(s)
		require.Equal(t, once, Normalize(once), "input %q", s)
		for _, c := range once {
			require.True(t, c >= '0' && c <= '9', "input %q produced %q", s, once)
		}
	}
}

func TestNormalize_FormattingInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("0300-1245102"), Normalize("(0300) 124-5102"))
	assert.False(t, Valid("---"))
	assert.True(t, Valid("0300-1245102"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0300-1245102", Format("03001245102"))
	assert.Equal(t, "(555) 123-4567", Format("555.123.4567"))
	assert.Equal(t, "+92 300", Format("+92 300"))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("0300-1245102", "1245"))
	assert.True(t, Matches("0300-1245102", "124-5"))
	assert.False(t, Matches("0300-1245102", "999"))
	assert.False(t, Matches("0300-1245102", "Junaid"))
}
