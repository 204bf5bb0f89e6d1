package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinor(t *testing.T) {
	cases := map[string]int64{
		"4625.00":   462500,
		"4625":      462500,
		"4625.0":    462500,
		"4625.5":    462550,
		"4625.0000": 462500,
		" 10.01 ":   1001,
		".50":       50,
	}
	for in, want := range cases {
		got, err := ParseMinor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "-1.00", "abc", "1.001", "1,000.00", "+5"} {
		_, err := ParseMinor(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "4625.00", FormatMinor(462500))
	assert.Equal(t, "0.05", FormatMinor(5))
	assert.Equal(t, "-1.10", FormatMinor(-110))
}
