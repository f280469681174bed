package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		items []string
	}{
		{"single", []string{"a"}},
		{"several", []string{"OK", "Cancel", "Apply"}},
		{"empty elements", []string{"", "x", "", ""}},
		{"only empty", []string{""}},
		{"contains first candidates", []string{"a;b", "c:d", "e|f"}},
		{"unicode", []string{"héllo", "wörld"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeList(tt.items)
			require.NoError(t, err)
			assert.Equal(t, tt.items, DecodeList(encoded))
		})
	}
}

func TestEncodeListPicksFirstFreeSeparator(t *testing.T) {
	encoded, err := EncodeList([]string{"a;b", "c"})
	require.NoError(t, err)
	assert.Equal(t, ":a;b:c", encoded)
}

func TestEncodeListEmpty(t *testing.T) {
	encoded, err := EncodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, "", encoded)

	decoded := DecodeList("")
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}

func TestEncodeListNoSeparator(t *testing.T) {
	_, err := EncodeList([]string{"x", separatorCandidates})
	assert.ErrorIs(t, err, ErrNoSeparator)

	// Candidates spread across elements collide just the same.
	spread := strings.Split(separatorCandidates, "")
	_, err = EncodeList(spread)
	assert.ErrorIs(t, err, ErrNoSeparator)
}

func TestDecodeListForeignSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", "b", ""}, DecodeList("#a#b#"))
}
