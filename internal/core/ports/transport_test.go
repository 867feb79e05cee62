package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColorFormat(t *testing.T) {
	f, err := ParseColorFormat("uyvy_bgra")
	require.NoError(t, err)
	assert.Equal(t, ColorFormatUYVYBGRA, f)

	f, err = ParseColorFormat("best")
	require.NoError(t, err)
	assert.Equal(t, ColorFormatBest, f)

	_, err = ParseColorFormat("UYVY")
	assert.Error(t, err)
}

func TestParseBandwidth(t *testing.T) {
	b, err := ParseBandwidth("metadata_only")
	require.NoError(t, err)
	assert.Equal(t, BandwidthMetadataOnly, b)

	_, err = ParseBandwidth("")
	assert.Error(t, err)
}
