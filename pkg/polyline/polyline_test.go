package polyline

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidPolyline(t *testing.T) {
	tests := []struct {
		name     string
		encoded  string
		expected orb.LineString
	}{
		{
			name:     "single point",
			encoded:  "_p~iF~ps|U",
			expected: orb.LineString{{-120.2, 38.5}},
		},
		{
			name:     "two points",
			encoded:  "_p~iF~ps|U_ulLnnqC",
			expected: orb.LineString{{-120.2, 38.5}, {-120.95, 40.7}},
		},
		{
			name:     "three points - Google example",
			encoded:  "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			expected: orb.LineString{{-120.2, 38.5}, {-120.95, 40.7}, {-126.453, 43.252}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Decode(tt.encoded)
			require.NoError(t, err)
			require.Len(t, result, len(tt.expected))

			for i, p := range result {
				assert.InDelta(t, tt.expected[i].Lon(), p.Lon(), 1e-6, "lon %d", i)
				assert.InDelta(t, tt.expected[i].Lat(), p.Lat(), 1e-6, "lat %d", i)
			}
		})
	}
}

func TestDecode_EmptyString(t *testing.T) {
	result, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode("_p~iF~ps|")
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = Decode("_p~iF")
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncode_GoogleExample(t *testing.T) {
	line := orb.LineString{{-120.2, 38.5}, {-120.95, 40.7}, {-126.453, 43.252}}
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", Encode(line))
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
	assert.Equal(t, "", Encode(orb.LineString{}))
}

func TestRoundTrip_Vancouver(t *testing.T) {
	line := orb.LineString{
		{-123.12074, 49.28273},
		{-123.11652, 49.28021},
		{-123.10011, 49.27488},
		{-123.06931, 49.26319},
	}

	decoded, err := Decode(Encode(line))
	require.NoError(t, err)
	require.Len(t, decoded, len(line))
	for i := range line {
		assert.InDelta(t, line[i].Lon(), decoded[i].Lon(), 1e-5)
		assert.InDelta(t, line[i].Lat(), decoded[i].Lat(), 1e-5)
	}
}
