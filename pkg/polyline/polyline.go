// Package polyline encodes and decodes route geometries in Google's polyline
// format (precision 5, as returned by OpenRouteService and Mapbox).
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrTruncated indicates the encoded string ended in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

const factor = 1e5

// Decode decodes a polyline string into a lon/lat line.
func Decode(encoded string) (orb.LineString, error) {
	if encoded == "" {
		return nil, nil
	}

	var line orb.LineString
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lonDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next

		lat += latDelta
		lon += lonDelta
		line = append(line, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return line, nil
}

// decodeValue decodes one zig-zag varint starting at index and returns the
// value and the index after it.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a lon/lat line into a polyline string.
func Encode(line orb.LineString) string {
	if len(line) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(line)*4)
	prevLat := 0
	prevLon := 0

	for _, p := range line {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
