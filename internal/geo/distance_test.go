package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		from      Coordinate
		to        Coordinate
		expected  float64
		tolerance float64
	}{
		{
			name:      "same point",
			from:      Coordinate{Latitude: -25.3995694, Longitude: -51.4732985},
			to:        Coordinate{Latitude: -25.3995694, Longitude: -51.4732985},
			expected:  0,
			tolerance: 0,
		},
		{
			name:      "distant gym",
			from:      Coordinate{Latitude: -25.3995694, Longitude: -51.4732985},
			to:        Coordinate{Latitude: -25.3481003, Longitude: -51.4733236},
			expected:  5.72,
			tolerance: 0.05,
		},
		{
			name:      "two degrees of latitude across the equator",
			from:      Coordinate{Latitude: -1, Longitude: 100},
			to:        Coordinate{Latitude: 1, Longitude: 100},
			expected:  222.39,
			tolerance: 0.5,
		},
		{
			name:      "across the antimeridian",
			from:      Coordinate{Latitude: 0, Longitude: 179},
			to:        Coordinate{Latitude: 0, Longitude: -179},
			expected:  222.39,
			tolerance: 0.5,
		},
		{
			name:      "a few meters apart",
			from:      Coordinate{Latitude: -25.3995694, Longitude: -51.4732985},
			to:        Coordinate{Latitude: -25.3996, Longitude: -51.4733},
			expected:  0.0034,
			tolerance: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.from, tt.to)
			assert.InDelta(t, tt.expected, got, tt.tolerance)
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	points := []Coordinate{
		{Latitude: -25.3995694, Longitude: -51.4732985},
		{Latitude: -25.3481003, Longitude: -51.4733236},
		{Latitude: 51.5074, Longitude: -0.1278},
		{Latitude: 40.7128, Longitude: -74.006},
		{Latitude: 0, Longitude: 0},
	}

	for _, a := range points {
		assert.Zero(t, Distance(a, a))
		for _, b := range points {
			assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-12)
		}
	}
}

func TestSearchPrefixesContainStoredHash(t *testing.T) {
	gym := Coordinate{Latitude: -25.3995694, Longitude: -51.4732985}
	user := Coordinate{Latitude: -25.3481003, Longitude: -51.4733236}

	area := SearchPrefixes(user, 10)
	assert.Equal(t, SearchPrecision, area.Precision)
	assert.Len(t, area.Prefixes, 9)
	assert.True(t, area.Covers(Encode(gym)), "gym ~6km away should fall in one of the search cells")
}

func TestSearchPrefixesCoverRadiusAtHighLatitude(t *testing.T) {
	tests := []struct {
		name   string
		origin Coordinate
	}{
		{name: "equator", origin: Coordinate{Latitude: 0.01, Longitude: 10.01}},
		{name: "tromso", origin: Coordinate{Latitude: 69.6492, Longitude: 18.9553}},
		{name: "svalbard", origin: Coordinate{Latitude: 78.2232, Longitude: 15.6267}},
		{name: "alert", origin: Coordinate{Latitude: 82.5018, Longitude: -62.3481}},
		{name: "antimeridian", origin: Coordinate{Latitude: 64.7333, Longitude: 179.99}},
		{name: "southern", origin: Coordinate{Latitude: -77.8419, Longitude: 166.6863}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area := SearchPrefixes(tt.origin, 10)
			for bearing := 0.0; bearing < 360; bearing += 15 {
				point := destination(tt.origin, bearing, 9.9)
				assert.LessOrEqual(t, Distance(tt.origin, point), 10.0)
				assert.True(t, area.Covers(Encode(point)),
					"point at bearing %.0f (%.4f,%.4f) outside %v", bearing, point.Latitude, point.Longitude, area.Prefixes)
			}
		})
	}
}

func TestSearchPrefixesNearPoleScansEverything(t *testing.T) {
	area := SearchPrefixes(Coordinate{Latitude: 89.95, Longitude: 0}, 10)
	assert.Empty(t, area.Prefixes)
	assert.True(t, area.Covers("zzzzz"))
}

// destination walks distanceKm from origin along bearing on a sphere.
func destination(origin Coordinate, bearing, distanceKm float64) Coordinate {
	delta := distanceKm / EarthRadiusKm
	theta := toRadians(bearing)
	phi1 := toRadians(origin.Latitude)
	lambda1 := toRadians(origin.Longitude)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1), math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return Coordinate{
		Latitude:  phi2 * 180 / math.Pi,
		Longitude: wrapLongitude(lambda2 * 180 / math.Pi),
	}
}
