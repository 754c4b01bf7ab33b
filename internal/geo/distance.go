// Package geo provides great-circle helpers for gym and user coordinates.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the spherical approximation.
const EarthRadiusKm = 6371.0

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the haversine distance between two coordinates in kilometers.
func Distance(from, to Coordinate) float64 {
	if from == to {
		return 0
	}

	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(to.Longitude - from.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
