package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// GeohashPrecision is the precision stored alongside each gym (cells of roughly 4.9km x 4.9km
// at the equator).
const GeohashPrecision = 5

// SearchPrecision is the finest precision used when scanning for nearby gyms.
const SearchPrecision = 4

var kmPerDegree = EarthRadiusKm * math.Pi / 180

// SearchArea is a block of equal-length geohash prefixes around a point. Empty Prefixes means
// no block of cells is wide enough and every gym is a candidate.
type SearchArea struct {
	Precision int
	Prefixes  []string
}

// Covers reports whether hash starts with one of the area's prefixes.
func (a SearchArea) Covers(hash string) bool {
	if len(a.Prefixes) == 0 {
		return true
	}
	if len(hash) < a.Precision {
		return false
	}
	for _, p := range a.Prefixes {
		if hash[:a.Precision] == p {
			return true
		}
	}
	return false
}

// SearchPrefixes returns the cell holding c and its neighbours, at the finest precision up to
// SearchPrecision whose cells span at least radiusKm in both directions. Cells narrow with
// latitude, so the width is measured at the circle's poleward edge.
func SearchPrefixes(c Coordinate, radiusKm float64) SearchArea {
	edgeLat := math.Abs(c.Latitude) + radiusKm/kmPerDegree
	if edgeLat >= 90 {
		return SearchArea{}
	}
	widthScale := math.Cos(toRadians(edgeLat))

	for precision := SearchPrecision; precision >= 1; precision-- {
		centre := geohash.EncodeWithPrecision(c.Latitude, c.Longitude, uint(precision))
		box := geohash.BoundingBox(centre)
		heightKm := (box.MaxLat - box.MinLat) * kmPerDegree
		widthKm := (box.MaxLng - box.MinLng) * kmPerDegree * widthScale
		if heightKm >= radiusKm && widthKm >= radiusKm {
			return SearchArea{Precision: precision, Prefixes: block(box, uint(precision))}
		}
	}
	return SearchArea{}
}

// block encodes the 3x3 cells around box, wrapping longitude and dropping rows past a pole.
func block(box geohash.Box, precision uint) []string {
	lat, lng := box.Center()
	dLat := box.MaxLat - box.MinLat
	dLng := box.MaxLng - box.MinLng

	seen := make(map[string]struct{}, 9)
	cells := make([]string, 0, 9)
	for _, row := range []float64{0, 1, -1} {
		cellLat := lat + row*dLat
		if cellLat <= -90 || cellLat >= 90 {
			continue
		}
		for _, col := range []float64{0, 1, -1} {
			cell := geohash.EncodeWithPrecision(cellLat, wrapLongitude(lng+col*dLng), precision)
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			cells = append(cells, cell)
		}
	}
	return cells
}

func wrapLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}
