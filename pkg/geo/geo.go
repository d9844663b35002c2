package geo

import "math"

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// MetersPerDegree is the length of one degree of latitude in meters.
// Longitude degrees shrink with cos(lat).
const MetersPerDegree = 111320.0

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	const R = 6371000 // Earth radius in meters
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// DestinationPoint calculates the destination point from a start point, given distance (in meters) and bearing (in degrees).
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	const R = 6371000 // Earth radius in meters
	lat1 := start.Lat * (math.Pi / 180.0)
	lon1 := start.Lon * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/R) +
		math.Cos(lat1)*math.Sin(distMeters/R)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/R)*math.Cos(lat1),
		math.Cos(distMeters/R)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lon: lon2 * (180.0 / math.Pi),
	}
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// FlatOffset moves a point by bearing (degrees) and distance (meters) using a
// flat-earth meters-per-degree approximation. Cheaper than DestinationPoint
// and accurate enough for horizontal ranges of a few kilometers, which is why
// the viewshed ray walk uses it.
func FlatOffset(start Point, distMeters, bearing float64) Point {
	brng := bearing * (math.Pi / 180.0)
	dNorth := math.Cos(brng) * distMeters
	dEast := math.Sin(brng) * distMeters

	cosLat := math.Cos(start.Lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 0.01 {
		cosLat = 0.01
	}

	return Point{
		Lat: start.Lat + dNorth/MetersPerDegree,
		Lon: start.Lon + dEast/(MetersPerDegree*cosLat),
	}
}

// Lerp linearly interpolates between two points at fraction t. Acceptable at
// sample spacings of tens of meters; not geodesically exact.
func Lerp(p1, p2 Point, t float64) Point {
	return Point{
		Lat: p1.Lat + (p2.Lat-p1.Lat)*t,
		Lon: p1.Lon + (p2.Lon-p1.Lon)*t,
	}
}
