// Package geo provides stateless geographic primitives: great-circle
// distance, bounding boxes for index pre-filtering, coordinate parsing and
// distance formatting.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6_371_000.0

// Unit conversion factors.
const (
	MetersPerKilometer = 1000.0
	MetersPerMile      = 1609.344
	MetersPerFoot      = 0.3048
)

// metersPerDegreeLat approximates one degree of latitude in meters.
const metersPerDegreeLat = math.Pi * EarthRadius / 180

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b domain.GeoPoint) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// IsWithinRadius reports whether point lies within radiusMeters of center.
func IsWithinRadius(point, center domain.GeoPoint, radiusMeters float64) bool {
	return Distance(point, center) <= radiusMeters
}

// BoundingBox returns a box that contains every point within radiusMeters
// of center. The box over-approximates the circle; callers recover
// exactness with Distance. Longitudes wrap, so the result may cross the
// antimeridian (MinLng > MaxLng). Near the poles the box spans all longitudes.
func BoundingBox(center domain.GeoPoint, radiusMeters float64) domain.GeoBounds {
	dLat := radiusMeters / metersPerDegreeLat
	minLat := center.Lat - dLat
	maxLat := center.Lat + dLat

	if minLat <= -90 || maxLat >= 90 {
		return domain.GeoBounds{
			MinLat: math.Max(minLat, -90),
			MaxLat: math.Min(maxLat, 90),
			MinLng: -180,
			MaxLng: 180,
		}
	}

	cosLat := math.Cos(radians(math.Max(math.Abs(minLat), math.Abs(maxLat))))
	dLng := dLat / cosLat
	if dLng >= 180 {
		return domain.GeoBounds{MinLat: minLat, MaxLat: maxLat, MinLng: -180, MaxLng: 180}
	}

	return domain.GeoBounds{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLng: WrapLongitude(center.Lng - dLng),
		MaxLng: WrapLongitude(center.Lng + dLng),
	}
}

// WrapLongitude normalises lng into [-180, 180].
func WrapLongitude(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// Intersects reports whether two boxes overlap, honouring dateline wrap on both.
func Intersects(a, b domain.GeoBounds) bool {
	for _, x := range a.Split() {
		for _, y := range b.Split() {
			if x.MinLat <= y.MaxLat && x.MaxLat >= y.MinLat &&
				x.MinLng <= y.MaxLng && x.MaxLng >= y.MinLng {
				return true
			}
		}
	}
	return false
}

// DistanceToBounds returns the distance in meters from p to the nearest
// edge of b, or zero when b contains p. Longitude wrap is honoured.
func DistanceToBounds(p domain.GeoPoint, b domain.GeoBounds) float64 {
	if b.Contains(p) {
		return 0
	}
	nearest := domain.GeoPoint{
		Lat: math.Max(b.MinLat, math.Min(b.MaxLat, p.Lat)),
		Lng: p.Lng,
	}
	band := domain.GeoBounds{MinLat: -90, MaxLat: 90, MinLng: b.MinLng, MaxLng: b.MaxLng}
	if !band.Contains(p) {
		if lngGap(p.Lng, b.MinLng) <= lngGap(p.Lng, b.MaxLng) {
			nearest.Lng = b.MinLng
		} else {
			nearest.Lng = b.MaxLng
		}
	}
	return Distance(p, nearest)
}

// lngGap is the angular separation of two longitudes in degrees, at most 180.
func lngGap(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// ToMeters converts value in unit to meters. The empty unit is meters.
func ToMeters(value float64, unit domain.DistanceUnit) (float64, error) {
	switch ParseUnit(string(unit)) {
	case domain.UnitMeters:
		return value, nil
	case domain.UnitKilometers:
		return KilometersToMeters(value), nil
	case domain.UnitMiles:
		return MilesToMeters(value), nil
	case domain.UnitFeet:
		return value * MetersPerFoot, nil
	default:
		return 0, domain.NewValidationError("geo", fmt.Sprintf("unknown distance unit %q", unit), domain.ErrInvalidGeo)
	}
}

// ParseUnit maps common spellings onto a DistanceUnit. Unknown input is returned unchanged.
func ParseUnit(s string) domain.DistanceUnit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "m", "meter", "meters", "metre", "metres":
		return domain.UnitMeters
	case "km", "kilometer", "kilometers", "kilometre", "kilometres":
		return domain.UnitKilometers
	case "mi", "mile", "miles":
		return domain.UnitMiles
	case "ft", "foot", "feet":
		return domain.UnitFeet
	default:
		return domain.DistanceUnit(s)
	}
}

// KilometersToMeters converts km to m.
func KilometersToMeters(km float64) float64 { return km * MetersPerKilometer }

// MetersToKilometers converts m to km.
func MetersToKilometers(m float64) float64 { return m / MetersPerKilometer }

// MilesToMeters converts miles to m.
func MilesToMeters(mi float64) float64 { return mi * MetersPerMile }

// MetersToMiles converts m to miles.
func MetersToMiles(m float64) float64 { return m / MetersPerMile }

// FormatDistance renders meters for display. Metric output switches from
// meters to kilometers at 1000 m; imperial output switches from feet to
// miles at 0.1 mi.
func FormatDistance(meters float64, unit domain.DistanceUnit, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	switch ParseUnit(string(unit)) {
	case domain.UnitMiles, domain.UnitFeet:
		miles := MetersToMiles(meters)
		if miles < 0.1 {
			return strconv.FormatFloat(meters/MetersPerFoot, 'f', 0, 64) + " ft"
		}
		return strconv.FormatFloat(miles, 'f', decimals, 64) + " mi"
	default:
		if meters < 1000 {
			return strconv.FormatFloat(meters, 'f', 0, 64) + " m"
		}
		return strconv.FormatFloat(MetersToKilometers(meters), 'f', decimals, 64) + " km"
	}
}
