package domain

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the legal coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// GeoBounds is a latitude/longitude box. MinLng > MaxLng denotes a box
// that crosses the antimeridian.
type GeoBounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// CrossesDateline reports whether the box wraps across ±180°.
func (b GeoBounds) CrossesDateline() bool {
	return b.MinLng > b.MaxLng
}

// Valid reports whether the box has ordered, in-range latitudes and
// in-range longitudes.
func (b GeoBounds) Valid() bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLat <= b.MaxLat &&
		b.MinLng >= -180 && b.MinLng <= 180 && b.MaxLng >= -180 && b.MaxLng <= 180
}

// Split returns one box, or two non-wrapping boxes when the box crosses
// the antimeridian.
func (b GeoBounds) Split() []GeoBounds {
	if !b.CrossesDateline() {
		return []GeoBounds{b}
	}
	return []GeoBounds{
		{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLng: b.MinLng, MaxLng: 180},
		{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLng: -180, MaxLng: b.MaxLng},
	}
}

// Contains reports whether p lies inside the box, honouring dateline wrap.
func (b GeoBounds) Contains(p GeoPoint) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.CrossesDateline() {
		return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// DistanceUnit names a unit for radii and formatted distances.
type DistanceUnit string

// Supported distance units.
const (
	UnitMeters     DistanceUnit = "m"
	UnitKilometers DistanceUnit = "km"
	UnitMiles      DistanceUnit = "mi"
	UnitFeet       DistanceUnit = "ft"
)

// IsValid reports whether the unit is recognised. The empty unit means meters.
func (u DistanceUnit) IsValid() bool {
	switch u {
	case "", UnitMeters, UnitKilometers, UnitMiles, UnitFeet:
		return true
	default:
		return false
	}
}
