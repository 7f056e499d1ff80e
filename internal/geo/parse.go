package geo

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// ParsePoint accepts {lat,lng}, {latitude,longitude}, [lat,lng] or
// "lat,lng" and returns nil for anything else, including out-of-range
// coordinates. It never panics.
func ParsePoint(input any) *domain.GeoPoint {
	var lat, lng float64
	var ok bool

	switch v := input.(type) {
	case domain.GeoPoint:
		lat, lng, ok = v.Lat, v.Lng, true
	case *domain.GeoPoint:
		if v != nil {
			lat, lng, ok = v.Lat, v.Lng, true
		}
	case map[string]any:
		lat, lng, ok = fromMap(v)
	case map[string]float64:
		m := make(map[string]any, len(v))
		for k, f := range v {
			m[k] = f
		}
		lat, lng, ok = fromMap(m)
	case []float64:
		if len(v) == 2 {
			lat, lng, ok = v[0], v[1], true
		}
	case [2]float64:
		lat, lng, ok = v[0], v[1], true
	case []any:
		if len(v) == 2 {
			var okLat, okLng bool
			lat, okLat = toFloat(v[0])
			lng, okLng = toFloat(v[1])
			ok = okLat && okLng
		}
	case string:
		lat, lng, ok = fromString(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			return ParsePoint(decoded)
		}
	}

	if !ok {
		return nil
	}
	p := domain.GeoPoint{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nil
	}
	return &p
}

// FormatPoint renders p as "lat,lng".
func FormatPoint(p domain.GeoPoint) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

func fromMap(m map[string]any) (float64, float64, bool) {
	for _, keys := range [][2]string{{"lat", "lng"}, {"latitude", "longitude"}, {"lat", "lon"}} {
		rawLat, okLat := m[keys[0]]
		rawLng, okLng := m[keys[1]]
		if !okLat || !okLng {
			continue
		}
		lat, okLat := toFloat(rawLat)
		lng, okLng := toFloat(rawLng)
		if okLat && okLng {
			return lat, lng, true
		}
	}
	return 0, 0, false
}

func fromString(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
