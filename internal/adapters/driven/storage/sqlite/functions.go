package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sync"

	sqlite "modernc.org/sqlite"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/geo"
)

var registerOnce sync.Once

// registerFunctions makes the geo scalar functions available to every
// connection opened afterwards:
//
//	geo_distance(lat1, lng1, lat2, lng2)
//	geo_intersects(bounds_json, min_lat, max_lat, min_lng, max_lng)
//	geo_bounds_distance(bounds_json, lat, lng)
func registerFunctions() {
	registerOnce.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("geo_distance", 4, geoDistanceImpl)
		_ = sqlite.RegisterDeterministicScalarFunction("geo_intersects", 5, geoIntersectsImpl)
		_ = sqlite.RegisterDeterministicScalarFunction("geo_bounds_distance", 3, geoBoundsDistanceImpl)
	})
}

// geoDistanceImpl returns the haversine distance in meters, or NULL when
// any coordinate is NULL.
func geoDistanceImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("geo_distance: expected 4 arguments, got %d", len(args))
	}
	c, ok, err := floatArgs("geo_distance", args)
	if !ok || err != nil {
		return nil, err
	}
	return geo.Distance(domain.GeoPoint{Lat: c[0], Lng: c[1]}, domain.GeoPoint{Lat: c[2], Lng: c[3]}), nil
}

// geoIntersectsImpl reports whether a stored geo_bounds value overlaps the
// given box, honouring the antimeridian on both sides. NULL bounds never
// intersect.
func geoIntersectsImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 5 {
		return nil, fmt.Errorf("geo_intersects: expected 5 arguments, got %d", len(args))
	}
	stored, ok, err := boundsArg("geo_intersects", args[0])
	if !ok || err != nil {
		return int64(0), err
	}
	c, ok, err := floatArgs("geo_intersects", args[1:])
	if !ok || err != nil {
		return int64(0), err
	}
	box := domain.GeoBounds{MinLat: c[0], MaxLat: c[1], MinLng: c[2], MaxLng: c[3]}
	if geo.Intersects(stored, box) {
		return int64(1), nil
	}
	return int64(0), nil
}

// geoBoundsDistanceImpl returns the distance in meters from a point to a
// stored geo_bounds value, zero inside it, or NULL without bounds.
func geoBoundsDistanceImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("geo_bounds_distance: expected 3 arguments, got %d", len(args))
	}
	stored, ok, err := boundsArg("geo_bounds_distance", args[0])
	if !ok || err != nil {
		return nil, err
	}
	c, ok, err := floatArgs("geo_bounds_distance", args[1:])
	if !ok || err != nil {
		return nil, err
	}
	return geo.DistanceToBounds(domain.GeoPoint{Lat: c[0], Lng: c[1]}, stored), nil
}

// floatArgs converts numeric arguments. ok is false when any is NULL.
func floatArgs(fn string, args []driver.Value) ([]float64, bool, error) {
	out := make([]float64, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			return nil, false, nil
		case float64:
			out[i] = v
		case int64:
			out[i] = float64(v)
		default:
			return nil, false, fmt.Errorf("%s: unsupported argument type %T", fn, arg)
		}
	}
	return out, true, nil
}

// boundsArg decodes a geo_bounds column value. ok is false for NULL.
func boundsArg(fn string, arg driver.Value) (domain.GeoBounds, bool, error) {
	var raw []byte
	switch v := arg.(type) {
	case nil:
		return domain.GeoBounds{}, false, nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return domain.GeoBounds{}, false, fmt.Errorf("%s: unsupported bounds type %T", fn, arg)
	}
	var b domain.GeoBounds
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.GeoBounds{}, false, fmt.Errorf("%s: decoding bounds: %w", fn, err)
	}
	return b, true, nil
}
