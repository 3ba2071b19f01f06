// Package geo answers "how risky is this coordinate" from a static table of
// circular risk zones.
package geo

import (
	"math"

	model "github.com/okian/guardline/internal/domain/model"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Zone is a circular area with a fixed risk contribution.
type Zone struct {
	Name     string  `koanf:"name" json:"name"`
	Lat      float64 `koanf:"lat" json:"lat"`
	Lng      float64 `koanf:"lng" json:"lng"`
	RadiusKm float64 `koanf:"radius_km" json:"radiusKm"`
	Risk     int     `koanf:"risk" json:"risk"`
}

// DefaultZones returns the built-in zone table.
func DefaultZones() []Zone {
	return []Zone{
		{Name: "High Crime Area", Lat: 28.6139, Lng: 77.2090, RadiusKm: 2, Risk: 15},
		{Name: "Unsafe Zone", Lat: 28.7041, Lng: 77.1025, RadiusKm: 1.5, Risk: 20},
	}
}

// Index is an immutable ordered list of zones. Overlapping zones are not
// resolved: the first zone in table order that contains a point wins.
type Index struct {
	zones []Zone
}

// Option configures an Index.
type Option func(*Index)

// WithZones replaces the zone table. Zones with a non-positive radius or
// negative risk are skipped.
func WithZones(zones []Zone) Option {
	return func(ix *Index) {
		ix.zones = ix.zones[:0]
		for _, z := range zones {
			if z.RadiusKm <= 0 || z.Risk < 0 {
				continue
			}
			ix.zones = append(ix.zones, z)
		}
	}
}

// NewIndex builds an Index over DefaultZones unless WithZones is given.
func NewIndex(opts ...Option) *Index {
	ix := &Index{zones: DefaultZones()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ZoneFor returns the first zone containing loc.
func (ix *Index) ZoneFor(loc *model.Location) (Zone, bool) {
	if loc == nil || !loc.Valid() {
		return Zone{}, false
	}
	for _, z := range ix.zones {
		if Distance(loc.Lat, loc.Lng, z.Lat, z.Lng) <= z.RadiusKm {
			return z, true
		}
	}
	return Zone{}, false
}

// RiskFor returns the risk contribution of loc, or 0 when loc is nil or
// outside every zone.
func (ix *Index) RiskFor(loc *model.Location) int {
	z, ok := ix.ZoneFor(loc)
	if !ok {
		return 0
	}
	return z.Risk
}

// Zones returns a copy of the zone table.
func (ix *Index) Zones() []Zone {
	out := make([]Zone, len(ix.zones))
	copy(out, ix.zones)
	return out
}

// Distance is the great-circle distance in kilometres between two points.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func deg2rad(deg float64) float64 { return deg * math.Pi / 180 }
