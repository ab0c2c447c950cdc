// Package geo decides whether a listing location falls inside a buyer's
// search area. Invalid geometry is never an error here: it fails closed.
package geo

import (
	"context"
	"math"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/golang/geo/s2"
)

type Config struct {
	EarthRadiusKm float64
	// DefaultRadiusMeters applies to circle areas stored without a radius.
	DefaultRadiusMeters float64
}

func DefaultConfig() Config {
	return Config{
		EarthRadiusKm:       6371,
		DefaultRadiusMeters: 2000,
	}
}

// Filter is stateless and safe for concurrent use.
type Filter struct {
	config Config
	logger ectologger.Logger
}

func NewFilter(config Config, logger ectologger.Logger) *Filter {
	if config.EarthRadiusKm <= 0 {
		config.EarthRadiusKm = DefaultConfig().EarthRadiusKm
	}
	return &Filter{config: config, logger: logger}
}

// Distance returns the great-circle distance in meters.
func Distance(a, b models.Location, earthRadiusKm float64) float64 {
	angle := s2.LatLngFromDegrees(a.Lat, a.Lng).Distance(s2.LatLngFromDegrees(b.Lat, b.Lng))
	return angle.Radians() * earthRadiusKm * 1000
}

// Distance returns the great-circle distance in meters using the configured Earth radius.
func (f *Filter) Distance(a, b models.Location) float64 {
	return Distance(a, b, f.config.EarthRadiusKm)
}

// Contains reports whether point lies inside area. Circles are closed disks and
// polygon boundaries count as inside. A nil area contains nothing.
func (f *Filter) Contains(ctx context.Context, point models.Location, area *models.SearchArea) bool {
	if area == nil {
		return false
	}
	if !models.ValidLocation(point) {
		f.reject(ctx, "invalid_point", nil)
		return false
	}

	if area.Geometry != nil {
		return f.containsGeometry(ctx, point, area)
	}
	return f.containsCircle(ctx, point, area)
}

func (f *Filter) containsCircle(ctx context.Context, point models.Location, area *models.SearchArea) bool {
	if area.Center == nil || !models.ValidLocation(*area.Center) {
		f.reject(ctx, "invalid_center", nil)
		return false
	}

	radius := area.RadiusMeters
	if radius == 0 {
		radius = f.config.DefaultRadiusMeters
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		f.reject(ctx, "invalid_radius", map[string]any{"radius_meters": radius})
		return false
	}

	return f.Distance(point, *area.Center) <= radius
}

func (f *Filter) containsGeometry(ctx context.Context, point models.Location, area *models.SearchArea) bool {
	var polygons [][][][]float64
	switch {
	case area.Geometry.IsPolygon():
		polygons = [][][][]float64{area.Geometry.Polygon}
	case area.Geometry.IsMultiPolygon():
		polygons = area.Geometry.MultiPolygon
	default:
		f.reject(ctx, "unsupported_geometry", map[string]any{"geometry_type": string(area.Geometry.Type)})
		return false
	}

	valid := 0
	for _, rings := range polygons {
		polygon, ok := NormalizePolygon(rings)
		if !ok {
			continue
		}
		valid++
		if polygon.Contains(point) {
			return true
		}
	}
	if valid == 0 {
		f.reject(ctx, "too_few_vertices", map[string]any{"polygons": len(polygons)})
	}
	return false
}

func (f *Filter) reject(ctx context.Context, reason string, fields map[string]any) {
	metrics.GeometryRejectedTotal.WithLabelValues(reason).Inc()
	if f.logger == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["reason"] = reason
	f.logger.WithContext(ctx).WithFields(fields).Warn("excluding listing: malformed geometry")
}
