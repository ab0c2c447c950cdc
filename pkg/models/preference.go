package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// BuyerPreference holds a buyer's search criteria. Unset bounds are unconstrained.
type BuyerPreference struct {
	ID           string        `json:"id" db:"id"`
	BuyerID      string        `json:"buyer_id" db:"buyer_id"`
	MinPrice     *int64        `json:"min_price,omitempty" db:"min_price"`
	MaxPrice     *int64        `json:"max_price,omitempty" db:"max_price"`
	MinSize      *int          `json:"min_size,omitempty" db:"min_size"`
	MaxSize      *int          `json:"max_size,omitempty" db:"max_size"`
	MinRooms     *int          `json:"min_rooms,omitempty" db:"min_rooms"`
	PropertyType *PropertyType `json:"property_type,omitempty" db:"property_type"`
	SearchArea   *SearchArea   `json:"search_area,omitempty" db:"search_area"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

type UpsertPreferenceRequest struct {
	MinPrice     *int64        `json:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice     *int64        `json:"max_price,omitempty" validate:"omitempty,gte=0"`
	MinSize      *int          `json:"min_size,omitempty" validate:"omitempty,gt=0"`
	MaxSize      *int          `json:"max_size,omitempty" validate:"omitempty,gt=0"`
	MinRooms     *int          `json:"min_rooms,omitempty" validate:"omitempty,gte=0"`
	PropertyType *PropertyType `json:"property_type,omitempty"`
	SearchArea   *SearchArea   `json:"search_area,omitempty"`
}

// Validate checks the cross-field rules that struct tags cannot express.
func (r *UpsertPreferenceRequest) Validate() error {
	if r.MinPrice != nil && r.MaxPrice != nil && *r.MinPrice > *r.MaxPrice {
		return fmt.Errorf("min_price must not exceed max_price")
	}
	if r.MinSize != nil && r.MaxSize != nil && *r.MinSize > *r.MaxSize {
		return fmt.Errorf("min_size must not exceed max_size")
	}
	if r.PropertyType != nil && !r.PropertyType.Valid() {
		return fmt.Errorf("unknown property_type %q", *r.PropertyType)
	}
	if r.SearchArea != nil {
		return r.SearchArea.Validate()
	}
	return nil
}

type SearchAreaKind string

const (
	SearchAreaCircle  SearchAreaKind = "circle"
	SearchAreaPolygon SearchAreaKind = "polygon"
)

// SearchArea is either a circle {center, radiusMeters} or a GeoJSON polygon
// whose rings are in [lng,lat] order. Writes require a positive radius; a
// stored circle without one is matched with the deployment default radius.
type SearchArea struct {
	Center       *Location
	RadiusMeters float64
	Geometry     *geojson.Geometry
}

type circleJSON struct {
	Center       *Location `json:"center"`
	RadiusMeters float64   `json:"radiusMeters,omitempty"`
}

func NewCircleArea(center Location, radiusMeters float64) *SearchArea {
	return &SearchArea{Center: &center, RadiusMeters: radiusMeters}
}

// NewPolygonArea builds a polygon area from a single [lng,lat] ring.
func NewPolygonArea(ring [][]float64) *SearchArea {
	return &SearchArea{Geometry: geojson.NewPolygonGeometry([][][]float64{ring})}
}

func (a *SearchArea) Kind() SearchAreaKind {
	if a.Geometry != nil {
		return SearchAreaPolygon
	}
	return SearchAreaCircle
}

// Validate enforces the write-time geometry rules. Matching never calls it;
// it fails closed on the same conditions instead.
func (a *SearchArea) Validate() error {
	if a.Geometry != nil {
		if a.Center != nil {
			return fmt.Errorf("%w: search area is both circle and polygon", ErrMalformedGeometry)
		}
		var polygons [][][][]float64
		switch {
		case a.Geometry.IsPolygon():
			polygons = [][][][]float64{a.Geometry.Polygon}
		case a.Geometry.IsMultiPolygon():
			polygons = a.Geometry.MultiPolygon
		default:
			return fmt.Errorf("%w: unsupported geometry type %s", ErrMalformedGeometry, a.Geometry.Type)
		}
		if len(polygons) == 0 {
			return fmt.Errorf("%w: empty polygon", ErrMalformedGeometry)
		}
		for _, polygon := range polygons {
			if len(polygon) == 0 || distinctVertices(polygon[0]) < 3 {
				return fmt.Errorf("%w: polygon needs at least 3 vertices", ErrMalformedGeometry)
			}
			for _, ring := range polygon {
				for _, pt := range ring {
					if len(pt) < 2 || !finite(pt[0]) || !finite(pt[1]) {
						return fmt.Errorf("%w: non-finite polygon coordinate", ErrMalformedGeometry)
					}
				}
			}
		}
		return nil
	}

	if a.Center == nil {
		return fmt.Errorf("%w: search area has neither center nor polygon", ErrMalformedGeometry)
	}
	if !ValidLocation(*a.Center) {
		return fmt.Errorf("%w: invalid circle center", ErrMalformedGeometry)
	}
	if !finite(a.RadiusMeters) || a.RadiusMeters <= 0 {
		return fmt.Errorf("%w: radius must be positive", ErrMalformedGeometry)
	}
	return nil
}

// ValidLocation reports whether loc is finite and within lat/lng ranges.
func ValidLocation(loc Location) bool {
	return finite(loc.Lat) && finite(loc.Lng) &&
		loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// distinctVertices counts vertices ignoring a closing point equal to the first.
func distinctVertices(ring [][]float64) int {
	n := len(ring)
	if n > 1 && len(ring[0]) >= 2 && len(ring[n-1]) >= 2 &&
		ring[0][0] == ring[n-1][0] && ring[0][1] == ring[n-1][1] {
		n--
	}
	return n
}

func (a SearchArea) MarshalJSON() ([]byte, error) {
	if a.Geometry != nil {
		return json.Marshal(a.Geometry)
	}
	return json.Marshal(circleJSON{Center: a.Center, RadiusMeters: a.RadiusMeters})
}

func (a *SearchArea) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if probe.Type != "" {
		geometry, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedGeometry, err)
		}
		*a = SearchArea{Geometry: geometry}
		return nil
	}

	var circle circleJSON
	if err := json.Unmarshal(data, &circle); err != nil {
		return err
	}
	*a = SearchArea{Center: circle.Center, RadiusMeters: circle.RadiusMeters}
	return nil
}

// Scan reads the jsonb search_area column.
func (a *SearchArea) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("SearchArea.Scan: expected []byte, got %T", src)
	}
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	return a.UnmarshalJSON(b)
}

func (a *SearchArea) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	b, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	// lib/pq encodes []byte as bytea, jsonb needs text
	return string(b), nil
}
