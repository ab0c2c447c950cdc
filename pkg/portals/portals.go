// Package portals turns portal-specific scraper payloads into models.RawListing
// so classification and dedup never see portal shapes.
package portals

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RawListingPayload is a scraped listing tagged with the portal it came from.
type RawListingPayload struct {
	PortalSource models.Source   `json:"portal_source"`
	Body         json.RawMessage `json:"payload"`
}

// Adapter decodes one portal's payload body.
type Adapter func(body json.RawMessage) (*models.RawListing, error)

type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Source]Adapter
}

// NewRegistry returns a registry with every known portal adapter registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[models.Source]Adapter)}
	r.Register(models.SourceScraperImmobiliare, Immobiliare)
	r.Register(models.SourceScraperIdealista, Idealista)
	r.Register(models.SourceScraperClickcase, Clickcase)
	r.Register(models.SourceScraperCasadaprivato, Casadaprivato)
	r.Register(models.SourceManualImport, ManualImport)
	return r
}

func (r *Registry) Register(source models.Source, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[source] = adapter
}

func (r *Registry) Get(source models.Source) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[source]
	return a, ok
}

// Normalize runs the adapter for payload's portal. The portal on the result is
// always the payload's discriminant.
func (r *Registry) Normalize(payload *RawListingPayload) (*models.RawListing, error) {
	adapter, ok := r.Get(payload.PortalSource)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPortal, payload.PortalSource)
	}
	if len(payload.Body) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrInvalidPayload)
	}

	raw, err := adapter(payload.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidPayload, payload.PortalSource, err)
	}
	raw.PortalSource = payload.PortalSource
	return raw, nil
}

// Decode parses a message value holding a RawListingPayload and normalizes it.
func (r *Registry) Decode(data []byte) (*models.RawListing, error) {
	var payload RawListingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return r.Normalize(&payload)
}

var propertyTypeLabels = map[string]models.PropertyType{
	"appartamento":         models.PropertyTypeApartment,
	"apartment":            models.PropertyTypeApartment,
	"flat":                 models.PropertyTypeApartment,
	"piso":                 models.PropertyTypeApartment,
	"bilocale":             models.PropertyTypeApartment,
	"trilocale":            models.PropertyTypeApartment,
	"monolocale":           models.PropertyTypeApartment,
	"loft":                 models.PropertyTypeApartment,
	"casa":                 models.PropertyTypeHouse,
	"casa indipendente":    models.PropertyTypeHouse,
	"casa semindipendente": models.PropertyTypeHouse,
	"rustico":              models.PropertyTypeHouse,
	"chalet":               models.PropertyTypeHouse,
	"house":                models.PropertyTypeHouse,
	"villa":                models.PropertyTypeVilla,
	"villetta":             models.PropertyTypeVilla,
	"villa a schiera":      models.PropertyTypeVilla,
	"attico":               models.PropertyTypePenthouse,
	"penthouse":            models.PropertyTypePenthouse,
	"ufficio":              models.PropertyTypeCommercial,
	"negozio":              models.PropertyTypeCommercial,
	"locale commerciale":   models.PropertyTypeCommercial,
	"capannone":            models.PropertyTypeCommercial,
	"commercial":           models.PropertyTypeCommercial,
	"terreno":              models.PropertyTypeLand,
	"land":                 models.PropertyTypeLand,
}

// PropertyType maps a portal's free-text typology to a PropertyType. Unknown
// labels map to empty, which leaves the type unset on the listing.
func PropertyType(label string) models.PropertyType {
	label = strings.ToLower(strings.TrimSpace(label))
	if t, ok := propertyTypeLabels[label]; ok {
		return t
	}
	if t := models.PropertyType(label); t.Valid() && t != models.PropertyTypeAny {
		return t
	}
	return ""
}

// ParseSurface reads sizes such as "80 m²", "80,5 mq" or "80".
func ParseSurface(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, unit := range []string{"m²", "m2", "mq", "sqm"} {
		s = strings.TrimSuffix(s, unit)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}

// ParsePrice reads prices such as "€ 250.000", "250000" or "250.000 €".
// Dots and spaces are thousands separators; cents are dropped.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("no digits in price %q", s)
	}
	return strconv.ParseInt(digits.String(), 10, 64)
}

// ParseRooms reads room counts such as "3", "5+" or "3 locali".
func ParseRooms(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}

func location(lat, lng *float64) *models.Location {
	if lat == nil || lng == nil {
		return nil
	}
	loc := models.Location{Lat: *lat, Lng: *lng}
	if !models.ValidLocation(loc) {
		return nil
	}
	return &loc
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
