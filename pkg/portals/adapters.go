package portals

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

type immobiliareListing struct {
	ID       json.Number `json:"id"`
	URL      string      `json:"url"`
	Typology string      `json:"typology"`
	Price    struct {
		Value     *int64 `json:"value"`
		Formatted string `json:"formattedValue"`
	} `json:"price"`
	Surface     string `json:"surface"`
	Rooms       string `json:"rooms"`
	Bathrooms   string `json:"bathrooms"`
	Floor       string `json:"floor"`
	Description string `json:"description"`
	Location    struct {
		Address   string   `json:"address"`
		City      string   `json:"city"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"location"`
	Advertiser struct {
		Type   string `json:"type"`
		Agency *struct {
			DisplayName string `json:"displayName"`
			Phone       string `json:"phone"`
		} `json:"agency"`
		Supervisor *struct {
			DisplayName string `json:"displayName"`
			Phone       string `json:"phone"`
		} `json:"supervisor"`
	} `json:"advertiser"`
}

// Immobiliare decodes the immobiliare.it scraper shape. A supervisor on a
// private advertiser is the owner.
func Immobiliare(body json.RawMessage) (*models.RawListing, error) {
	var in immobiliareListing
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}

	raw := &models.RawListing{
		Address:      in.Location.Address,
		City:         in.Location.City,
		Bedrooms:     ParseRooms(in.Rooms),
		Bathrooms:    ParseRooms(in.Bathrooms),
		Floor:        optional(in.Floor),
		Description:  optional(in.Description),
		PropertyType: PropertyType(in.Typology),
		Location:     location(in.Location.Latitude, in.Location.Longitude),
		ExternalID:   optional(in.ID.String()),
		URL:          optional(in.URL),
	}

	switch {
	case in.Price.Value != nil:
		raw.Price = *in.Price.Value
	case in.Price.Formatted != "":
		price, err := ParsePrice(in.Price.Formatted)
		if err != nil {
			return nil, err
		}
		raw.Price = price
	}

	if in.Surface != "" {
		size, err := ParseSurface(in.Surface)
		if err != nil {
			return nil, fmt.Errorf("surface: %w", err)
		}
		raw.Size = size
	}

	if a := in.Advertiser.Agency; a != nil && strings.TrimSpace(a.DisplayName) != "" {
		raw.AgencyName = optional(a.DisplayName)
		raw.AgencyPhone = optional(a.Phone)
	} else if s := in.Advertiser.Supervisor; s != nil && strings.EqualFold(in.Advertiser.Type, "private") {
		raw.OwnerName = optional(s.DisplayName)
		raw.OwnerPhone = optional(s.Phone)
	}
	return raw, nil
}

type idealistaListing struct {
	PropertyCode string   `json:"propertyCode"`
	URL          string   `json:"url"`
	Price        float64  `json:"price"`
	Size         float64  `json:"size"`
	Rooms        *int     `json:"rooms"`
	Bathrooms    *int     `json:"bathrooms"`
	Floor        string   `json:"floor"`
	PropertyType string   `json:"propertyType"`
	Address      string   `json:"address"`
	Municipality string   `json:"municipality"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Description  string   `json:"description"`
	ContactInfo  struct {
		UserType       string `json:"userType"`
		CommercialName string `json:"commercialName"`
		ContactName    string `json:"contactName"`
		Phone1         struct {
			FormattedPhone string `json:"formattedPhone"`
		} `json:"phone1"`
	} `json:"contactInfo"`
}

// Idealista decodes the idealista.it API shape. userType "professional" is an
// agency, "private" an owner.
func Idealista(body json.RawMessage) (*models.RawListing, error) {
	var in idealistaListing
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}

	raw := &models.RawListing{
		Address:      in.Address,
		City:         in.Municipality,
		Price:        int64(in.Price),
		Size:         in.Size,
		Bedrooms:     in.Rooms,
		Bathrooms:    in.Bathrooms,
		Floor:        optional(in.Floor),
		Description:  optional(in.Description),
		PropertyType: PropertyType(in.PropertyType),
		Location:     location(in.Latitude, in.Longitude),
		ExternalID:   optional(in.PropertyCode),
		URL:          optional(in.URL),
	}

	c := in.ContactInfo
	phone := optional(c.Phone1.FormattedPhone)
	switch strings.ToLower(c.UserType) {
	case "professional":
		name := c.CommercialName
		if strings.TrimSpace(name) == "" {
			name = c.ContactName
		}
		raw.AgencyName = optional(name)
		raw.AgencyPhone = phone
	case "private":
		raw.OwnerName = optional(c.ContactName)
		raw.OwnerPhone = phone
	}
	return raw, nil
}

type clickcaseListing struct {
	ID          string   `json:"id"`
	Link        string   `json:"link"`
	Prezzo      string   `json:"prezzo"`
	Mq          string   `json:"mq"`
	Locali      string   `json:"locali"`
	Bagni       string   `json:"bagni"`
	Piano       string   `json:"piano"`
	Tipologia   string   `json:"tipologia"`
	Indirizzo   string   `json:"indirizzo"`
	Comune      string   `json:"comune"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Descrizione string   `json:"descrizione"`
	Agenzia     *struct {
		Nome     string `json:"nome"`
		Telefono string `json:"telefono"`
	} `json:"agenzia"`
	Inserzionista *struct {
		Nome     string `json:"nome"`
		Telefono string `json:"telefono"`
	} `json:"inserzionista"`
}

// Clickcase decodes the clickcase.it scraper shape, where price and size are
// formatted strings.
func Clickcase(body json.RawMessage) (*models.RawListing, error) {
	var in clickcaseListing
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}

	price, err := ParsePrice(in.Prezzo)
	if err != nil {
		return nil, err
	}
	size, err := ParseSurface(in.Mq)
	if err != nil {
		return nil, fmt.Errorf("mq: %w", err)
	}

	raw := &models.RawListing{
		Address:      in.Indirizzo,
		City:         in.Comune,
		Price:        price,
		Size:         size,
		Bedrooms:     ParseRooms(in.Locali),
		Bathrooms:    ParseRooms(in.Bagni),
		Floor:        optional(in.Piano),
		Description:  optional(in.Descrizione),
		PropertyType: PropertyType(in.Tipologia),
		Location:     location(in.Lat, in.Lon),
		ExternalID:   optional(in.ID),
		URL:          optional(in.Link),
	}
	if a := in.Agenzia; a != nil {
		raw.AgencyName = optional(a.Nome)
		raw.AgencyPhone = optional(a.Telefono)
	}
	if p := in.Inserzionista; p != nil && !raw.HasAgencyContact() {
		raw.OwnerName = optional(p.Nome)
		raw.OwnerPhone = optional(p.Telefono)
	}
	return raw, nil
}

type casadaprivatoListing struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Prezzo       int64    `json:"prezzo"`
	Superficie   float64  `json:"superficie"`
	Camere       *int     `json:"camere"`
	Bagni        *int     `json:"bagni"`
	Piano        string   `json:"piano"`
	Tipologia    string   `json:"tipologia"`
	Indirizzo    string   `json:"indirizzo"`
	Citta        string   `json:"citta"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Descrizione  string   `json:"descrizione"`
	Proprietario struct {
		Nome     string `json:"nome"`
		Telefono string `json:"telefono"`
	} `json:"proprietario"`
}

// Casadaprivato decodes casadaprivato.it, a private-sellers-only portal: the
// contact is always the owner.
func Casadaprivato(body json.RawMessage) (*models.RawListing, error) {
	var in casadaprivatoListing
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}

	return &models.RawListing{
		Address:      in.Indirizzo,
		City:         in.Citta,
		Price:        in.Prezzo,
		Size:         in.Superficie,
		Bedrooms:     in.Camere,
		Bathrooms:    in.Bagni,
		Floor:        optional(in.Piano),
		Description:  optional(in.Descrizione),
		PropertyType: PropertyType(in.Tipologia),
		Location:     location(in.Lat, in.Lng),
		OwnerName:    optional(in.Proprietario.Nome),
		OwnerPhone:   optional(in.Proprietario.Telefono),
		ExternalID:   optional(in.ID),
		URL:          optional(in.URL),
	}, nil
}

// ManualImport accepts the canonical RawListing shape as-is.
func ManualImport(body json.RawMessage) (*models.RawListing, error) {
	var raw models.RawListing
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw.PropertyType != "" && !raw.PropertyType.Valid() {
		return nil, errors.New("unknown property_type " + string(raw.PropertyType))
	}
	if raw.Location != nil && !models.ValidLocation(*raw.Location) {
		raw.Location = nil
	}
	return &raw, nil
}
