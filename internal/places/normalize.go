// Provider payload shapes and address-component flattening.
//
// The provider reports addresses as a list of typed components. The record
// store wants three flat fields: city, region, country. Region preference
// order is administrative_area_level_2 before level_1 — level 2 (the
// province) is the granularity the prospecting filters use; level 1 (the
// autonomous community / state) is kept as a fallback so the field is never
// needlessly empty.
package places

type placeResult struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
	Vicinity         string `json:"vicinity"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	AddressComponents []addressComponent `json:"address_components"`
	FormattedPhone    string             `json:"formatted_phone_number"`
	InternationalPhone string            `json:"international_phone_number"`
	Website           string             `json:"website"`
	OpeningHours      struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// toDetail flattens a provider result into the Detail shape used by the
// orchestrator and the record store.
func (r *placeResult) toDetail() *Detail {
	d := &Detail{
		ExternalID:   r.PlaceID,
		Name:         r.Name,
		Address:      r.FormattedAddress,
		Phone:        r.FormattedPhone,
		Website:      r.Website,
		OpeningHours: r.OpeningHours.WeekdayText,
		Latitude:     r.Geometry.Location.Lat,
		Longitude:    r.Geometry.Location.Lng,
	}
	if d.Address == "" {
		d.Address = r.Vicinity
	}
	if d.Phone == "" {
		d.Phone = r.InternationalPhone
	}
	d.City, d.Region, d.Country = flattenComponents(r.AddressComponents)
	return d
}

// flattenComponents extracts city/region/country from typed components.
// City comes from "locality" (falling back to "postal_town" for markets
// that use it); region prefers administrative_area_level_2 over level_1.
func flattenComponents(comps []addressComponent) (city, region, country string) {
	var level1, level2 string
	for _, c := range comps {
		for _, t := range c.Types {
			switch t {
			case "locality":
				if city == "" {
					city = c.LongName
				}
			case "postal_town":
				if city == "" {
					city = c.LongName
				}
			case "administrative_area_level_2":
				level2 = c.LongName
			case "administrative_area_level_1":
				level1 = c.LongName
			case "country":
				country = c.LongName
			}
		}
	}
	region = level2
	if region == "" {
		region = level1
	}
	return city, region, country
}
