package domain

// RadarSite locates a radar. Elevation is meters above mean sea level.
type RadarSite struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Elevation float64 `json:"elevation_m"`
}
