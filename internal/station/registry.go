// Package station is the registry of radar sites. The site table is embedded
// and parsed once on first use; entries are never mutated.
package station

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

//go:embed stations.json
var stationsJSON []byte

type registry struct {
	byID  map[string]domain.RadarSite
	sites []domain.RadarSite
}

var load = sync.OnceValues(func() (*registry, error) {
	return parse(stationsJSON)
})

func parse(data []byte) (*registry, error) {
	var sites []domain.RadarSite
	if err := json.Unmarshal(data, &sites); err != nil {
		return nil, fmt.Errorf("parse station table: %w", err)
	}
	r := &registry{byID: make(map[string]domain.RadarSite, len(sites))}
	for _, s := range sites {
		if len(s.ID) != 4 {
			return nil, fmt.Errorf("station %q: identifier must be four characters", s.ID)
		}
		if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("station %s: coordinates out of range", s.ID)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("station %s: duplicate entry", s.ID)
		}
		r.byID[s.ID] = s
		r.sites = append(r.sites, s)
	}
	slices.SortFunc(r.sites, func(a, b domain.RadarSite) int { return strings.Compare(a.ID, b.ID) })
	return r, nil
}

// Lookup returns the site for an identifier. Matching is case-insensitive.
func Lookup(id string) (domain.RadarSite, bool) {
	r, err := load()
	if err != nil {
		return domain.RadarSite{}, false
	}
	s, ok := r.byID[strings.ToUpper(strings.TrimSpace(id))]
	return s, ok
}

// MustLookup is Lookup for identifiers known at compile time.
func MustLookup(id string) domain.RadarSite {
	s, ok := Lookup(id)
	if !ok {
		panic(fmt.Sprintf("station: unknown site %q", id))
	}
	return s
}

// All returns every registered site ordered by identifier.
func All() []domain.RadarSite {
	r, err := load()
	if err != nil {
		return nil
	}
	return slices.Clone(r.sites)
}
