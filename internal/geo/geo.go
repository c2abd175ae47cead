// Package geo projects radar gates from polar coordinates onto the earth.
//
// Beam height follows the 4/3 effective earth radius refraction model. The
// ground distance under the beam is the arc length on the effective sphere,
// then the gate position is the great-circle destination from the site.
// All functions are pure.
package geo

import (
	"math"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

const (
	// EarthRadius is the mean earth radius in meters.
	EarthRadius = 6371000.0
	// EffectiveRadius accounts for standard atmospheric refraction.
	EffectiveRadius = EarthRadius * 4 / 3
)

const deg = math.Pi / 180

// beamHeight returns the height of the beam center above the antenna.
func beamHeight(rangeM, sinElev float64) float64 {
	return math.Sqrt(rangeM*rangeM+EffectiveRadius*EffectiveRadius+2*rangeM*EffectiveRadius*sinElev) - EffectiveRadius
}

// BeamHeight returns the height of the beam center above mean sea level in
// meters for a gate at rangeM along a beam raised elevDeg degrees, given the
// site elevation.
func BeamHeight(rangeM, elevDeg, siteElev float64) float64 {
	return beamHeight(rangeM, math.Sin(elevDeg*deg)) + siteElev
}

// GroundRange returns the great-circle distance in meters from the site to
// the point beneath a gate at slant range rangeM.
func GroundRange(rangeM, elevDeg float64) float64 {
	sin, cos := math.Sincos(elevDeg * deg)
	return groundRange(rangeM, sin, cos)
}

func groundRange(rangeM, sinElev, cosElev float64) float64 {
	h := beamHeight(rangeM, sinElev)
	return EffectiveRadius * math.Asin(rangeM*cosElev/(EffectiveRadius+h))
}

// Destination returns the point reached by travelling distM meters from
// (lat, lon) along the initial bearing azDeg. Longitude is normalized to
// [-180, 180).
func Destination(lat, lon, azDeg, distM float64) (float64, float64) {
	sinAz, cosAz := math.Sincos(domain.NormalizeAzimuth(azDeg) * deg)
	return destination(lat, lon, sinAz, cosAz, distM)
}

func destination(lat, lon, sinAz, cosAz, distM float64) (float64, float64) {
	d := distM / EarthRadius
	sinD, cosD := math.Sincos(d)
	sinLat, cosLat := math.Sincos(lat * deg)

	lat2 := math.Asin(sinLat*cosD + cosLat*sinD*cosAz)
	lon2 := lon*deg + math.Atan2(sinAz*sinD*cosLat, cosD-sinLat*math.Sin(lat2))
	return lat2 / deg, normalizeLongitude(lon2 / deg)
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// PolarToLatLng locates a gate. It returns latitude and longitude in degrees
// and beam height above mean sea level in meters. Azimuth wraps at 360.
func PolarToLatLng(site domain.RadarSite, azDeg, rangeM, elevDeg float64) (lat, lon, height float64) {
	sinE, cosE := math.Sincos(elevDeg * deg)
	sinA, cosA := math.Sincos(domain.NormalizeAzimuth(azDeg) * deg)
	lat, lon = destination(site.Latitude, site.Longitude, sinA, cosA, groundRange(rangeM, sinE, cosE))
	return lat, lon, beamHeight(rangeM, sinE) + site.Elevation
}
