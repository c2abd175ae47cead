package domain

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// ScanMeta describes a volume scan available in the remote archive before its
// bytes are fetched.
type ScanMeta struct {
	Station string    `json:"station"`
	Time    time.Time `json:"time"`
	// Variant is the file-format suffix ("V06", "V03"), empty for legacy files.
	Variant string `json:"variant,omitempty"`
	// Path is the object key relative to the archive root.
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Gzip is set when the object is gzip-wrapped (".gz" suffix).
	Gzip bool `json:"gzip,omitempty"`
}

// Key returns the cache key for the scan.
func (m ScanMeta) Key() CacheKey {
	return CacheKey{Station: m.Station, Time: m.Time.UTC(), Variant: m.Variant}
}

// FileName returns the base name of the remote object.
func (m ScanMeta) FileName() string {
	return path.Base(m.Path)
}

// CacheKey identifies one stored scan. Distinct (station, timestamp, variant)
// triples always render to distinct strings.
type CacheKey struct {
	Station string
	Time    time.Time
	Variant string
}

// String renders the key as STATION/YYYYMMDD/HHMMSS/VARIANT, with "-" for an
// empty variant.
func (k CacheKey) String() string {
	v := k.Variant
	if v == "" {
		v = "-"
	}
	t := k.Time.UTC()
	return fmt.Sprintf("%s/%s/%s/%s", k.Station, t.Format("20060102"), t.Format("150405"), v)
}

// ScanPrefix returns the archive directory for a station and UTC day.
func ScanPrefix(station string, day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("%04d/%02d/%02d/%s/", day.Year(), int(day.Month()), day.Day(), station)
}

// ScanPath returns the archive object key for a scan file name.
func ScanPath(station string, t time.Time, fileName string) string {
	return ScanPrefix(station, t) + fileName
}

var scanFilePattern = regexp.MustCompile(`^([A-Z0-9]{4})(\d{8})_(\d{6})(?:_(V\d{2}))?(\.gz)?$`)

// ParseScanFile parses an archive object name such as KTLX20240315_120021_V06
// or KTLX20050510_230044.gz. Metadata files (_MDM) and unrecognized names
// return false.
func ParseScanFile(name string) (ScanMeta, bool) {
	name = path.Base(name)
	if strings.HasSuffix(name, "_MDM") {
		return ScanMeta{}, false
	}
	m := scanFilePattern.FindStringSubmatch(name)
	if m == nil {
		return ScanMeta{}, false
	}
	t, err := time.Parse("20060102150405", m[2]+m[3])
	if err != nil {
		return ScanMeta{}, false
	}
	return ScanMeta{
		Station: m[1],
		Time:    t.UTC(),
		Variant: m[4],
		Path:    ScanPath(m[1], t, name),
		Gzip:    m[5] != "",
	}, true
}
