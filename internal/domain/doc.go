// Package domain models NEXRAD Level II volume scans and the archive
// objects they are stored in.
//
// # Data Source
//
// Volume scans come from the public NOAA Level II archive bucket at
// https://noaa-nexrad-level2.s3.amazonaws.com. Objects live under
//
//	YYYY/MM/DD/SSSS/SSSSYYYYMMDD_HHMMSS[_V06|_V03][.gz]
//
// where SSSS is the four-letter ICAO station identifier and the timestamp is
// the UTC volume start time. Files ending in _MDM carry metadata only and are
// ignored. Pre-2008 files have no variant suffix and are usually gzip-wrapped.
//
// # Scan Structure
//
// A VolumeScan holds Sweeps in arrival order. Each Sweep holds the Radials
// collected at one nominal elevation; split cuts (a surveillance pass and a
// Doppler pass at the same angle) appear as two Sweeps. A Radial carries up to
// six moments:
//
//	REF  reflectivity              dBZ
//	VEL  radial velocity           m/s, positive away from the radar
//	SW   spectrum width            m/s
//	ZDR  differential reflectivity dB
//	RHO  correlation coefficient   unitless, 0..1
//	PHI  differential phase        degrees
//
// # Gate Encoding
//
// Raw gate codes 0 and 1 are reserved in every moment: 0 means the signal was
// below threshold, 1 means the return was range folded. They decode to Gate
// values with Kind GateBelowThreshold and GateRangeFolded and never to a
// number, so they cannot leak into arithmetic. GateNoData is used only by
// consumers that pad ragged radials to a common gate count.
//
// # Cache Keys
//
// Cached scans are keyed by (station, UTC timestamp, variant), rendered as
// SSSS/YYYYMMDD/HHMMSS/VARIANT. See [CacheKey].
package domain
