package archive2test

import "time"

func date(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func gates(n int, codes ...string) map[string]int {
	if len(codes) == 0 {
		codes = MomentOrder
	}
	m := make(map[string]int, len(codes))
	for _, c := range codes {
		m[c] = n
	}
	return m
}

func generic(elev float64, num, radials int, spacing float64, g map[string]int) SweepSpec {
	return SweepSpec{Elevation: elev, ElevationNumber: num, Radials: radials, AzimuthSpacing: spacing, Gates: g}
}

func legacy(elev float64, num int, resolution uint16, refGates, dopGates int) SweepSpec {
	return SweepSpec{
		Elevation: elev, ElevationNumber: num, Radials: 360, AzimuthSpacing: 1,
		RefGates: refGates, DopGates: dopGates,
		RefFirst: 1000, RefSpacing: 1000, DopFirst: 250, DopSpacing: 250,
		VelocityResolution: resolution,
	}
}

// Fixtures returns the ten canonical volume scans stored under
// internal/archive2/testdata.
func Fixtures() []Fixture {
	base3 := []string{"REF", "VEL", "SW"}

	ktlx := Fixture{
		File: "ktlx_modern.ar2v", Format: Generic, Container: LDM, Station: "KTLX",
		Site: Site{35.4183, -97.4514, 374}, Seed: 1, VCP: 212, Start: date("2013-05-20T20:16:43Z"),
		Equivalent: "ktlx_modern_uncompressed.ar2v",
		Sweeps: []SweepSpec{
			generic(0.5, 1, 720, 0.5, gates(24)),
			generic(1.45, 2, 360, 1, gates(20)),
		},
	}
	ktlxRaw := ktlx
	ktlxRaw.File, ktlxRaw.Container, ktlxRaw.Equivalent = "ktlx_modern_uncompressed.ar2v", Raw, ""

	kinx := Fixture{
		File: "kinx_legacy.ar2v", Format: Legacy, Container: LDM, Station: "KINX",
		Seed: 3, VCP: 21, Start: date("2005-05-10T23:00:44Z"),
		Equivalent: "kinx_legacy_uncompressed.ar2v.gz",
		Sweeps:     []SweepSpec{legacy(0.5, 1, 2, 100, 200), legacy(1.45, 2, 2, 100, 200)},
	}
	kinxRaw := kinx
	kinxRaw.File, kinxRaw.Container, kinxRaw.Equivalent = "kinx_legacy_uncompressed.ar2v.gz", GzipRaw, ""

	folded := generic(0.5, 1, 360, 1, gates(32, base3...))
	folded.FoldFrom = 20

	wobble := func(elev float64, num int, amp float64) SweepSpec {
		s := generic(elev, num, 360, 1, gates(16, base3...))
		s.Wobble = amp
		return s
	}

	return []Fixture{
		ktlx,
		ktlxRaw,
		kinx,
		kinxRaw,
		{
			File: "kfws_no_dualpol.ar2v", Format: Generic, Container: LDM, Station: "KFWS",
			Site: Site{32.5739, -97.3028, 175}, Seed: 5, VCP: 35, Start: date("2019-06-01T00:04:12Z"),
			Sweeps: []SweepSpec{
				generic(0.5, 1, 360, 1, gates(16, base3...)),
				generic(1.5, 2, 360, 1, gates(16, base3...)),
			},
		},
		{
			File: "khgx_split_cut.ar2v", Format: Generic, Container: LDM, Station: "KHGX",
			Site: Site{29.4719, -95.0794, 14}, Seed: 6, VCP: 215, Start: date("2017-08-26T03:15:00Z"),
			Sweeps: []SweepSpec{
				generic(0.5, 1, 360, 1, gates(16, "REF")),
				generic(0.5, 2, 360, 1, gates(16, "VEL", "SW")),
				generic(1.3, 3, 360, 1, gates(16)),
			},
		},
		{
			File: "kmxx_unsupported.ar2v", Format: Generic, Container: LDM, Station: "KMXX",
			Site: Site{39.6194, -121.6469, 596}, Seed: 7, VCP: 212, Start: date("2018-11-08T16:40:33Z"),
			MetaUnknown: []uint8{99}, Inject: map[int]uint8{100: 200, 250: 99}, Unsupported: 3,
			Sweeps: []SweepSpec{generic(0.5, 1, 360, 1, gates(12))},
		},
		{
			File: "kfsd_range_folded.ar2v", Format: Generic, Container: LDM, Station: "KFSD",
			Site: Site{43.5878, -96.8294, 450}, Seed: 8, VCP: 32, Start: date("2014-06-16T20:30:09Z"),
			Sweeps: []SweepSpec{folded, generic(1.5, 2, 360, 1, gates(32, base3...))},
		},
		{
			File: "kbuf_wobble.ar2v", Format: Generic, Container: LDM, Station: "KBUF",
			Site: Site{42.9489, -78.7369, 207}, Seed: 9, VCP: 12, Start: date("2014-11-18T12:00:00Z"),
			Sweeps: []SweepSpec{wobble(0.5, 1, 0.15), wobble(0.9, 2, 0.1), wobble(1.3, 3, 0.1)},
		},
		{
			File: "kmpx_legacy_1ms.ar2v", Format: Legacy, Container: LDM, Station: "KMPX",
			Seed: 10, VCP: 31, Start: date("2006-07-04T18:30:00Z"),
			Sweeps: []SweepSpec{legacy(0.5, 1, 4, 60, 120)},
		},
	}
}
