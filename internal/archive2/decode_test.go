package archive2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-radar-service/internal/archive2/archive2test"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

var t0 = time.Date(2024, time.March, 15, 12, 0, 21, 0, time.UTC)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	data, err = Inflate(data)
	require.NoError(t, err)
	return data
}

func loadManifest(t *testing.T) *archive2test.Manifest {
	t.Helper()
	m, err := archive2test.LoadManifest(filepath.Join("testdata", "manifest.json"))
	require.NoError(t, err)
	require.Len(t, m.Fixtures, 10)
	return m
}

func TestDecode_Fixtures(t *testing.T) {
	for _, fx := range loadManifest(t).Fixtures {
		t.Run(fx.File, func(t *testing.T) {
			scan, err := Decode(loadFixture(t, fx.File))
			require.NoError(t, err)

			assert.Equal(t, fx.Station, scan.Station)
			assert.True(t, fx.Start.Equal(scan.Start), "start %s, want %s", scan.Start, fx.Start)
			assert.Equal(t, fx.VCP, scan.VCP)
			assert.Len(t, scan.Unsupported, fx.Unsupported)

			require.Len(t, scan.Sweeps, len(fx.Sweeps))
			for i, want := range fx.Sweeps {
				got := scan.Sweeps[i]
				assert.Len(t, got.Radials, want.Radials, "sweep %d radials", i)
				assert.InDelta(t, want.Elevation, got.Elevation, 0.01, "sweep %d elevation", i)

				codes := make([]string, 0, len(want.Moments))
				for _, m := range got.Moments.List() {
					codes = append(codes, m.String())
				}
				assert.Equal(t, want.Moments, codes, "sweep %d moments", i)
			}
		})
	}
}

func TestDecode_GoldenValues(t *testing.T) {
	for _, fx := range loadManifest(t).Fixtures {
		t.Run(fx.File, func(t *testing.T) {
			require.GreaterOrEqual(t, len(fx.Golden), 5)

			scan, err := Decode(loadFixture(t, fx.File))
			require.NoError(t, err)

			for _, g := range fx.Golden {
				sweep := &scan.Sweeps[g.Sweep]
				ri := sweep.NearestRadial(g.Azimuth)
				require.GreaterOrEqual(t, ri, 0)

				m, ok := domain.ParseMoment(g.Moment)
				require.True(t, ok)
				data := sweep.Radials[ri].Data(m)
				require.NotNil(t, data, "%s missing at sweep %d az %.2f", g.Moment, g.Sweep, g.Azimuth)

				gi, ok := data.GateIndex(g.Range)
				require.True(t, ok, "range %.0f outside radial", g.Range)
				gate := data.Gates[gi]

				assert.Equal(t, g.Kind, gate.Kind.String(), "%s sweep %d az %.2f range %.0f", g.Moment, g.Sweep, g.Azimuth, g.Range)
				if g.Value != nil {
					assert.Equal(t, float32(*g.Value), gate.Value)
				}
			}
		})
	}
}

func TestDecode_CompressedMatchesUncompressed(t *testing.T) {
	for _, fx := range loadManifest(t).Fixtures {
		if fx.Equivalent == "" {
			continue
		}
		t.Run(fx.File, func(t *testing.T) {
			compressed, err := Decode(loadFixture(t, fx.File))
			require.NoError(t, err)
			plain, err := Decode(loadFixture(t, fx.Equivalent))
			require.NoError(t, err)

			if diff := cmp.Diff(plain, compressed); diff != "" {
				t.Errorf("decoded scans differ (-uncompressed +compressed):\n%s", diff)
			}
		})
	}
}

func TestDecode_TruncatedPrefixes(t *testing.T) {
	for _, name := range []string{"ktlx_modern.ar2v", "ktlx_modern_uncompressed.ar2v"} {
		t.Run(name, func(t *testing.T) {
			data := loadFixture(t, name)
			require.Greater(t, len(data), 50*1024)

			cuts := []int{0, 1, 23, 24, 25, 27, 28, 31, 32, 50 * 1024}
			for c := 0; c < 50*1024; c += 97 {
				cuts = append(cuts, c)
			}
			for _, cut := range cuts {
				var err error
				require.NotPanics(t, func() { _, err = Decode(data[:cut]) }, "cut %d", cut)
				require.ErrorIs(t, err, ErrTruncated, "cut %d", cut)

				var de *DecodeError
				require.ErrorAs(t, err, &de)
				assert.GreaterOrEqual(t, de.Message, -1)
			}
		})
	}
}

func TestDecode_TruncatedKeepsPartialSweeps(t *testing.T) {
	data := loadFixture(t, "ktlx_modern_uncompressed.ar2v")

	scan, err := Decode(data[:len(data)-1000])
	require.ErrorIs(t, err, ErrTruncated)
	require.NotNil(t, scan)
	require.Len(t, scan.Sweeps, 2)
	assert.Len(t, scan.Sweeps[0].Radials, 720)
	assert.Less(t, len(scan.Sweeps[1].Radials), 360)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, -1, de.Record)
	assert.Equal(t, 6+scan.RadialCount()-1, de.Message, "metadata frames plus radials")
}

// recordOffsets returns the input offset of each LDM control word.
func recordOffsets(t *testing.T, data []byte) []int {
	t.Helper()
	var offs []int
	pos := volumeHeaderSize
	for pos < len(data) {
		offs = append(offs, pos)
		ctl := int32(binary.BigEndian.Uint32(data[pos:]))
		if ctl < 0 {
			break
		}
		pos += 4 + int(ctl)
	}
	return offs
}

func TestDecode_CorruptCompressionReturnsPartial(t *testing.T) {
	data := loadFixture(t, "ktlx_modern.ar2v")
	offs := recordOffsets(t, data)
	require.Greater(t, len(offs), 3)

	// Damage the middle of record 2; records 0 and 1 hold the metadata
	// frames and the first 120 radials.
	corrupt := bytes.Clone(data)
	start, end := offs[2]+4, offs[3]
	for i := start + (end-start)/2; i < start+(end-start)/2+16; i++ {
		corrupt[i] ^= 0xa5
	}

	scan, err := Decode(corrupt)
	require.ErrorIs(t, err, ErrCorruptCompression)
	assert.NotErrorIs(t, err, ErrTruncated)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 2, de.Record)
	assert.Equal(t, int64(offs[2]+4), de.Offset)

	require.NotNil(t, scan)
	require.Len(t, scan.Sweeps, 1)
	assert.Len(t, scan.Sweeps[0].Radials, 120)
	assert.Equal(t, "KTLX", scan.Station)
}

func refBlock(raw ...uint16) archive2test.MomentBlock {
	return archive2test.MomentBlock{Name: "REF", FirstGate: 2125, Spacing: 250, WordBits: 8, Scale: 2, Offset: 66, Raw: raw}
}

func radial(az, elev float32, num, status uint8, moments ...archive2test.MomentBlock) archive2test.Radial31 {
	return archive2test.Radial31{
		Station: "KTLX", Time: t0, Azimuth: az, AzimuthSpacing: 1, Status: status,
		ElevationNumber: num, Elevation: elev, VCP: 212, Moments: moments,
	}
}

// stream concatenates a volume header and uncompressed frames.
func stream(frames ...[]byte) []byte {
	out := archive2test.VolumeHeader("AR2V0006", "KTLX", t0)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

func TestDecode_SentinelGates(t *testing.T) {
	data := stream(radial(10, 0.5, 1, statusEndVolume, refBlock(0, 1, 2, 66, 255)).Frame(1))

	scan, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 1)

	gates := scan.Sweeps[0].Radials[0].Data(domain.Reflectivity).Gates
	want := []domain.Gate{
		{Kind: domain.GateBelowThreshold},
		{Kind: domain.GateRangeFolded},
		domain.ValueGate(-32),
		domain.ValueGate(0),
		domain.ValueGate(94.5),
	}
	assert.Equal(t, want, gates)
}

func TestDecode_SixteenBitMoment(t *testing.T) {
	phi := archive2test.MomentBlock{Name: "PHI", FirstGate: 0, Spacing: 250, WordBits: 16, Scale: 2.8361, Offset: 2,
		Raw: []uint16{0, 1, 2, 1023, 65535}}
	data := stream(radial(10, 0.5, 1, statusEndVolume, phi).Frame(1))

	scan, err := Decode(data)
	require.NoError(t, err)

	d := scan.Sweeps[0].Radials[0].Data(domain.DifferentialPhase)
	require.NotNil(t, d)
	require.Len(t, d.Gates, 5)
	assert.Equal(t, domain.GateBelowThreshold, d.Gates[0].Kind)
	assert.Equal(t, domain.GateRangeFolded, d.Gates[1].Kind)
	assert.Equal(t, float32(0), d.Gates[2].Value)
	assert.Equal(t, (float32(1023)-2)/float32(2.8361), d.Gates[3].Value)
	assert.InDelta(t, 23106.5, d.Gates[4].Value, 0.5)
	assert.InDelta(t, 0.0, d.FirstGateRange, 0)
}

func TestDecode_UnsupportedMessagesAreCounted(t *testing.T) {
	data := stream(
		archive2test.FixedFrame(2, 1, t0, nil),
		radial(0.5, 0.5, 1, statusStartVolume, refBlock(10, 20)).Frame(2),
		archive2test.FixedFrame(77, 3, t0, nil),
		radial(1.5, 0.5, 1, statusEndVolume, refBlock(30, 40)).Frame(4),
	)

	scan, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, scan.Unsupported, 1)
	assert.Equal(t, uint8(77), scan.Unsupported[0].Type)
	assert.Equal(t, 2, scan.Unsupported[0].Index)
	require.Len(t, scan.Sweeps, 1)
	assert.Len(t, scan.Sweeps[0].Radials, 2)
}

func TestDecode_MissingMomentsAreGaps(t *testing.T) {
	vel := archive2test.MomentBlock{Name: "VEL", FirstGate: 2125, Spacing: 250, WordBits: 8, Scale: 2, Offset: 129, Raw: []uint16{129}}
	data := stream(
		radial(0.5, 0.5, 1, statusStartVolume, refBlock(10)).Frame(1),
		radial(0.5, 0.5, 2, statusStartElevation, vel).Frame(2),
		radial(1.5, 0.5, 2, statusEndVolume, vel).Frame(3),
	)

	scan, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 2, "split cut at one elevation yields two sweeps")

	assert.Equal(t, []domain.Moment{domain.Reflectivity}, scan.Sweeps[0].Moments.List())
	assert.Equal(t, []domain.Moment{domain.Velocity}, scan.Sweeps[1].Moments.List())
	assert.Nil(t, scan.Sweeps[1].Radials[0].Data(domain.Reflectivity))
	assert.False(t, scan.Sweeps[1].Moments.Has(domain.CorrelationCoefficient))
}

func TestDecode_ElevationClustering(t *testing.T) {
	var frames [][]byte
	seq := uint16(0)
	add := func(elev float32, num, status uint8) {
		seq++
		frames = append(frames, radial(float32(seq), elev, num, status, refBlock(50)).Frame(seq))
	}
	add(0.5, 1, statusStartVolume)
	add(0.62, 1, statusIntermediate)
	add(0.41, 1, statusIntermediate)
	// Same elevation number but a jump well past the tolerance.
	add(1.3, 1, statusIntermediate)
	add(1.32, 1, statusEndVolume)

	scan, err := Decode(stream(frames...))
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 2)
	assert.Len(t, scan.Sweeps[0].Radials, 3)
	assert.InDelta(t, 0.51, scan.Sweeps[0].Elevation, 0.01)
	assert.InDelta(t, 1.31, scan.Sweeps[1].Elevation, 0.01)
}

func TestDecode_FramesSplitAcrossRecords(t *testing.T) {
	a := radial(0.5, 0.5, 1, statusStartVolume, refBlock(10, 20, 30)).Frame(1)
	b := radial(1.5, 0.5, 1, statusEndVolume, refBlock(40, 50, 60)).Frame(2)
	joined := append(append([]byte{}, a...), b...)
	cut := len(a) + 10

	body, err := archive2test.Records([][]byte{joined[:cut], joined[cut:]})
	require.NoError(t, err)
	data := append(archive2test.VolumeHeader("AR2V0006", "KTLX", t0), body...)

	scan, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 1)
	assert.Len(t, scan.Sweeps[0].Radials, 2)
	assert.Equal(t, 212, scan.VCP)
}

func TestDecode_FramePaddingSplitAcrossRecords(t *testing.T) {
	meta := archive2test.FixedFrame(15, 1, t0, nil)
	a := radial(0.5, 0.5, 1, statusStartVolume, refBlock(10, 20, 30)).Frame(2)
	b := radial(1.5, 0.5, 1, statusEndVolume, refBlock(40, 50, 60)).Frame(3)
	joined := bytes.Join([][]byte{meta, a, b}, nil)
	// The metadata message is complete; two bytes of its frame padding spill
	// into the next record.
	cut := len(meta) - 2

	body, err := archive2test.Records([][]byte{joined[:cut], joined[cut:]})
	require.NoError(t, err)
	data := append(archive2test.VolumeHeader("AR2V0006", "KTLX", t0), body...)

	scan, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 1)
	assert.Len(t, scan.Sweeps[0].Radials, 2)
	assert.Empty(t, scan.Unsupported)
}

func TestDecode_HeaderErrors(t *testing.T) {
	scan, err := Decode([]byte("AR2V0006.0"))
	assert.Nil(t, scan)
	assert.ErrorIs(t, err, ErrTruncated)

	scan, err = Decode(bytes.Repeat([]byte("x"), 64))
	assert.Nil(t, scan)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_MalformedBlockPointer(t *testing.T) {
	frame := radial(0.5, 0.5, 1, statusEndVolume, refBlock(10)).Frame(1)
	// The first data block pointer sits after the CTM, message header, and
	// 32-byte radial header.
	binary.BigEndian.PutUint32(frame[ctmSize+messageHeaderSize+32:], 0xffff)

	_, err := Decode(stream(frame))
	require.ErrorIs(t, err, ErrMalformed)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, -1, de.Message)
	assert.Contains(t, de.Error(), "malformed")
}

func TestDecode_LegacyVelocityResolution(t *testing.T) {
	r := archive2test.Radial1{
		Time: t0, AzimuthNumber: 1, Azimuth: 90.5, Status: statusEndVolume, Elevation: 0.5, ElevationNumber: 1,
		VCP: 21, Resolution: 4, RefFirst: 1000, RefSpacing: 1000, DopFirst: 250, DopSpacing: 250,
		Ref: []byte{2, 66, 0}, Vel: []byte{129, 139, 1}, Width: []byte{131, 0, 1},
	}
	scan, err := Decode(stream(r.Frame(1)))
	require.NoError(t, err)
	require.Len(t, scan.Sweeps, 1)

	rad := scan.Sweeps[0].Radials[0]
	assert.InDelta(t, 90.5, rad.Azimuth, 0.01)
	assert.Equal(t, []domain.Gate{domain.ValueGate(-32), domain.ValueGate(0), {Kind: domain.GateBelowThreshold}},
		rad.Data(domain.Reflectivity).Gates)
	assert.Equal(t, []domain.Gate{domain.ValueGate(0), domain.ValueGate(10), {Kind: domain.GateRangeFolded}},
		rad.Data(domain.Velocity).Gates)
	assert.Equal(t, domain.ValueGate(1), rad.Data(domain.SpectrumWidth).Gates[0])
	assert.InDelta(t, 250.0, rad.Data(domain.Velocity).FirstGateRange, 0)
	assert.Equal(t, 21, scan.VCP)
}

func TestDecode_ConcurrentCallers(t *testing.T) {
	data := loadFixture(t, "kfws_no_dualpol.ar2v")
	want, err := Decode(data)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Decode(data)
			if err == nil && !cmp.Equal(want, got) {
				err = errors.New("decoded scan differs")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestDecode_GeneratedFixturesMatchManifest(t *testing.T) {
	committed := map[string]archive2test.FixtureManifest{}
	for _, fm := range loadManifest(t).Fixtures {
		committed[fm.File] = fm
	}

	for _, f := range archive2test.Fixtures() {
		t.Run(f.File, func(t *testing.T) {
			want := f.Manifest()
			if c, ok := committed[f.File]; ok {
				assert.Equal(t, c.Sweeps, want.Sweeps)
				assert.Equal(t, c.VCP, want.VCP)
			}

			data, err := f.Build()
			require.NoError(t, err)
			data, err = Inflate(data)
			require.NoError(t, err)

			scan, err := Decode(data)
			require.NoError(t, err)
			require.Len(t, scan.Sweeps, len(want.Sweeps))
			assert.Len(t, scan.Unsupported, want.Unsupported)
			for i, s := range want.Sweeps {
				assert.Len(t, scan.Sweeps[i].Radials, s.Radials)
				assert.InDelta(t, s.Elevation, scan.Sweeps[i].Elevation, 0.01)
			}
			for _, g := range want.Golden {
				m, ok := domain.ParseMoment(g.Moment)
				require.True(t, ok)
				sweep := &scan.Sweeps[g.Sweep]
				d := sweep.Radials[sweep.NearestRadial(g.Azimuth)].Data(m)
				gi, ok := d.GateIndex(g.Range)
				require.True(t, ok)
				assert.Equal(t, g.Kind, d.Gates[gi].Kind.String())
			}
		})
	}
}
